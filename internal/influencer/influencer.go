// Package influencer picks accounts to mention in a thread's call to
// action, rotating out handles used recently.
package influencer

import (
	"math"
	"sort"
	"strings"
	"time"

	"cryptothreads/internal/ledger"
	"cryptothreads/internal/uniqueness"
)

// DefaultRotation is how long a mentioned handle rests before reuse.
const DefaultRotation = 48 * time.Hour

// Influencer is a known account with 1-5 ratings.
type Influencer struct {
	Handle     string
	Followers  int
	Engagement float64
	Accuracy   float64
	Trend      float64
}

// Score weighs reach at half, capped at 2M followers, then engagement,
// accuracy and trend.
func (i Influencer) Score() float64 {
	reach := math.Min(5, float64(i.Followers)/400_000) * 0.5
	return reach + i.Engagement*0.3 + i.Accuracy*0.1 + i.Trend*0.1
}

var defaultRoster = map[string][]Influencer{
	"XRP": {
		{"@Ripple", 2_000_000, 5, 5, 4},
		{"@XRPcryptowolf", 500_000, 4, 4, 3},
		{"@JoelKatz", 300_000, 3, 4, 2},
	},
	"HBAR": {
		{"@Hedera", 350_000, 4, 5, 4},
		{"@LeemonBaird", 150_000, 3, 4, 3},
		{"@HederaToday", 100_000, 3, 3, 2},
	},
	"XLM": {
		{"@StellarOrg", 750_000, 4, 5, 4},
		{"@JedMcCaleb", 200_000, 3, 4, 3},
		{"@XLMcommunity", 150_000, 3, 3, 2},
	},
	"XDC": {
		{"@XinFin_Official", 120_000, 4, 5, 4},
		{"@XDCFoundation", 80_000, 3, 4, 3},
		{"@XDC_Network", 60_000, 3, 3, 2},
	},
	"SUI": {
		{"@SuiNetwork", 250_000, 4, 5, 4},
		{"@SuiGlobal", 150_000, 3, 4, 3},
		{"@Mysten_Labs", 100_000, 3, 3, 2},
	},
	"ONDO": {
		{"@OndoFinance", 100_000, 4, 5, 4},
		{"@OndoProtocol", 80_000, 3, 4, 3},
		{"@OndoCommunity", 60_000, 3, 3, 2},
	},
	"ALGO": {
		{"@Algorand", 300_000, 4, 5, 4},
		{"@AlgoFoundation", 200_000, 3, 4, 3},
		{"@AlgorandDev", 150_000, 3, 3, 2},
	},
	"CSPR": {
		{"@Casper_Network", 150_000, 4, 5, 4},
		{"@CasperLabs", 100_000, 3, 4, 3},
		{"@CSPR_Live", 80_000, 3, 3, 2},
	},
	"BTC": {
		{"@saylor", 4_000_000, 4, 3, 4},
		{"@APompliano", 1_700_000, 4, 3, 3},
		{"@WClementeIII", 700_000, 3, 4, 3},
	},
	"ETH": {
		{"@VitalikButerin", 5_000_000, 5, 5, 4},
		{"@ethereum", 3_500_000, 4, 5, 3},
		{"@sassal0x", 300_000, 4, 4, 3},
	},
}

// Picker selects handles for a set of coins.
type Picker struct {
	roster   map[string][]Influencer
	rotation time.Duration
}

// NewPicker uses the built-in roster when roster is nil.
func NewPicker(roster map[string][]Influencer, rotation time.Duration) *Picker {
	if roster == nil {
		roster = defaultRoster
	}
	if rotation <= 0 {
		rotation = DefaultRotation
	}
	return &Picker{roster: roster, rotation: rotation}
}

// Candidates returns every influencer for symbols, best first, each handle
// once.
func (p *Picker) Candidates(symbols []string) []Influencer {
	seen := make(map[string]bool)
	var out []Influencer
	for _, sym := range symbols {
		for _, inf := range p.roster[strings.ToUpper(sym)] {
			key := strings.ToLower(inf.Handle)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, inf)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Score(), out[j].Score()
		if si != sj {
			return si > sj
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}

// Pick returns up to n handles. Handles mentioned by threads inside the
// rotation window come after every handle that was not.
func (p *Picker) Pick(symbols []string, history []ledger.Entry, now time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	recent := uniqueness.RecentInfluencers(history, now, p.rotation)

	var fresh, rested []string
	for _, inf := range p.Candidates(symbols) {
		if recent[strings.ToLower(inf.Handle)] {
			rested = append(rested, inf.Handle)
		} else {
			fresh = append(fresh, inf.Handle)
		}
	}
	out := append(fresh, rested...)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
