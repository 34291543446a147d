package sentiment

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// lexicon weights single words; phrases are matched as substrings.
var (
	lexicon = map[string]float64{
		"bull": 1, "bulls": 1, "bullish": 1, "breakout": 1, "surge": 1, "surges": 1,
		"rally": 1, "rallies": 1, "soar": 1, "soars": 1, "uptrend": 1,
		"adoption": 0.8, "approval": 0.8, "approved": 0.8, "inflows": 0.6,
		"growth": 0.6, "recover": 0.6, "recovers": 0.6, "partnership": 0.6, "upgrade": 0.5, "buy": 0.5,

		"bear": -1, "bears": -1, "bearish": -1, "dump": -1, "dumps": -1, "crash": -1, "crashes": -1,
		"plunge": -1, "plunges": -1, "hack": -1, "hacked": -1, "exploit": -1, "fraud": -1,
		"downtrend": -1, "liquidation": -0.8, "liquidations": -0.8, "lawsuit": -0.8, "ban": -0.8,
		"delist": -0.8, "delisted": -0.8, "outflows": -0.6, "decline": -0.6, "sell": -0.5, "selloff": -0.8,
	}
	phrases = map[string]float64{
		"record high":   1,
		"all-time high": 1,
		"etf approval":  0.8,
		"sec sues":      -0.8,
		"rug pull":      -1,
	}
)

// Heuristic scores an item from a weighted crypto news lexicon.
func Heuristic(item Item) Score {
	text := strings.ToLower(strings.TrimSpace(item.Title + " " + item.Excerpt))
	if text == "" {
		return Score{ID: item.ID, Confidence: 0.25, Label: Neutral, Model: HeuristicModel, Reason: "empty-text"}
	}

	var net float64
	var hits int
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) && r != '-' }) {
		if w, ok := lexicon[tok]; ok {
			net += w
			hits++
		}
	}
	for p, w := range phrases {
		if strings.Contains(text, p) {
			net += w
			hits++
		}
	}

	score := clamp(net/float64(hits+1), -1, 1)
	return Score{
		ID:         item.ID,
		Score:      score,
		Confidence: clamp(0.35+0.1*math.Abs(net), 0.25, 0.70),
		Label:      labelFor(score),
		Model:      HeuristicModel,
		Reason:     fmt.Sprintf("lexicon hits=%d net=%.1f", hits, net),
	}
}

func labelFor(score float64) string {
	switch {
	case score > 0.2:
		return Bullish
	case score < -0.2:
		return Bearish
	default:
		return Neutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
