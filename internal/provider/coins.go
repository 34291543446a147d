package provider

import (
	"regexp"
	"sort"
	"strings"
)

// Coin describes a tracked asset and how to look it up elsewhere.
type Coin struct {
	// ID is the CoinGecko identifier.
	ID     string
	Name   string
	Symbol string
	// Search is the news and video query term.
	Search string
	// Aliases are lowercase words that mark a headline as relevant.
	Aliases   []string
	Subreddit string
	// Chart is the TradingView symbol.
	Chart string
	// OnChain names the on-chain source for the coin, if any.
	OnChain string
}

var knownCoins = []Coin{
	{ID: "ripple", Name: "Ripple", Symbol: "XRP", Search: "XRP", Aliases: []string{"xrp", "ripple", "xrpl"}, Subreddit: "XRP", Chart: "XRPUSD", OnChain: "xrp_xrpscan"},
	{ID: "hedera-hashgraph", Name: "Hedera Hashgraph", Symbol: "HBAR", Search: "Hedera HBAR", Aliases: []string{"hbar", "hedera"}, Subreddit: "Hedera", Chart: "HBARUSD"},
	{ID: "stellar", Name: "Stellar", Symbol: "XLM", Search: "Stellar XLM", Aliases: []string{"xlm", "stellar lumens", "stellar network", "stellar development"}, Subreddit: "Stellar", Chart: "XLMUSD"},
	{ID: "xdce-crowd-sale", Name: "XDC", Symbol: "XDC", Search: "XDC Network", Aliases: []string{"xdc", "xinfin"}, Subreddit: "xdcnetwork", Chart: "XDCUSD"},
	{ID: "sui", Name: "Sui", Symbol: "SUI", Search: "Sui crypto", Aliases: []string{"sui network", "sui blockchain", "sui token"}, Subreddit: "sui", Chart: "SUIUSD"},
	{ID: "ondo-finance", Name: "Ondo", Symbol: "ONDO", Search: "Ondo crypto", Aliases: []string{"ondo"}, Subreddit: "ondofinance", Chart: "ONDOUSD"},
	{ID: "algorand", Name: "Algorand", Symbol: "ALGO", Search: "Algorand ALGO", Aliases: []string{"algo", "algorand"}, Subreddit: "algorand", Chart: "ALGOUSD"},
	{ID: "casper-network", Name: "Casper", Symbol: "CSPR", Search: "Casper CSPR", Aliases: []string{"cspr", "casper network"}, Subreddit: "CasperNetwork", Chart: "CSPRUSD"},
	{ID: "bitcoin", Name: "Bitcoin", Symbol: "BTC", Search: "Bitcoin", Aliases: []string{"btc", "bitcoin", "xbt"}, Subreddit: "Bitcoin", Chart: "BTCUSD", OnChain: "btc_mempool"},
	{ID: "ethereum", Name: "Ethereum", Symbol: "ETH", Search: "Ethereum", Aliases: []string{"eth", "ethereum", "ether"}, Subreddit: "ethereum", Chart: "ETHUSD", OnChain: "eth_blockscout"},
	{ID: "cardano", Name: "Cardano", Symbol: "ADA", Search: "Cardano ADA", Aliases: []string{"ada", "cardano"}, Subreddit: "cardano", Chart: "ADAUSD", OnChain: "ada_koios"},
	{ID: "solana", Name: "Solana", Symbol: "SOL", Search: "Solana", Aliases: []string{"sol", "solana"}, Subreddit: "solana", Chart: "SOLUSD"},
	{ID: "dogecoin", Name: "Dogecoin", Symbol: "DOGE", Search: "Dogecoin", Aliases: []string{"doge", "dogecoin"}, Subreddit: "dogecoin", Chart: "DOGEUSD"},
	{ID: "chainlink", Name: "Chainlink", Symbol: "LINK", Search: "Chainlink LINK", Aliases: []string{"chainlink"}, Subreddit: "Chainlink", Chart: "LINKUSD"},
}

var registry = func() map[string]Coin {
	m := make(map[string]Coin, len(knownCoins))
	for _, c := range knownCoins {
		m[c.ID] = c
	}
	return m
}()

// DefaultCoinIDs is the tracked set when COINS is not configured.
var DefaultCoinIDs = []string{
	"ripple", "hedera-hashgraph", "stellar", "xdce-crowd-sale", "sui",
	"ondo-finance", "algorand", "casper-network", "bitcoin", "ethereum",
}

// LookupCoin returns the registered coin for id. Unknown ids get a minimal
// entry derived from the id itself so they can still be quoted.
func LookupCoin(id string) Coin {
	id = strings.ToLower(strings.TrimSpace(id))
	if c, ok := registry[id]; ok {
		return c
	}
	name := strings.ReplaceAll(id, "-", " ")
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}
	return Coin{ID: id, Name: name, Search: name, Aliases: []string{strings.ToLower(name)}}
}

// Coins resolves ids in order.
func Coins(ids []string) []Coin {
	out := make([]Coin, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		out = append(out, LookupCoin(id))
	}
	return out
}

// ChartURL links to the coin's TradingView chart.
func (c Coin) ChartURL() string {
	if c.Chart == "" {
		return ""
	}
	return "https://www.tradingview.com/symbols/" + c.Chart + "/"
}

var tokenRx = regexp.MustCompile(`\$?[A-Za-z]{2,10}`)

// Mentions reports whether text refers to the coin by ticker, name or
// alias. Short terms only match whole tokens so "ALGO" does not match
// "algorithm" and "Sui" does not match "suite".
func (c Coin) Mentions(text string) bool {
	lower := strings.ToLower(text)
	tokens := make(map[string]struct{})
	for _, raw := range tokenRx.FindAllString(lower, -1) {
		tokens[strings.TrimPrefix(raw, "$")] = struct{}{}
	}

	terms := append([]string{strings.ToLower(c.Symbol), strings.ToLower(c.Name)}, c.Aliases...)
	for _, term := range terms {
		switch {
		case term == "":
		case strings.Contains(term, " ") || len(term) > 4:
			if strings.Contains(lower, term) {
				return true
			}
		default:
			if _, ok := tokens[term]; ok {
				return true
			}
		}
	}
	return false
}

// MentionedCoins lists the registered coin ids that text mentions.
func MentionedCoins(text string) []string {
	var out []string
	for id, c := range registry {
		if c.Mentions(text) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
