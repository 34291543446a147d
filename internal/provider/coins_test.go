package provider

import "testing"

func TestCoinMentions(t *testing.T) {
	tests := []struct {
		coin string
		text string
		want bool
	}{
		{"ripple", "CME XRP futures debut hits $15M in daily volume", true},
		{"ripple", "Ripple wins appeal", true},
		{"algorand", "New algorithm speeds up compilers", false},
		{"algorand", "$ALGO rallies after governance vote", true},
		{"sui", "A new suite of tools for developers", false},
		{"sui", "Sui network sees record TVL", true},
		{"casper-network", "JUCO big man Stephen Osei commits to Kansas State", false},
		{"bitcoin", "BTC breaks out above resistance", true},
	}
	for _, tc := range tests {
		coin := LookupCoin(tc.coin)
		if got := coin.Mentions(tc.text); got != tc.want {
			t.Errorf("%s mentions %q = %v, want %v", tc.coin, tc.text, got, tc.want)
		}
	}
}

func TestLookupCoinUnknown(t *testing.T) {
	c := LookupCoin(" Pepe-Coin ")
	if c.ID != "pepe-coin" || c.Name != "Pepe coin" {
		t.Fatalf("unexpected fallback coin: %+v", c)
	}
	if c.ChartURL() != "" {
		t.Fatalf("expected no chart for unknown coin")
	}
}

func TestCoinsSkipsBlank(t *testing.T) {
	coins := Coins([]string{"ripple", " ", "bitcoin"})
	if len(coins) != 2 || coins[1].Symbol != "BTC" {
		t.Fatalf("unexpected coins: %+v", coins)
	}
}

func TestDefaultCoinsAreRegistered(t *testing.T) {
	for _, id := range DefaultCoinIDs {
		if _, ok := registry[id]; !ok {
			t.Fatalf("default coin %s is not registered", id)
		}
	}
}

func TestMentionedCoins(t *testing.T) {
	got := MentionedCoins("Bitcoin and Ethereum ETFs see inflows")
	if len(got) != 2 || got[0] != "bitcoin" || got[1] != "ethereum" {
		t.Fatalf("unexpected coins: %v", got)
	}
}
