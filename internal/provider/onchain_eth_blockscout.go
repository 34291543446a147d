package provider

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// ETHBlockscoutOnChainProvider reads network stats from a Blockscout instance.
type ETHBlockscoutOnChainProvider struct {
	explorer
}

func NewETHBlockscoutOnChainProvider(tracer trace.Tracer, baseURL string) *ETHBlockscoutOnChainProvider {
	return &ETHBlockscoutOnChainProvider{newExplorer(tracer, "eth_blockscout", baseURL, "https://eth.blockscout.com")}
}

func (p *ETHBlockscoutOnChainProvider) FetchSnapshot(ctx context.Context) (*OnChainSnapshot, error) {
	ctx, span := p.span(ctx)
	defer span.End()

	var stats struct {
		TxToday     flexFloat `json:"transactions_today"`
		Utilization flexFloat `json:"network_utilization_percentage"`
		GasPrices   struct {
			Average flexFloat `json:"average"`
		} `json:"gas_prices"`
	}
	if err := p.getJSON(ctx, "/api/v2/stats", nil, &stats); err != nil {
		return nil, err
	}

	tx, util, gas := float64(stats.TxToday), float64(stats.Utilization), float64(stats.GasPrices.Average)
	score := 0.45*deviation(tx, 1_500_000, 1_500_000) +
		0.35*deviation(util, 45, 55) -
		0.20*deviation(gas, 25, 120)

	return p.snapshot("ETH", score,
		fmt.Sprintf("Tx today: %s, network %.0f%% utilized", compact(tx), util)), nil
}
