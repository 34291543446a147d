package provider

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// BTCMempoolOnChainProvider reads daily mempool statistics from mempool.space.
type BTCMempoolOnChainProvider struct {
	explorer
}

func NewBTCMempoolOnChainProvider(tracer trace.Tracer, baseURL string) *BTCMempoolOnChainProvider {
	return &BTCMempoolOnChainProvider{newExplorer(tracer, "btc_mempool", baseURL, "https://mempool.space")}
}

func (p *BTCMempoolOnChainProvider) FetchSnapshot(ctx context.Context) (*OnChainSnapshot, error) {
	ctx, span := p.span(ctx)
	defer span.End()

	var days []struct {
		Count      float64 `json:"count"`
		VBytesRate float64 `json:"vbytes_per_second"`
		MinFee     float64 `json:"min_fee"`
		TotalFee   float64 `json:"total_fee"`
	}
	if err := p.getJSON(ctx, "/api/v1/statistics/24h", nil, &days); err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, errors.New("btc_mempool: empty statistics")
	}

	d := days[0]
	// Cheap fees with heavy throughput reads as busy, not congested.
	score := 0.35*deviation(d.Count, 120_000, 180_000) +
		0.35*deviation(d.VBytesRate, 1_200, 2_400) +
		0.15*deviation(d.TotalFee, 2_000_000, 8_000_000) -
		0.15*deviation(d.MinFee, 5, 40)

	return p.snapshot("BTC", score,
		fmt.Sprintf("Mempool: %s tx/24h, min fee %.0f sat/vB", compact(d.Count), d.MinFee)), nil
}
