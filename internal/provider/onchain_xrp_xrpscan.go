package provider

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/trace"
)

// XRPScanOnChainProvider combines the fee queue and server load from XRPScan.
type XRPScanOnChainProvider struct {
	explorer
}

func NewXRPScanOnChainProvider(tracer trace.Tracer, baseURL string) *XRPScanOnChainProvider {
	return &XRPScanOnChainProvider{newExplorer(tracer, "xrp_xrpscan", baseURL, "https://api.xrpscan.com")}
}

type xrpFees struct {
	Queue    flexFloat `json:"current_queue_size"`
	Expected flexFloat `json:"expected_ledger_size"`
	Drops    struct {
		Median flexFloat `json:"median_fee"`
	} `json:"drops"`
}

type xrpServerInfo struct {
	Info struct {
		LoadFactor flexFloat `json:"load_factor"`
	} `json:"info"`
}

func (p *XRPScanOnChainProvider) FetchSnapshot(ctx context.Context) (*OnChainSnapshot, error) {
	ctx, span := p.span(ctx)
	defer span.End()

	var fees xrpFees
	if err := p.getJSON(ctx, "/api/v1/network/fee", nil, &fees); err != nil {
		return nil, err
	}
	var server xrpServerInfo
	if err := p.getJSON(ctx, "/api/v1/network/server_info", nil, &server); err != nil {
		return nil, err
	}

	queue := float64(fees.Queue)
	expected := math.Max(float64(fees.Expected), 1)
	load := float64(server.Info.LoadFactor)
	if load <= 0 {
		load = 1
	}

	// A backed-up fee queue counts against the score.
	score := 0.40*deviation(load, 1, 5) -
		0.40*bounded(queue/expected-0.35) -
		0.20*deviation(float64(fees.Drops.Median), 128_000, 300_000)

	return p.snapshot("XRP", score,
		fmt.Sprintf("Ledger queue %.0f/%.0f, load x%.1f", queue, expected, load)), nil
}
