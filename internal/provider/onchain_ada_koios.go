package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/trace"
)

// ADAKoiosOnChainProvider reads the current Cardano epoch from Koios.
type ADAKoiosOnChainProvider struct {
	explorer
}

func NewADAKoiosOnChainProvider(tracer trace.Tracer, baseURL string) *ADAKoiosOnChainProvider {
	return &ADAKoiosOnChainProvider{newExplorer(tracer, "ada_koios", baseURL, "https://api.koios.rest")}
}

type koiosTotals struct {
	Epoch int       `json:"epoch_no"`
	Fees  flexFloat `json:"fees"`
}

type koiosEpoch struct {
	TxCount float64 `json:"tx_count"`
	Start   int64   `json:"start_time"`
	End     int64   `json:"end_time"`
}

// hourlyPace is the epoch's transactions per hour, treating a missing or
// inverted time range as one hour.
func (e koiosEpoch) hourlyPace() float64 {
	hours := float64(e.End-e.Start) / 3600
	if hours <= 0 {
		hours = 1
	}
	return e.TxCount / hours
}

func (p *ADAKoiosOnChainProvider) FetchSnapshot(ctx context.Context) (*OnChainSnapshot, error) {
	ctx, span := p.span(ctx)
	defer span.End()

	var totals []koiosTotals
	if err := p.getJSON(ctx, "/api/v1/totals", nil, &totals); err != nil {
		return nil, err
	}
	if len(totals) == 0 {
		return nil, errors.New("ada_koios: empty totals")
	}
	latest := totals[0]

	var epochs []koiosEpoch
	query := url.Values{"_epoch_no": {strconv.Itoa(latest.Epoch)}}
	if err := p.getJSON(ctx, "/api/v1/epoch_info", query, &epochs); err != nil {
		return nil, err
	}
	if len(epochs) == 0 {
		return nil, fmt.Errorf("ada_koios: no info for epoch %d", latest.Epoch)
	}

	epoch := epochs[0]
	pace := epoch.hourlyPace()
	score := 0.50*deviation(epoch.TxCount, 120_000, 180_000) +
		0.25*deviation(float64(latest.Fees), 45e9, 120e9) +
		0.25*deviation(pace, 300, 800)

	return p.snapshot("ADA", score,
		fmt.Sprintf("Epoch %d: %s tx, %s tx/h", latest.Epoch, compact(epoch.TxCount), compact(pace))), nil
}
