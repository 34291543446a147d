package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// FearGreedProvider reads the alternative.me crypto Fear & Greed index.
type FearGreedProvider struct {
	explorer
}

func NewFearGreedProvider(tracer trace.Tracer) *FearGreedProvider {
	e := newExplorer(tracer, "feargreed", "", "https://api.alternative.me")
	e.client.Timeout = 15 * time.Second
	return &FearGreedProvider{e}
}

type fearGreedRow struct {
	Value          flexFloat `json:"value"`
	Classification string    `json:"value_classification"`
	Timestamp      flexFloat `json:"timestamp"`
	UpdatesIn      flexFloat `json:"time_until_update"`
}

func (p *FearGreedProvider) FetchLatest(ctx context.Context) (*FearGreedPoint, error) {
	ctx, span := p.tracer.Start(ctx, "feargreed.fetch-latest")
	defer span.End()

	var payload struct {
		Data []fearGreedRow `json:"data"`
	}
	if err := p.getJSON(ctx, "/fng/", url.Values{"limit": {"1"}}, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, errors.New("feargreed: empty index")
	}

	row := payload.Data[0]
	if row.Value < 0 || row.Value > 100 {
		return nil, fmt.Errorf("feargreed: value %v out of range", float64(row.Value))
	}
	ts := int64(row.Timestamp)
	if ts > 1e12 {
		ts /= 1000
	}
	return &FearGreedPoint{
		Value:          int(row.Value),
		Classification: strings.TrimSpace(row.Classification),
		Timestamp:      time.Unix(ts, 0).UTC(),
		UpdatesIn:      time.Duration(max(int64(row.UpdatesIn), 0)) * time.Second,
	}, nil
}
