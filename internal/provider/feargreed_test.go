package provider

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestFearGreedFetchLatest(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    *FearGreedPoint
		wantErr string
	}{
		{
			name: "seconds timestamp",
			body: `{"data":[{"value":"63","value_classification":"Greed","timestamp":"1771009800","time_until_update":"1111"}]}`,
			want: &FearGreedPoint{Value: 63, Classification: "Greed", Timestamp: time.Unix(1771009800, 0).UTC(), UpdatesIn: 1111 * time.Second},
		},
		{
			name: "milliseconds timestamp",
			body: `{"data":[{"value":"20","value_classification":"Extreme Fear","timestamp":"1771009800000"}]}`,
			want: &FearGreedPoint{Value: 20, Classification: "Extreme Fear", Timestamp: time.Unix(1771009800, 0).UTC()},
		},
		{name: "out of range", body: `{"data":[{"value":"140","timestamp":"1771009800"}]}`, wantErr: "out of range"},
		{name: "empty", body: `{"data":[]}`, wantErr: "empty index"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewFearGreedProvider(trace.NewNoopTracerProvider().Tracer("test"))
			p.baseURL = "https://example.com"
			p.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				require.Equal(t, "/fng/", req.URL.Path)
				require.Equal(t, "1", req.URL.Query().Get("limit"))
				return jsonResponse(http.StatusOK, tc.body), nil
			})}

			point, err := p.FetchLatest(context.Background())
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, point)
		})
	}
}
