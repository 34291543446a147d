// Package sentiment labels headlines bullish, neutral or bearish.
package sentiment

import (
	"context"
	"log/slog"
	"slices"
	"strings"
)

const (
	Bullish = "bullish"
	Neutral = "neutral"
	Bearish = "bearish"

	HeuristicModel = "heuristic:v2"

	defaultBatchSize = 24
)

// Item is a headline to score, keyed by the coin it was found for.
type Item struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt,omitempty"`
}

type Score struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
	Model      string  `json:"model"`
	Reason     string  `json:"reason"`
}

// BatchLLMScorer scores several items in one model call.
type BatchLLMScorer interface {
	ScoreBatch(ctx context.Context, items []Item) ([]Score, error)
}

// Scorer always produces a heuristic score and overrides it with the LLM's
// answer when one is configured and succeeds.
type Scorer struct {
	llm       BatchLLMScorer
	batchSize int
}

func NewScorer(llm BatchLLMScorer, batchSize int) *Scorer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Scorer{llm: llm, batchSize: batchSize}
}

// Score returns one score per item, in input order. A failed LLM batch
// keeps the heuristic scores for that batch; only cancellation is an error.
func (s *Scorer) Score(ctx context.Context, items []Item) ([]Score, error) {
	if len(items) == 0 {
		return nil, nil
	}

	out := make([]Score, len(items))
	pos := make(map[string]int, len(items))
	for i, item := range items {
		out[i] = Heuristic(item)
		pos[item.ID] = i
	}
	if s.llm == nil {
		return out, nil
	}

	for batch := range slices.Chunk(items, s.batchSize) {
		rows, err := s.llm.ScoreBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("llm sentiment scoring failed, keeping heuristic", "items", len(batch), "error", err)
			continue
		}
		for _, row := range rows {
			if i, ok := pos[row.ID]; ok {
				out[i] = merge(out[i], row)
			}
		}
	}
	return out, nil
}

// merge overlays a model answer on the heuristic baseline, bounding the
// numbers and normalizing the label.
func merge(base, row Score) Score {
	base.Score = clamp(row.Score, -1, 1)
	base.Confidence = clamp(row.Confidence, 0, 1)
	base.Label = normalizeLabel(row.Label, base.Score)
	base.Reason = strings.TrimSpace(row.Reason)
	if base.Reason == "" {
		base.Reason = "llm"
	}
	if row.Model != "" {
		base.Model = row.Model
	}
	return base
}

// normalizeLabel maps model vocabulary onto our three labels, falling back
// to the score when the label is missing or unknown.
func normalizeLabel(label string, score float64) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "bull", "bullish", "positive":
		return Bullish
	case "bear", "bearish", "negative":
		return Bearish
	case "neutral", "mixed":
		return Neutral
	default:
		return labelFor(score)
	}
}
