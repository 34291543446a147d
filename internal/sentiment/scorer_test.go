package sentiment

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
)

func TestScorerHeuristicFallback(t *testing.T) {
	scorer := NewScorer(nil, 10)
	out, err := scorer.Score(context.Background(), []Item{{ID: "bitcoin", Title: "Bitcoin breakout", Excerpt: "bull trend"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Model != HeuristicModel || out[0].Label != Bullish {
		t.Fatalf("unexpected score: %+v", out)
	}
}

func TestScorerUsesLLMWhenAvailable(t *testing.T) {
	scorer := NewScorer(stubLLMScorer{scores: []Score{{
		ID: "ripple", Score: 0.8, Confidence: 0.9, Label: "positive", Model: "llm:gpt-4o-mini",
	}}}, 10)

	out, err := scorer.Score(context.Background(), []Item{{ID: "ripple", Title: "neutral"}, {ID: "sui", Title: "hack"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Model != "llm:gpt-4o-mini" || out[0].Label != Bullish || out[0].Reason != "llm" {
		t.Fatalf("expected llm override, got %+v", out[0])
	}
	if out[1].Model != HeuristicModel || out[1].Label != Bearish {
		t.Fatalf("expected heuristic for unscored item, got %+v", out[1])
	}
}

func TestScorerFallsBackWhenLLMErrors(t *testing.T) {
	scorer := NewScorer(stubLLMScorer{err: errors.New("boom")}, 10)
	out, err := scorer.Score(context.Background(), []Item{{ID: "sui", Title: "hack and dump", Excerpt: "bear"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Model != HeuristicModel || out[0].Label != Bearish {
		t.Fatalf("expected heuristic fallback, got %+v", out[0])
	}
}

func TestHeuristicEmpty(t *testing.T) {
	s := Heuristic(Item{ID: "x"})
	if s.Label != Neutral || s.Reason != "empty-text" {
		t.Fatalf("unexpected score: %+v", s)
	}
}

func TestOpenAIScorerParsesFencedJSON(t *testing.T) {
	completion := &openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Content: "```json\n[{\"id\":\"ripple\",\"score\":2,\"confidence\":0.7,\"label\":\"bullish\",\"reason\":\"etf\"},{\"id\":\"ghost\",\"score\":1}]\n```"},
	}}}
	s := &OpenAIScorer{client: stubCompleter{completion: completion}, model: "m"}

	out, err := s.ScoreBatch(context.Background(), []Item{{ID: "ripple", Title: "XRP ETF"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].ID != "ripple" || out[0].Model != "llm:m" {
		t.Fatalf("unexpected scores: %+v", out)
	}

	// Clamping happens when the scorer merges rows.
	merged, _ := NewScorer(s, 5).Score(context.Background(), []Item{{ID: "ripple", Title: "XRP ETF"}})
	if merged[0].Score != 1 {
		t.Fatalf("expected clamped score, got %v", merged[0].Score)
	}
}

func TestNewOpenAIScorerWithoutKey(t *testing.T) {
	if NewOpenAIScorer(" ", "") != nil {
		t.Fatalf("expected nil scorer without key")
	}
}

type stubLLMScorer struct {
	scores []Score
	err    error
}

func (s stubLLMScorer) ScoreBatch(context.Context, []Item) ([]Score, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]Score(nil), s.scores...), nil
}

type stubCompleter struct {
	completion *openai.ChatCompletion
	err        error
}

func (s stubCompleter) CreateChatCompletion(context.Context, openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return s.completion, s.err
}

func TestHeuristicPhrasesAndWordBoundaries(t *testing.T) {
	// "bank" must not read as "ban".
	if s := Heuristic(Item{ID: "x", Title: "Bank partners with exchange"}); s.Label != Neutral {
		t.Fatalf("expected neutral, got %+v", s)
	}
	if s := Heuristic(Item{ID: "x", Title: "Solana hits all-time high"}); s.Label != Bullish {
		t.Fatalf("expected bullish phrase match, got %+v", s)
	}
	if s := Heuristic(Item{ID: "x", Title: "Token collapses after rug pull"}); s.Label != Bearish {
		t.Fatalf("expected bearish phrase match, got %+v", s)
	}
}

func TestNormalizeLabelFallsBackToScore(t *testing.T) {
	cases := []struct {
		label string
		score float64
		want  string
	}{
		{"Positive", -0.9, Bullish},
		{"mixed", 0.9, Neutral},
		{"", 0.6, Bullish},
		{"???", -0.6, Bearish},
	}
	for _, tc := range cases {
		if got := normalizeLabel(tc.label, tc.score); got != tc.want {
			t.Fatalf("normalizeLabel(%q, %v) = %s, want %s", tc.label, tc.score, got, tc.want)
		}
	}
}

func TestParseScoresAcceptsWrappedObject(t *testing.T) {
	rows, err := parseScores(`{"scores":[{"id":"bitcoin","score":0.4,"label":"bullish"}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "bitcoin" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if _, err := parseScores("not json"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestScorerBatchesItems(t *testing.T) {
	llm := &countingLLM{}
	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e"}}
	if _, err := NewScorer(llm, 2).Score(context.Background(), items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int{2, 2, 1}; len(llm.sizes) != 3 || llm.sizes[0] != want[0] || llm.sizes[2] != want[2] {
		t.Fatalf("unexpected batch sizes: %v", llm.sizes)
	}
}

type countingLLM struct {
	sizes []int
}

func (c *countingLLM) ScoreBatch(_ context.Context, items []Item) ([]Score, error) {
	c.sizes = append(c.sizes, len(items))
	return nil, nil
}
