package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"

	systemPrompt = `You label crypto news headlines for a market update bot.
Input is a JSON array of {id, title, excerpt}. Answer with ONLY a JSON array, one object per input id:
{"id": string, "score": number in [-1,1], "confidence": number in [0,1], "label": "bullish"|"neutral"|"bearish", "reason": short phrase}.
Judge the likely price impact on the named coin, not general tone. No markdown.`
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

type openAIClient struct {
	client openai.Client
}

func (c *openAIClient) CreateChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}

// OpenAIScorer asks a chat model for sentiment labels.
type OpenAIScorer struct {
	client chatCompleter
	model  string
}

// NewOpenAIScorer returns nil when apiKey is empty.
func NewOpenAIScorer(apiKey, model string) *OpenAIScorer {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIScorer{
		client: &openAIClient{client: openai.NewClient(option.WithAPIKey(apiKey))},
		model:  model,
	}
}

func (s *OpenAIScorer) ScoreBatch(ctx context.Context, items []Item) ([]Score, error) {
	if s == nil || s.client == nil || len(items) == 0 {
		return nil, nil
	}

	input, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	completion, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(input)),
		},
	})
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("empty scorer completion")
	}

	rows, err := parseScores(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	asked := make(map[string]bool, len(items))
	for _, item := range items {
		asked[item.ID] = true
	}
	out := rows[:0]
	for _, row := range rows {
		if asked[row.ID] {
			row.Model = "llm:" + s.model
			out = append(out, row)
		}
	}
	return out, nil
}

// parseScores accepts a bare array or an object wrapping it under
// "scores", optionally inside a markdown code fence.
func parseScores(content string) ([]Score, error) {
	body := []byte(trimCodeFence(content))
	if bytes.HasPrefix(body, []byte("{")) {
		var wrapped struct {
			Scores []Score `json:"scores"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("parse scorer json: %w", err)
		}
		return wrapped.Scores, nil
	}
	var rows []Score
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse scorer json: %w", err)
	}
	return rows, nil
}

func trimCodeFence(v string) string {
	v = strings.TrimSpace(v)
	rest, ok := strings.CutPrefix(v, "```")
	if !ok {
		return v
	}
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "[{") {
		rest = rest[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), "```"))
}
