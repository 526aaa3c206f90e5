package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/conorfennell/recall/internal/domain"
)

// ErrUnavailable is returned when no API key is configured.
var ErrUnavailable = errors.New("card generation is not configured")

// Draft is a generated question/answer pair not yet stored as a card.
type Draft struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Request describes a deck to generate.
type Request struct {
	Topic      string
	Count      int
	Complexity domain.Complexity
}

// Generator produces card content. It is implemented by *OpenAI.
type Generator interface {
	GenerateCards(ctx context.Context, req Request) ([]Draft, error)
	Explain(ctx context.Context, question, answer string, kind domain.ExplanationKind) (string, error)
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI returns a generator for the given endpoint. With an empty API
// key every call fails with ErrUnavailable.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	if apiKey == "" {
		return &OpenAI{}
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: 2 * time.Minute,
	}
}

func (g *OpenAI) disabled() bool {
	return g == nil || g.client == nil
}

const cardsSystemPrompt = "You write flashcards that build durable understanding of complex topics. " +
	"Each card asks one focused question and gives a concise, correct answer."

// GenerateCards asks the model for req.Count question/answer pairs.
func (g *OpenAI) GenerateCards(ctx context.Context, req Request) ([]Draft, error) {
	if g.disabled() {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(req.Topic) == "" || req.Count <= 0 {
		return nil, fmt.Errorf("%w: topic and a positive count are required", domain.ErrInvalidInput)
	}

	prompt := fmt.Sprintf(`Create %d flashcards about %q for a learner at %s level.
Build from foundations to nuance and avoid cards that are trivially easy or impossibly hard for the level.

Strictly respond with a JSON object {"cards":[{"question":"","answer":""}]}.`,
		req.Count, req.Topic, strings.ToLower(string(req.Complexity)))

	content, err := g.complete(ctx, cardsSystemPrompt, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("generate cards: %w", err)
	}

	var out struct {
		Cards []Draft `json:"cards"`
	}
	if err := json.Unmarshal([]byte(extractJSON(content)), &out); err != nil {
		return nil, fmt.Errorf("unmarshal generated cards: %w", err)
	}

	drafts := out.Cards[:0]
	for _, d := range out.Cards {
		d.Question = strings.TrimSpace(d.Question)
		d.Answer = strings.TrimSpace(d.Answer)
		if d.Question != "" && d.Answer != "" {
			drafts = append(drafts, d)
		}
	}
	if len(drafts) == 0 {
		return nil, errors.New("model returned no usable cards")
	}
	return drafts, nil
}

var explainPrompts = map[domain.ExplanationKind]string{
	domain.ELI5: "Explain this as if talking to a 5-year-old child. Use simple words, short sentences and " +
		"everyday analogies. Avoid technical terms completely. Keep it to 2-4 sentences.",
	domain.ELI10: "Explain this as if talking to a 10-year-old child. Use analogies and examples from everyday " +
		"life, minimize technical terms and explain any you use. Keep it to 3-5 sentences.",
	domain.Mnemonic: "Create a memorable mnemonic, memory trick or memory palace image that makes this answer " +
		"easy to recall. Keep it short.",
}

// Explain produces a simplified explanation or mnemonic for a card.
func (g *OpenAI) Explain(ctx context.Context, question, answer string, kind domain.ExplanationKind) (string, error) {
	if g.disabled() {
		return "", ErrUnavailable
	}
	instruction, ok := explainPrompts[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown explanation kind %q", domain.ErrInvalidInput, kind)
	}

	prompt := fmt.Sprintf("Original Question: %s\nOriginal Answer: %s\n\n%s\n\nProvide ONLY the explanation, no preamble.",
		question, answer, instruction)
	content, err := g.complete(ctx, "You explain complex ideas simply and memorably.", prompt, false)
	if err != nil {
		return "", fmt.Errorf("explain card: %w", err)
	}
	return strings.TrimSpace(content), nil
}

func (g *OpenAI) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.4,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// extractJSON strips markdown fences and surrounding prose from a model
// answer, keeping the outermost JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
