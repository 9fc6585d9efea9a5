// Package scriptgen turns summarized news items into narratable podcast
// script segments using a chat model, with a deterministic offline fallback.
package scriptgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Backend names accepted by NewBackend.
const (
	BackendAuto     = "auto"
	BackendTemplate = "template"
	BackendOllama   = "ollama"
	BackendCompat   = "openai_compat"
	BackendOpenAI   = "openai"
)

// Params are the generation knobs shared by every backend.
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
	TopP        float32
	Seed        *int
	Stop        []string
}

// Result is one generated script block.
type Result struct {
	Text  string
	Model string
	Usage openai.Usage
}

// Backend generates a script from chat messages.
type Backend interface {
	Name() string
	Generate(ctx context.Context, messages []openai.ChatCompletionMessage, p Params) (Result, error)
}

var errEmptyMessages = errors.New("empty messages")

// ChatBackend talks to any server exposing the OpenAI chat completion API:
// OpenAI itself, LM Studio, llama.cpp or Ollama's /v1 endpoint.
type ChatBackend struct {
	name         string
	client       *openai.Client
	defaultModel string
}

// NewChatBackend builds a chat backend. apiKey may be empty for local servers.
func NewChatBackend(name, baseURL, apiKey, defaultModel string) *ChatBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &ChatBackend{
		name:         name,
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

func (b *ChatBackend) Name() string { return b.name }

func (b *ChatBackend) Generate(ctx context.Context, messages []openai.ChatCompletionMessage, p Params) (Result, error) {
	msgs := normalizeMessages(messages)
	if len(msgs) == 0 {
		return Result{}, fmt.Errorf("%s: %w", b.name, errEmptyMessages)
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = b.defaultModel
	}
	if model == "" {
		return Result{}, fmt.Errorf("%s: missing model name", b.name)
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		TopP:        p.TopP,
		Seed:        p.Seed,
		Stop:        p.Stop,
	})
	if err != nil {
		return Result{Model: model}, fmt.Errorf("%s: %w", b.name, err)
	}
	if resp.Model != "" {
		model = resp.Model
	}
	out := Result{Model: model, Usage: resp.Usage}
	if len(resp.Choices) > 0 {
		out.Text = cleanupResponse(resp.Choices[0].Message.Content)
	}
	if out.Text == "" {
		return out, fmt.Errorf("%s_empty_response", b.name)
	}
	return out, nil
}

// normalizeMessages trims contents and drops empty messages.
func normalizeMessages(messages []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		m.Content = strings.TrimSpace(m.Content)
		if m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func cleanupResponse(s string) string {
	c := strings.TrimSpace(s)
	if strings.HasPrefix(c, "```") {
		if idx := strings.Index(c, "\n"); idx != -1 {
			c = c[idx+1:]
		}
		c = strings.TrimSpace(strings.TrimSuffix(c, "```"))
	}
	return c
}
