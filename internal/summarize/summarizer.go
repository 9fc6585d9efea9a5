package summarize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Summarizer condenses article text.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (string, error)
	// Model names the summarizer in the summary_model field.
	Model() string
}

var errDisabled = errors.New("openai client disabled: missing OPENAI_API_KEY")

// Client implements Summarizer using the OpenAI chat completion API.
type Client struct {
	client       *openai.Client
	model        string
	maxSentences int
	logger       *zap.Logger
	activated    bool
}

// NewClient builds a new Summarizer. If apiKey is empty, calls fail with errDisabled.
func NewClient(apiKey, model, baseURL string, maxSentences int, logger *zap.Logger) *Client {
	var cli *openai.Client
	activated := apiKey != ""
	if activated {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		cli = openai.NewClientWithConfig(cfg)
	}
	if maxSentences <= 0 {
		maxSentences = 5
	}
	return &Client{
		client:       cli,
		model:        model,
		maxSentences: maxSentences,
		logger:       logger.Named("summarize"),
		activated:    activated,
	}
}

// Ready indicates whether the client is usable.
func (c *Client) Ready() bool {
	return c.activated && c.client != nil
}

// Model returns the chat model name.
func (c *Client) Model() string {
	return c.model
}

// Summarize asks the model for a short extractive-style summary in the
// article's own language.
func (c *Client) Summarize(ctx context.Context, title, text string) (string, error) {
	if !c.Ready() {
		return "", errDisabled
	}

	systemPrompt := fmt.Sprintf("Eres un asistente de redacción de noticias. Resume el artículo en como máximo %d frases, "+
		"en el mismo idioma del texto, sin opiniones ni datos que no aparezcan en el artículo. "+
		"Devuelve solo el resumen, sin títulos ni viñetas.", c.maxSentences)
	userPrompt := fmt.Sprintf("Título: %s\n\nTexto:\n%s", title, trimText(text, 6000))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned by OpenAI")
	}

	summary := CleanText(cleanupResponse(resp.Choices[0].Message.Content))
	if summary == "" {
		c.logger.Debug("empty summary from model", zap.String("title", title))
		return "", errors.New("empty summary returned by OpenAI")
	}
	return summary, nil
}

// Lead summarizes by keeping the first sentences of the text. It needs no
// network and backs up the model when no API key is configured.
type Lead struct {
	MaxSentences int
}

var sentenceEnd = regexp.MustCompile(`[.!?…]+["»”')\]]*\s+`)

// Model returns "lead".
func (l Lead) Model() string { return "lead" }

// Summarize returns the leading sentences of text.
func (l Lead) Summarize(_ context.Context, _, text string) (string, error) {
	max := l.MaxSentences
	if max <= 0 {
		max = 5
	}
	text = CleanText(text)
	ends := sentenceEnd.FindAllStringIndex(text, max)
	if len(ends) < max {
		return text, nil
	}
	return strings.TrimSpace(text[:ends[max-1][1]]), nil
}

func trimText(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}

// cleanupResponse removes code fences the model sometimes wraps output in.
func cleanupResponse(s string) string {
	c := strings.TrimSpace(s)
	if strings.HasPrefix(c, "```") {
		if idx := strings.Index(c, "\n"); idx != -1 {
			c = c[idx+1:]
		}
		c = strings.TrimSuffix(c, "```")
		c = strings.TrimSpace(c)
	}
	return c
}
