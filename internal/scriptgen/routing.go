package scriptgen

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Local server defaults.
const (
	DefaultCompatURL = "http://127.0.0.1:1234/v1"
	DefaultOllamaURL = "http://127.0.0.1:11434"

	defaultCompatModel = "qwen2.5-7b-instruct"
	defaultOllamaModel = "llama3"
	defaultOpenAIModel = "gpt-4o-mini"

	portCheckTimeout = 200 * time.Millisecond
)

// BackendConfig selects and configures the script backend.
type BackendConfig struct {
	// Backend is auto, template, ollama, openai_compat or openai. Unknown
	// values mean auto.
	Backend string
	Model   string
	// BaseURL points at an OpenAI compatible server. When set, auto mode
	// prefers it if it accepts connections.
	BaseURL string
	APIKey  string
	// CompatURL and OllamaURL are the local servers tried in auto mode.
	CompatURL string
	OllamaURL string
	// OpenAIKey and OpenAIBase configure the hosted openai backend.
	OpenAIKey  string
	OpenAIBase string
}

func (c BackendConfig) withDefaults() BackendConfig {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendTemplate, BackendOllama, BackendCompat, BackendOpenAI:
	default:
		c.Backend = BackendAuto
	}
	if c.CompatURL == "" {
		c.CompatURL = DefaultCompatURL
	}
	if c.OllamaURL == "" {
		c.OllamaURL = DefaultOllamaURL
	}
	return c
}

// Endpoints reports which local servers accept connections.
type Endpoints struct {
	BaseURL    string
	CompatURL  string
	CompatOpen bool
	OllamaURL  string
	OllamaOpen bool
}

// DetectLocalEndpoints checks whether the configured servers accept TCP
// connections. No HTTP request is made. An explicit BaseURL replaces the
// default compatible server.
func DetectLocalEndpoints(ctx context.Context, c BackendConfig) Endpoints {
	c = c.withDefaults()
	out := Endpoints{BaseURL: c.BaseURL, CompatURL: c.CompatURL, OllamaURL: c.OllamaURL}
	if c.BaseURL != "" {
		out.CompatURL = c.BaseURL
	}
	out.CompatOpen = portOpen(ctx, out.CompatURL)
	out.OllamaOpen = portOpen(ctx, out.OllamaURL)
	return out
}

// PickBackendName resolves auto mode: a reachable compatible server first,
// then Ollama, then the template.
func PickBackendName(ctx context.Context, c BackendConfig) string {
	c = c.withDefaults()
	if c.Backend != BackendAuto {
		return c.Backend
	}
	ep := DetectLocalEndpoints(ctx, c)
	switch {
	case ep.CompatOpen:
		return BackendCompat
	case ep.OllamaOpen:
		return BackendOllama
	default:
		return BackendTemplate
	}
}

// NewBackend builds the backend PickBackendName selects. The hosted openai
// backend without a key degrades to the template.
func NewBackend(ctx context.Context, c BackendConfig, logger *zap.Logger) Backend {
	c = c.withDefaults()
	name := PickBackendName(ctx, c)
	logger.Debug("script backend selected", zap.String("requested", c.Backend), zap.String("backend", name))

	switch name {
	case BackendOllama:
		return NewChatBackend(BackendOllama, strings.TrimRight(c.OllamaURL, "/")+"/v1", "", firstNonEmpty(c.Model, defaultOllamaModel))
	case BackendCompat:
		return NewChatBackend(BackendCompat, firstNonEmpty(c.BaseURL, c.CompatURL), c.APIKey, firstNonEmpty(c.Model, defaultCompatModel))
	case BackendOpenAI:
		key := firstNonEmpty(c.APIKey, c.OpenAIKey)
		if key == "" {
			logger.Warn("openai script backend needs OPENAI_API_KEY, using template")
			return Template{}
		}
		return NewChatBackend(BackendOpenAI, c.OpenAIBase, key, firstNonEmpty(c.Model, defaultOpenAIModel))
	default:
		return Template{}
	}
}

func portOpen(ctx context.Context, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	d := net.Dialer{Timeout: portCheckTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
