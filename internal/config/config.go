package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHL             = "es"
	defaultGL             = "ES"
	defaultCEID           = "ES:es"
	defaultConcurrency    = 5
	defaultMaxPages       = 5
	defaultLocale         = "es-ES"
	defaultAcceptLanguage = "es-ES,es;q=0.9"
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultNetworkSecs    = 20
	defaultNavigationSecs = 25
	defaultSettleSecs     = 15
	defaultMaxRedirects   = 10
	defaultRecentDays     = 3
	defaultMaxArticles    = 100
	defaultOutDir         = "data/staging"
	defaultPollMinutes    = 30
	defaultBindAddr       = ":8082"
	defaultMaxItemStore   = 50
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultScriptBackend  = "auto"
	defaultScriptModel    = "llama3"
	defaultScriptStyle    = "educativo"
	defaultScriptItems    = 10
	defaultOllamaURL      = "http://127.0.0.1:11434"
	defaultDBPort         = 3306
	defaultDBUser         = "root"
	defaultDBName         = "newspeaker"
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	// Locale parameters appended to aggregator article links.
	HL   string
	GL   string
	CEID string

	Concurrency       int
	MaxPages          int
	Headless          bool
	ChromePath        string
	Locale            string
	AcceptLanguage    string
	UserAgent         string
	NetworkTimeout    time.Duration
	NavigationTimeout time.Duration
	SettleTimeout     time.Duration
	MaxRedirects      int

	FeedQuery   string
	RecentDays  int
	MaxArticles int
	OutDir      string

	PollInterval time.Duration
	BindAddr     string
	MaxItems     int

	OpenAIKey   string
	OpenAIModel string
	OpenAIBase  string

	// Script generation. ScriptBackend is one of auto, template, ollama,
	// openai_compat or openai.
	ScriptBackend  string
	ScriptBaseURL  string
	ScriptModel    string
	ScriptStyle    string
	ScriptMaxItems int
	OllamaURL      string

	DBHost string
	DBPort int
	DBUser string
	DBPass string
	DBName string

	LogLevel  string
	LogFormat string
	LogFile   string

	// Warnings lists environment values that were rejected in favour of defaults.
	Warnings []string
}

// Load reads environment variables, filling in reasonable defaults.
func Load() Config {
	l := &loader{}
	cfg := Config{
		HL:                l.stringWithDefault("GOOGLE_NEWS_HL", defaultHL),
		GL:                l.stringWithDefault("GOOGLE_NEWS_GL", defaultGL),
		CEID:              l.stringWithDefault("GOOGLE_NEWS_CEID", defaultCEID),
		Concurrency:       l.intWithDefault("RESOLVE_CONCURRENCY", defaultConcurrency),
		MaxPages:          l.intWithDefault("BROWSER_MAX_PAGES", defaultMaxPages),
		Headless:          l.boolWithDefault("BROWSER_HEADLESS", true),
		ChromePath:        os.Getenv("CHROME_PATH"),
		Locale:            l.stringWithDefault("BROWSER_LOCALE", defaultLocale),
		AcceptLanguage:    l.stringWithDefault("ACCEPT_LANGUAGE", defaultAcceptLanguage),
		UserAgent:         l.stringWithDefault("USER_AGENT", defaultUserAgent),
		NetworkTimeout:    l.durationFromSeconds("NETWORK_TIMEOUT_SECONDS", defaultNetworkSecs),
		NavigationTimeout: l.durationFromSeconds("NAVIGATION_TIMEOUT_SECONDS", defaultNavigationSecs),
		SettleTimeout:     l.durationFromSeconds("SETTLE_TIMEOUT_SECONDS", defaultSettleSecs),
		MaxRedirects:      l.intWithDefault("MAX_REDIRECTS", defaultMaxRedirects),
		FeedQuery:         strings.TrimSpace(os.Getenv("FEED_QUERY")),
		RecentDays:        l.intWithDefault("RECENT_DAYS", defaultRecentDays),
		MaxArticles:       l.intWithDefault("MAX_ARTICLES", defaultMaxArticles),
		OutDir:            l.stringWithDefault("OUT_DIR", defaultOutDir),
		PollInterval:      l.durationFromMinutes("POLL_INTERVAL_MINUTES", defaultPollMinutes),
		BindAddr:          l.stringWithDefault("BIND_ADDR", defaultBindAddr),
		MaxItems:          l.intWithDefault("MAX_ITEMS", defaultMaxItemStore),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       l.stringWithDefault("OPENAI_MODEL", defaultOpenAIModel),
		OpenAIBase:        os.Getenv("OPENAI_BASE_URL"),
		ScriptBackend:     strings.ToLower(l.stringWithDefault("NEWSPEAKER_BACKEND", defaultScriptBackend)),
		ScriptBaseURL:     strings.TrimSpace(os.Getenv("NEWSPEAKER_BASE_URL")),
		ScriptModel:       l.stringWithDefault("SCRIPT_MODEL", defaultScriptModel),
		ScriptStyle:       l.stringWithDefault("SCRIPT_STYLE", defaultScriptStyle),
		ScriptMaxItems:    l.intWithDefault("SCRIPT_MAX_ITEMS", defaultScriptItems),
		OllamaURL:         l.stringWithDefault("OLLAMA_URL", defaultOllamaURL),
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            l.intWithDefault("DB_PORT", defaultDBPort),
		DBUser:            l.stringWithDefault("DB_USER", defaultDBUser),
		DBPass:            os.Getenv("DB_PASSWORD"),
		DBName:            l.stringWithDefault("DB_NAME", defaultDBName),
		LogLevel:          l.stringWithDefault("LOG_LEVEL", defaultLogLevel),
		LogFormat:         l.stringWithDefault("LOG_FORMAT", defaultLogFormat),
		LogFile:           os.Getenv("LOG_FILE"),
	}
	cfg.Warnings = l.warnings
	return cfg
}

// StoreEnabled reports whether a MySQL host has been configured.
func (c Config) StoreEnabled() bool {
	return c.DBHost != ""
}

type loader struct {
	warnings []string
}

func (l *loader) warn(key, value string, fallback any) {
	l.warnings = append(l.warnings, fmt.Sprintf("invalid %s=%s, using default %v", key, value, fallback))
}

func (l *loader) stringWithDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (l *loader) intWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
		l.warn(key, v, fallback)
	}
	return fallback
}

func (l *loader) boolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
		l.warn(key, v, fallback)
	}
	return fallback
}

func (l *loader) durationFromSeconds(key string, fallback int) time.Duration {
	return time.Duration(l.intWithDefault(key, fallback)) * time.Second
}

func (l *loader) durationFromMinutes(key string, fallback int) time.Duration {
	return time.Duration(l.intWithDefault(key, fallback)) * time.Minute
}
