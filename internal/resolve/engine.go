// Package resolve turns aggregator indirection links into publisher URLs.
//
// Each link runs through an ordered chain of strategies, cheapest first:
// the url query parameter, a plain HTTP redirect follow, a browser page, and
// a browser page after consent cookies have been injected. Every candidate
// passes the same Classifier; the first accepted one wins.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"newspeaker/internal/browser"
	"newspeaker/internal/config"
)

// Request is one link of a batch together with its position.
type Request struct {
	Index int
	URL   string
}

// Result is the outcome for the request with the same Index. An empty URL
// means the link could not be resolved.
type Result struct {
	Index int
	URL   string
}

// Resolved reports whether a publisher URL was found.
func (r Result) Resolved() bool {
	return r.URL != ""
}

// Browser is the shared session a batch resolves against.
type Browser interface {
	PageOpener
	ConsentApplier
	HTTPClient() *http.Client
	Close() error
}

// LaunchFunc starts the browser for one batch.
type LaunchFunc func(ctx context.Context) (Browser, error)

// Options tunes the engine. Zero fields take the defaults.
type Options struct {
	// Concurrency bounds how many links are resolved at once. The browser
	// may allow fewer pages, in which case page strategies queue for it.
	Concurrency       int
	Locale            Locale
	Classifier        Classifier
	NetworkTimeout    time.Duration
	NavigationTimeout time.Duration
	SettleTimeout     time.Duration
	MaxRedirects      int
	UserAgent         string
	AcceptLanguage    string
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Concurrency:       5,
		Locale:            DefaultLocale(),
		Classifier:        DefaultClassifier(),
		NetworkTimeout:    20 * time.Second,
		NavigationTimeout: 25 * time.Second,
		SettleTimeout:     15 * time.Second,
		MaxRedirects:      10,
		UserAgent:         "Mozilla/5.0",
		AcceptLanguage:    "es-ES,es;q=0.9",
	}
}

// OptionsFromConfig maps runtime configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	opts := DefaultOptions()
	opts.Concurrency = cfg.Concurrency
	opts.Locale = Locale{HL: cfg.HL, GL: cfg.GL, CEID: cfg.CEID}
	opts.NetworkTimeout = cfg.NetworkTimeout
	opts.NavigationTimeout = cfg.NavigationTimeout
	opts.SettleTimeout = cfg.SettleTimeout
	opts.MaxRedirects = cfg.MaxRedirects
	opts.UserAgent = cfg.UserAgent
	opts.AcceptLanguage = cfg.AcceptLanguage
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.Locale == (Locale{}) {
		o.Locale = def.Locale
	}
	if o.Classifier.blocked == nil {
		o.Classifier = def.Classifier
	}
	if o.NetworkTimeout <= 0 {
		o.NetworkTimeout = def.NetworkTimeout
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = def.NavigationTimeout
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = def.SettleTimeout
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = def.MaxRedirects
	}
	if o.UserAgent == "" {
		o.UserAgent = def.UserAgent
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = def.AcceptLanguage
	}
	return o
}

// ChromeLauncher launches a chromedp-backed browser session.
func ChromeLauncher(opts browser.Options, logger *zap.Logger) LaunchFunc {
	return func(ctx context.Context) (Browser, error) {
		s, err := browser.NewSession(ctx, opts, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Engine resolves batches of links.
type Engine struct {
	opts   Options
	launch LaunchFunc
	logger *zap.Logger
}

// NewEngine returns an engine that launches a fresh browser for each batch.
func NewEngine(opts Options, launch LaunchFunc, logger *zap.Logger) *Engine {
	return &Engine{
		opts:   opts.withDefaults(),
		launch: launch,
		logger: logger.Named("resolve"),
	}
}

// Concurrency returns the admission limit in use.
func (e *Engine) Concurrency() int {
	return e.opts.Concurrency
}

// ResolveBatch resolves links and returns one result per link in input
// order. Links that cannot be resolved get an empty URL. An error is
// returned only when the browser cannot be launched or cannot open pages.
func (e *Engine) ResolveBatch(ctx context.Context, links []string) ([]Result, error) {
	results := make([]Result, len(links))
	for i := range results {
		results[i].Index = i
	}
	if len(links) == 0 {
		return results, nil
	}

	logger := e.logger.With(zap.String("batch_id", uuid.NewString()))
	started := time.Now()

	b, err := e.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			logger.Warn("browser close failed", zap.Error(cerr))
		}
	}()

	chain := e.chain(b, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, link := range links {
		if gctx.Err() != nil {
			break
		}
		req := Request{Index: i, URL: link}
		g.Go(func() error {
			resolved, err := chain.Run(gctx, req.URL)
			switch {
			case err == nil:
				results[req.Index].URL = resolved
			case errors.Is(err, ErrExhausted):
				logger.Debug("link unresolved", zap.Int("index", req.Index), zap.String("link", req.URL))
			default:
				return fmt.Errorf("resolve link %d: %w", req.Index, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Links skipped after cancellation were never attempted.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved := 0
	for _, r := range results {
		if r.Resolved() {
			resolved++
		}
	}
	logger.Info("batch resolved",
		zap.Int("links", len(links)),
		zap.Int("resolved", resolved),
		zap.Int("concurrency", e.opts.Concurrency),
		zap.Duration("elapsed", time.Since(started)))
	return results, nil
}

func (e *Engine) chain(b Browser, logger *zap.Logger) *Chain {
	page := &pageNavigation{
		pages:         b,
		navTimeout:    e.opts.NavigationTimeout,
		settleTimeout: e.opts.SettleTimeout,
		logger:        logger,
	}
	return NewChain(e.opts.Locale, e.opts.Classifier, logger,
		directParam{},
		newNetworkRedirect(b.HTTPClient(), e.opts),
		page,
		&consentRetry{cookies: b, page: page},
	)
}
