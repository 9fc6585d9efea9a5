// Package browser owns the shared Chrome instance used to resolve links that
// only settle inside a real page. One Session lives for one resolution batch.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrLaunch is returned when the browser cannot be started.
	ErrLaunch = errors.New("browser launch failed")
	// ErrPageUnavailable is returned when a new page cannot be opened.
	ErrPageUnavailable = errors.New("browser page unavailable")
)

// Options configures the browser and the HTTP client that shares its cookies.
type Options struct {
	Headless       bool
	ChromePath     string
	Locale         string
	AcceptLanguage string
	UserAgent      string
	// MaxPages bounds the number of pages open at once.
	MaxPages int
	// IdleQuiet is how long the network must be silent to count as settled.
	IdleQuiet time.Duration
}

func (o Options) withDefaults() Options {
	if o.Locale == "" {
		o.Locale = "es-ES"
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = "es-ES,es;q=0.9"
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0"
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 5
	}
	if o.IdleQuiet <= 0 {
		o.IdleQuiet = 500 * time.Millisecond
	}
	return o
}

// Session is a launched browser plus an HTTP client with a cookie jar. Both
// receive the consent cookies.
type Session struct {
	opts   Options
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	client *http.Client
	pages  *semaphore.Weighted

	consentMu sync.Mutex
	sinks     []cookieSink

	closeOnce sync.Once
	closeErr  error
}

// NewSession launches Chrome and prepares the shared cookie jar.
func NewSession(ctx context.Context, opts Options, logger *zap.Logger) (*Session, error) {
	opts = opts.withDefaults()
	logger = logger.Named("browser")

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", opts.Locale),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	return launch(allocCtx, allocCancel, opts, logger)
}

// launch starts the browser on an allocator context and takes ownership of
// allocCancel.
func launch(allocCtx context.Context, allocCancel context.CancelFunc, opts Options, logger *zap.Logger) (*Session, error) {
	sugar := logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	// The first Run attaches the target and its event loop lives on the
	// context given here, so it must be the long-lived browser context.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	s, err := newSession(opts, logger)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.sinks = append(s.sinks, &browserSink{session: s})

	logger.Debug("browser launched",
		zap.Bool("headless", opts.Headless),
		zap.String("locale", opts.Locale),
		zap.Int("max_pages", opts.MaxPages))
	return s, nil
}

// newSession builds everything except the browser process.
func newSession(opts Options, logger *zap.Logger) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Session{
		opts:   opts,
		logger: logger,
		client: &http.Client{Jar: jar},
		pages:  semaphore.NewWeighted(int64(opts.MaxPages)),
		sinks:  []cookieSink{&jarSink{jar: jar}},
	}, nil
}

// HTTPClient returns the client sharing this session's cookie jar.
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// AcquirePage opens a new tab. The caller owns the page and must Close it.
func (s *Session) AcquirePage(ctx context.Context) (Page, error) {
	if err := s.pages.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: wait for slot: %v", ErrPageUnavailable, err)
	}

	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	idle := newIdleTracker()
	chromedp.ListenTarget(tabCtx, idle.handle)

	p := &chromePage{
		ctx:     tabCtx,
		cancel:  cancel,
		idle:    idle,
		quiet:   s.opts.IdleQuiet,
		release: func() { s.pages.Release(1) },
	}

	if err := attach(ctx, tabCtx, cancel); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: attach tab: %v", ErrPageUnavailable, err)
	}

	err := run(tabCtx, ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": s.opts.AcceptLanguage}),
	)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %v", ErrPageUnavailable, err)
	}
	if err := run(tabCtx, ctx, emulation.SetLocaleOverride().WithLocale(s.opts.Locale)); err != nil {
		s.logger.Debug("locale override failed", zap.Error(err))
	}
	return p, nil
}

// Close shuts the browser down. Only the first call has any effect.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.browserCtx != nil {
			s.closeErr = chromedp.Cancel(s.browserCtx)
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
		s.client.CloseIdleConnections()
		s.logger.Debug("browser closed", zap.Error(s.closeErr))
	})
	return s.closeErr
}

// attach creates the tab's target on tabCtx itself, since chromedp ties the
// tab's event loop to the context of its first Run. ctx only bounds the wait:
// when it ends first the tab is cancelled.
func attach(ctx, tabCtx context.Context, cancelTab context.CancelFunc) error {
	stop := context.AfterFunc(ctx, cancelTab)
	err := chromedp.Run(tabCtx)
	if !stop() {
		return ctx.Err()
	}
	return err
}

// run executes actions on a chromedp context while honouring cancellation
// and deadline of the caller's ctx.
func run(target, ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(target)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
