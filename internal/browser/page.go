package browser

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Page is a single tab exclusively owned by one resolution task.
type Page interface {
	// Navigate loads url and returns once the DOM has been constructed.
	Navigate(ctx context.Context, url string) error
	// Attribute reads an attribute of the first element matching selector
	// without waiting for it to appear. Missing elements yield "".
	Attribute(ctx context.Context, selector, name string) (string, error)
	// WaitNetworkIdle blocks until no requests have been in flight for a
	// short quiet period.
	WaitNetworkIdle(ctx context.Context) error
	// URL returns the page's current location.
	URL(ctx context.Context) (string, error)
	// Close releases the tab. It is safe to call more than once.
	Close() error
}

type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	idle    *idleTracker
	quiet   time.Duration
	release func()

	closeOnce sync.Once
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	domReady := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(p.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			select {
			case domReady <- struct{}{}:
			default:
			}
		}
	})

	return run(p.ctx, ctx, chromedp.ActionFunc(func(actx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(actx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		if res.ErrorText != "" {
			return fmt.Errorf("navigate %s: %s", url, res.ErrorText)
		}
		select {
		case <-domReady:
			return nil
		case <-actx.Done():
			return actx.Err()
		}
	}))
}

func (p *chromePage) Attribute(ctx context.Context, selector, name string) (string, error) {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); return el ? (el.getAttribute(%s) || "") : ""; })()`,
		strconv.Quote(selector), strconv.Quote(name))
	var out string
	if err := run(p.ctx, ctx, chromedp.Evaluate(script, &out)); err != nil {
		return "", err
	}
	return out, nil
}

func (p *chromePage) WaitNetworkIdle(ctx context.Context) error {
	return p.idle.wait(ctx, p.quiet)
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := run(p.ctx, ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.release()
	})
	return nil
}

// idleTracker counts in-flight requests of a tab from its network events.
type idleTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (t *idleTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.mark(e.RequestID, true)
	case *network.EventLoadingFinished:
		t.mark(e.RequestID, false)
	case *network.EventLoadingFailed:
		t.mark(e.RequestID, false)
	}
}

func (t *idleTracker) mark(id network.RequestID, started bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if started {
		t.inflight[id] = struct{}{}
	} else {
		delete(t.inflight, id)
	}
	t.lastActivity = time.Now()
}

func (t *idleTracker) snapshot() (int, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight), t.lastActivity
}

// wait polls until nothing has been in flight for quiet.
func (t *idleTracker) wait(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(quiet / 2)
	defer ticker.Stop()

	for {
		if n, last := t.snapshot(); n == 0 && time.Since(last) >= quiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
