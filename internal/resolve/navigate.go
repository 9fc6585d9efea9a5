package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"newspeaker/internal/browser"
)

// PageOpener hands out browser pages.
type PageOpener interface {
	AcquirePage(ctx context.Context) (browser.Page, error)
}

// ConsentApplier preloads consent cookies into the shared session.
type ConsentApplier interface {
	ApplyConsentCookies(ctx context.Context)
}

const readTimeout = 5 * time.Second

type pageHint struct {
	selector string
	attr     string
	refresh  bool
}

var pageHints = []pageHint{
	{selector: "head link[rel=canonical]", attr: "href"},
	{selector: "head meta[property='og:url']", attr: "content"},
	{selector: "head meta[http-equiv='refresh' i]", attr: "content", refresh: true},
}

// pageNavigation opens a real page and reads where the publisher says the
// article lives.
type pageNavigation struct {
	pages         PageOpener
	navTimeout    time.Duration
	settleTimeout time.Duration
	logger        *zap.Logger
}

func (p *pageNavigation) Name() string { return "page" }

func (p *pageNavigation) Attempt(ctx context.Context, target string, offer Offer) error {
	page, err := p.pages.AcquirePage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			p.logger.Debug("page close failed", zap.Error(cerr))
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	err = page.Navigate(navCtx, target)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return fmt.Errorf("navigate: %w", err)
	}

	current := p.currentURL(ctx, page)
	for _, pr := range pageHints {
		value := p.read(ctx, page, pr)
		if value == "" {
			continue
		}
		if pr.refresh {
			value = refreshURL(current, value)
		} else {
			value = absolute(current, value)
		}
		if offer(value) {
			return nil
		}
	}

	settleCtx, cancel := context.WithTimeout(ctx, p.settleTimeout)
	if err := page.WaitNetworkIdle(settleCtx); err != nil {
		p.logger.Debug("page did not settle", zap.String("target", target), zap.Error(err))
	}
	cancel()

	offer(p.currentURL(ctx, page))
	return nil
}

func (p *pageNavigation) read(ctx context.Context, page browser.Page, pr pageHint) string {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	value, err := page.Attribute(ctx, pr.selector, pr.attr)
	if err != nil {
		p.logger.Debug("page hint unreadable", zap.String("selector", pr.selector), zap.Error(err))
		return ""
	}
	return value
}

func (p *pageNavigation) currentURL(ctx context.Context, page browser.Page) string {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	u, err := page.URL(ctx)
	if err != nil {
		p.logger.Debug("read page url failed", zap.Error(err))
		return ""
	}
	return u
}

// consentRetry injects consent cookies and navigates once more.
type consentRetry struct {
	cookies ConsentApplier
	page    *pageNavigation
}

func (c *consentRetry) Name() string { return "consent-retry" }

func (c *consentRetry) Attempt(ctx context.Context, target string, offer Offer) error {
	c.cookies.ApplyConsentCookies(ctx)
	return c.page.Attempt(ctx, target, offer)
}
