package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

// ConsentDomains are the aggregator domains that show a consent interstitial.
var ConsentDomains = []string{".google.com", ".consent.google.com", ".news.google.com"}

const consentTTL = 365 * 24 * time.Hour

// Cookie is a browser-independent cookie description.
type Cookie struct {
	Name    string
	Value   string
	Domain  string
	Path    string
	Expires time.Time
}

// ConsentCookies returns the cookies that mark consent as already given on
// every consent domain, expiring one year after now.
func ConsentCookies(now time.Time) []Cookie {
	expires := now.Add(consentTTL).Truncate(time.Second)
	cookies := make([]Cookie, 0, 2*len(ConsentDomains))
	for _, domain := range ConsentDomains {
		cookies = append(cookies,
			Cookie{Name: "CONSENT", Value: "YES+", Domain: domain, Path: "/", Expires: expires},
			Cookie{Name: "SOCS", Value: "CAI", Domain: domain, Path: "/", Expires: expires},
		)
	}
	return cookies
}

// ApplyConsentCookies injects the consent cookies into the browser and the
// HTTP jar. Repeated or concurrent calls leave the same cookie state as a
// single call. Failures are logged and otherwise ignored.
func (s *Session) ApplyConsentCookies(ctx context.Context) {
	s.consentMu.Lock()
	defer s.consentMu.Unlock()

	cookies := ConsentCookies(time.Now())
	for _, sink := range s.sinks {
		if err := sink.setCookies(ctx, cookies); err != nil {
			s.logger.Warn("consent cookies not applied", zap.String("sink", sink.name()), zap.Error(err))
			continue
		}
		s.logger.Debug("consent cookies applied", zap.String("sink", sink.name()), zap.Int("count", len(cookies)))
	}
}

type cookieSink interface {
	name() string
	setCookies(ctx context.Context, cookies []Cookie) error
}

type jarSink struct {
	jar http.CookieJar
}

func (j *jarSink) name() string { return "http" }

func (j *jarSink) setCookies(_ context.Context, cookies []Cookie) error {
	byHost := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		byHost[host] = append(byHost[host], &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  host,
			Path:    c.Path,
			Expires: c.Expires,
		})
	}
	for host, hc := range byHost {
		j.jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, hc)
	}
	return nil
}

type browserSink struct {
	session *Session
}

func (b *browserSink) name() string { return "browser" }

func (b *browserSink) setCookies(ctx context.Context, cookies []Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		expires := cdp.TimeSinceEpoch(c.Expires)
		params = append(params, &network.CookieParam{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Path:    c.Path,
			Expires: &expires,
		})
	}
	if err := run(b.session.browserCtx, ctx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("set browser cookies: %w", err)
	}
	return nil
}
