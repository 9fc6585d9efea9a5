package resolve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxRefreshBody = 2 << 20

// networkRedirect follows HTTP redirects without a browser and falls back to
// a meta refresh in the final response body.
type networkRedirect struct {
	client         *http.Client
	timeout        time.Duration
	userAgent      string
	acceptLanguage string
}

func newNetworkRedirect(base *http.Client, opts Options) *networkRedirect {
	client := *base
	maxRedirects := opts.MaxRedirects
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return &networkRedirect{
		client:         &client,
		timeout:        opts.NetworkTimeout,
		userAgent:      opts.UserAgent,
		acceptLanguage: opts.AcceptLanguage,
	}
}

func (n *networkRedirect) Name() string { return "redirect" }

func (n *networkRedirect) Attempt(ctx context.Context, target string, offer Offer) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept-Language", n.acceptLanguage)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	if offer(final.String()) {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxRefreshBody))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if refresh := metaRefreshTarget(doc, final.String()); refresh != "" {
		offer(refresh)
	}
	return nil
}

// metaRefreshTarget returns the absolute target of the first
// <meta http-equiv="refresh"> in doc, or "".
func metaRefreshTarget(doc *goquery.Document, base string) string {
	var target string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		equiv, _ := sel.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		content, _ := sel.Attr("content")
		target = refreshURL(base, content)
		return target == ""
	})
	return target
}

// refreshURL extracts the url= part of a refresh directive such as
// `0; URL='/next'` and resolves it against base.
func refreshURL(base, content string) string {
	idx := strings.Index(strings.ToLower(content), "url=")
	if idx < 0 {
		return ""
	}
	ref := strings.Trim(strings.TrimSpace(content[idx+len("url="):]), `"'`)
	if ref == "" {
		return ""
	}
	return absolute(base, ref)
}

// absolute resolves ref against base, returning ref unchanged when either
// does not parse.
func absolute(base, ref string) string {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return r.String()
	}
	return b.ResolveReference(r).String()
}
