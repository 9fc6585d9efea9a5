package summarize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxArticleBody = 5 << 20

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText normalises whitespace and drops invisible characters.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\u200b", "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Extractor downloads a publisher page and returns its readable text.
type Extractor struct {
	client    *http.Client
	userAgent string
}

// NewExtractor returns an extractor with its own bounded HTTP client.
func NewExtractor(userAgent string, timeout time.Duration) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

var errNoText = errors.New("no article text")

// Extract returns "title\n\nbody" for the article at url.
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: %s", url, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxArticleBody))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", url, err)
	}
	return articleText(doc)
}

func articleText(doc *goquery.Document) (string, error) {
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	scope := doc.Find("article").First()
	if scope.Length() == 0 || strings.TrimSpace(scope.Find("p").Text()) == "" {
		scope = doc.Find("body")
	}

	var paragraphs []string
	scope.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := CleanText(p.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	body := strings.Join(paragraphs, "\n\n")
	if body == "" {
		return "", errNoText
	}

	title := CleanText(doc.Find("meta[property='og:title']").AttrOr("content", ""))
	if title == "" {
		title = CleanText(doc.Find("title").First().Text())
	}
	if title == "" {
		return body, nil
	}
	return title + "\n\n" + body, nil
}
