package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newspeaker/internal/record"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	item := func(title, link string, age time.Duration) string {
		return fmt.Sprintf(`<item><title>%s</title><link>%s</link><pubDate>%s</pubDate></item>`,
			title, link, fixedNow.Add(-age).Format(time.RFC1123Z))
	}
	body := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>q</title>` +
		item("Uno", "https://news.google.com/rss/articles/A", time.Hour) +
		item("Dup", "https://NEWS.google.com/rss/articles/a", 2*time.Hour) +
		item("Viejo", "https://news.google.com/rss/articles/OLD", 10*24*time.Hour) +
		`<item><title>Sin fecha</title><link>https://news.google.com/rss/articles/N</link></item>` +
		item("Sin enlace", "", time.Hour) +
		item("Dos", "https://news.google.com/rss/articles/B", 3*time.Hour) +
		item("Tres", "https://news.google.com/rss/articles/C", 4*time.Hour) +
		`</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCaptureFiltersAndDeduplicates(t *testing.T) {
	srv := feedServer(t)
	f := NewFetcher(zap.NewNop())
	f.now = func() time.Time { return fixedNow }

	items, err := f.Capture(context.Background(), CaptureOptions{
		FeedURL:     srv.URL,
		Query:       "vivienda",
		RecentDays:  3,
		MaxArticles: 2,
	})
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "Uno", items[0].Title)
	assert.Equal(t, "Dos", items[1].Title)
	assert.Equal(t, "vivienda", items[0].Query)
	assert.Equal(t, srv.URL, items[0].SourceFeed)
}

func TestCaptureWithoutLimitKeepsAllRecent(t *testing.T) {
	srv := feedServer(t)
	f := NewFetcher(zap.NewNop())
	f.now = func() time.Time { return fixedNow }

	items, err := f.Capture(context.Background(), CaptureOptions{FeedURL: srv.URL, RecentDays: 3})
	require.NoError(t, err)

	var links []string
	for _, it := range items {
		links = append(links, it.Link)
	}
	assert.Equal(t, []string{
		"https://news.google.com/rss/articles/A",
		"https://news.google.com/rss/articles/B",
		"https://news.google.com/rss/articles/C",
	}, links)
}

func TestSearchURL(t *testing.T) {
	got := SearchURL("  precio vivienda ", Edition{HL: "es", GL: "ES", CEID: "ES:es"})
	assert.Equal(t, "https://news.google.com/rss/search?ceid=ES%3Aes&gl=ES&hl=es&q=precio+vivienda", got)
}

func TestWriteItems(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	items := []Item{{Title: "Uno", Link: "https://news.google.com/rss/articles/A", PublishedAt: fixedNow, Query: "q"}}

	path, err := WriteItems(items, dir, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rss_gnews_20261019_120000.jsonl"), path)

	recs, err := record.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"title", "link", "published_at", "source_feed", "query"}, recs[0].Keys())
	assert.Equal(t, "2026-10-19T12:00:00Z", recs[0].String(record.FieldPublishedAt))
}
