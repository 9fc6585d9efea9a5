package rss

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"newspeaker/internal/record"
)

const searchBase = "https://news.google.com/rss/search"

// Item represents a normalized feed entry.
type Item struct {
	Title       string
	Link        string
	PublishedAt time.Time
	SourceFeed  string
	Query       string
}

// Record converts the item to the JSON lines shape consumed by later steps.
func (i Item) Record() *record.Record {
	rec := record.New()
	_ = rec.Set(record.FieldTitle, i.Title)
	_ = rec.Set(record.FieldLink, i.Link)
	_ = rec.Set(record.FieldPublishedAt, i.PublishedAt.Format(time.RFC3339))
	_ = rec.Set(record.FieldSourceFeed, i.SourceFeed)
	_ = rec.Set(record.FieldQuery, i.Query)
	return rec
}

// Edition selects the aggregator's language and country.
type Edition struct {
	HL   string
	GL   string
	CEID string
}

// SearchURL builds the aggregator search feed for query.
func SearchURL(query string, ed Edition) string {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(query))
	q.Set("hl", ed.HL)
	q.Set("gl", ed.GL)
	q.Set("ceid", ed.CEID)
	return searchBase + "?" + q.Encode()
}

// CaptureOptions limits what Capture keeps.
type CaptureOptions struct {
	FeedURL     string
	Query       string
	RecentDays  int
	MaxArticles int
}

// Fetcher pulls and parses RSS feeds.
type Fetcher struct {
	parser *gofeed.Parser
	logger *zap.Logger
	now    func() time.Time
}

// NewFetcher creates an RSS fetcher.
func NewFetcher(logger *zap.Logger) *Fetcher {
	return &Fetcher{
		parser: gofeed.NewParser(),
		logger: logger.Named("rss"),
		now:    time.Now,
	}
}

// Capture pulls the feed and returns recent, de-duplicated items, newest
// feed order preserved, capped at MaxArticles.
func (f *Fetcher) Capture(ctx context.Context, opts CaptureOptions) ([]Item, error) {
	feed, err := f.parser.ParseURLWithContext(opts.FeedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", opts.FeedURL, err)
	}

	cutoff := f.now().Add(-time.Duration(opts.RecentDays) * 24 * time.Hour)
	seen := make(map[string]struct{}, len(feed.Items))
	items := make([]Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		published := entryTime(entry)
		if published == nil || published.Before(cutoff) {
			continue
		}
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}
		key := strings.ToLower(link)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		items = append(items, Item{
			Title:       entry.Title,
			Link:        link,
			PublishedAt: *published,
			SourceFeed:  opts.FeedURL,
			Query:       opts.Query,
		})
		if opts.MaxArticles > 0 && len(items) >= opts.MaxArticles {
			break
		}
	}

	f.logger.Info("feed captured",
		zap.String("query", opts.Query),
		zap.Int("entries", len(feed.Items)),
		zap.Int("kept", len(items)))
	return items, nil
}

// WriteItems stores items as rss_gnews_<timestamp>.jsonl under dir and
// returns the file path.
func WriteItems(items []Item, dir string, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("rss_gnews_%s.jsonl", at.Format("20060102_150405")))
	recs := make([]*record.Record, 0, len(items))
	for _, it := range items {
		recs = append(recs, it.Record())
	}
	if err := record.WriteFile(path, recs); err != nil {
		return "", err
	}
	return path, nil
}

func entryTime(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed
	}
	return entry.UpdatedParsed
}
