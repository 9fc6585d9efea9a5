package summarize

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"newspeaker/internal/record"
)

// Values written to scrape_error and summary_model.
const (
	ScrapeMissingURL = "missing_url"
	ScrapeFailed     = "scrape_failed"
	ModelPassThrough = "pass_through"
)

const (
	defaultWorkers   = 8
	minSummaryWords  = 80
	passThroughChars = 800
)

// TextSource returns the readable text of an article.
type TextSource interface {
	Extract(ctx context.Context, url string) (string, error)
}

// Processor enriches records with article text and a summary.
type Processor struct {
	source     TextSource
	summarizer Summarizer
	fallback   Summarizer
	workers    int
	logger     *zap.Logger
}

// NewProcessor wires a processor. fallback is used when summarizer fails
// and may be nil.
func NewProcessor(source TextSource, summarizer, fallback Summarizer, workers int, logger *zap.Logger) *Processor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Processor{
		source:     source,
		summarizer: summarizer,
		fallback:   fallback,
		workers:    workers,
		logger:     logger.Named("summarize"),
	}
}

// Process returns enriched copies of recs in the same order. Per-record
// failures are recorded in scrape_error; only cancellation aborts.
func (p *Processor) Process(ctx context.Context, recs []*record.Record) ([]*record.Record, error) {
	out := make([]*record.Record, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = p.processOne(gctx, rec.Clone())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Processor) processOne(ctx context.Context, rec *record.Record) *record.Record {
	url := rec.String(record.FieldResolvedURL)
	if url == "" {
		url = rec.String(record.FieldLink)
	}
	if url == "" {
		_ = rec.Set(record.FieldScrapeError, ScrapeMissingURL)
		return rec
	}

	text, err := p.source.Extract(ctx, url)
	if err != nil {
		p.logger.Debug("extract failed", zap.String("url", url), zap.Error(err))
		_ = rec.Set(record.FieldScrapeError, ScrapeFailed)
		return rec
	}
	_ = rec.Set(record.FieldText, text)

	if len(strings.Fields(text)) < minSummaryWords {
		_ = rec.Set(record.FieldSummary, truncateRunes(text, passThroughChars))
		_ = rec.Set(record.FieldSummaryModel, ModelPassThrough)
		return rec
	}

	title := rec.String(record.FieldTitle)
	summary, model := p.summarize(ctx, title, text)
	_ = rec.Set(record.FieldSummary, summary)
	_ = rec.Set(record.FieldSummaryModel, model)
	return rec
}

func (p *Processor) summarize(ctx context.Context, title, text string) (string, string) {
	if p.summarizer != nil {
		summary, err := p.summarizer.Summarize(ctx, title, text)
		if err == nil {
			return summary, p.summarizer.Model()
		}
		p.logger.Warn("summarizer failed", zap.String("model", p.summarizer.Model()), zap.Error(err))
	}
	if p.fallback == nil {
		return truncateRunes(text, passThroughChars), ModelPassThrough
	}
	summary, err := p.fallback.Summarize(ctx, title, text)
	if err != nil {
		return truncateRunes(text, passThroughChars), ModelPassThrough
	}
	return summary, p.fallback.Model()
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
