package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"newspeaker/internal/config"
	"newspeaker/internal/resolve"
	"newspeaker/internal/rss"
	"newspeaker/internal/storage"
)

// FeedSource captures the configured query.
type FeedSource interface {
	Capture(ctx context.Context, opts rss.CaptureOptions) ([]rss.Item, error)
}

// Resolver resolves a batch of aggregator links.
type Resolver interface {
	ResolveBatch(ctx context.Context, links []string) ([]resolve.Result, error)
}

// Store keeps processed links.
type Store interface {
	Exists(ctx context.Context, link string) (bool, error)
	SaveLink(ctx context.Context, l storage.Link) error
	ListResolved(ctx context.Context, limit int) ([]storage.Link, error)
}

// Summarize produces a summary for a publisher URL. It may be nil.
type Summarize func(ctx context.Context, title, url string) (string, error)

// Service ties together feed polling, link resolution and storage.
type Service struct {
	feed      FeedSource
	resolver  Resolver
	store     Store
	summarize Summarize
	logger    *zap.Logger
	cfg       config.Config
}

// NewService creates a Service instance.
func NewService(feed FeedSource, resolver Resolver, store Store, summarize Summarize, logger *zap.Logger, cfg config.Config) *Service {
	return &Service{
		feed:      feed,
		resolver:  resolver,
		store:     store,
		summarize: summarize,
		logger:    logger.Named("service"),
		cfg:       cfg,
	}
}

// Handler returns the HTTP routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/items", s.itemsHandler)
	return mux
}

// Run starts the HTTP server and the polling loop.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.BindAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.BindAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	// Kick off an initial fetch.
	if err := s.PollOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping service, context cancelled")
			return nil
		case <-ticker.C:
			if err := s.PollOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// PollOnce captures the feed, resolves links not seen before and stores
// them. Feed and storage errors are logged; a browser that cannot be
// launched is logged and retried on the next poll. Only cancellation ends
// the loop.
func (s *Service) PollOnce(ctx context.Context) error {
	feedURL := rss.SearchURL(s.cfg.FeedQuery, rss.Edition{HL: s.cfg.HL, GL: s.cfg.GL, CEID: s.cfg.CEID})
	items, err := s.feed.Capture(ctx, rss.CaptureOptions{
		FeedURL:     feedURL,
		Query:       s.cfg.FeedQuery,
		RecentDays:  s.cfg.RecentDays,
		MaxArticles: s.cfg.MaxArticles,
	})
	if err != nil {
		s.logger.Error("failed to fetch feed", zap.Error(err))
		return ctx.Err()
	}

	fresh := make([]rss.Item, 0, len(items))
	for _, item := range items {
		exists, err := s.store.Exists(ctx, item.Link)
		if err != nil {
			s.logger.Warn("check exists failed", zap.String("link", item.Link), zap.Error(err))
			continue
		}
		if !exists {
			fresh = append(fresh, item)
		}
	}
	if len(fresh) == 0 {
		s.logger.Debug("no new links")
		return nil
	}

	links := make([]string, len(fresh))
	for i, item := range fresh {
		links[i] = item.Link
	}
	results, err := s.resolver.ResolveBatch(ctx, links)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("resolve batch failed", zap.Int("links", len(links)), zap.Error(err))
		return nil
	}

	batchID := uuid.NewString()
	for _, res := range results {
		item := fresh[res.Index]
		l := storage.Link{
			Link:        item.Link,
			Title:       item.Title,
			ResolvedURL: res.URL,
			PublishedAt: item.PublishedAt,
			Query:       item.Query,
			BatchID:     batchID,
		}
		if res.Resolved() && s.summarize != nil {
			summary, err := s.summarize(ctx, item.Title, res.URL)
			if err != nil {
				s.logger.Debug("summary failed", zap.String("url", res.URL), zap.Error(err))
			}
			l.Summary = summary
		}
		if err := s.store.SaveLink(ctx, l); err != nil {
			s.logger.Warn("store link failed", zap.String("link", item.Link), zap.Error(err))
		}
	}
	s.logger.Info("poll complete", zap.String("batch_id", batchID), zap.Int("new", len(fresh)))
	return nil
}

func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) itemsHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListResolved(r.Context(), s.cfg.MaxItems)
	if err != nil {
		s.logger.Error("list resolved failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []storage.Link{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Count int            `json:"count"`
		Items []storage.Link `json:"items"`
	}{
		Count: len(items),
		Items: items,
	}); err != nil {
		s.logger.Warn("write items response failed", zap.Error(err))
	}
}
