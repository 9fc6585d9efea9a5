package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"newspeaker/internal/pipeline"
	"newspeaker/internal/record"
	"newspeaker/internal/rss"
	"newspeaker/internal/scriptgen"
	"newspeaker/internal/service"
	"newspeaker/internal/storage"
	"newspeaker/internal/summarize"
)

func newCaptureCmd(a *app) *cobra.Command {
	var (
		query       string
		recentDays  int
		maxArticles int
		outDir      string
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a news search feed into a JSON lines file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := firstNonEmpty(query, a.cfg.FeedQuery)
			if strings.TrimSpace(q) == "" {
				return errors.New("a query is required (--query or FEED_QUERY)")
			}
			feedURL := rss.SearchURL(q, rss.Edition{HL: a.cfg.HL, GL: a.cfg.GL, CEID: a.cfg.CEID})
			items, err := rss.NewFetcher(a.logger).Capture(cmd.Context(), rss.CaptureOptions{
				FeedURL:     feedURL,
				Query:       q,
				RecentDays:  positiveOr(recentDays, a.cfg.RecentDays),
				MaxArticles: positiveOr(maxArticles, a.cfg.MaxArticles),
			})
			if err != nil {
				return err
			}
			path, err := rss.WriteItems(items, firstNonEmpty(outDir, a.cfg.OutDir), time.Now())
			if err != nil {
				return err
			}
			a.logger.Info("capture written", zap.String("path", path), zap.Int("items", len(items)))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search query (default FEED_QUERY)")
	cmd.Flags().IntVar(&recentDays, "recent-days", 0, "keep entries published within this many days (default RECENT_DAYS)")
	cmd.Flags().IntVar(&maxArticles, "max-articles", 0, "maximum entries to keep (default MAX_ARTICLES)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default OUT_DIR)")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		in          string
		out         string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the link of every record to its publisher URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := pipeline.ResolveFile(cmd.Context(), a.engine(concurrency), in, out, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "input JSON lines file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory (default <input>_resolved.jsonl)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "links resolved at once (default RESOLVE_CONCURRENCY)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newSummarizeCmd(a *app) *cobra.Command {
	var (
		in      string
		out     string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Extract article text and summarize each record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs, err := record.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}
			done, err := a.processor(workers).Process(cmd.Context(), recs)
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
				path = filepath.Join(filepath.Dir(in), stem+"_summarized.jsonl")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			if err := record.WriteFile(path, done); err != nil {
				return err
			}
			a.logger.Info("summaries written", zap.String("path", path), zap.Int("records", len(done)))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "input JSON lines file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <input>_summarized.jsonl)")
	cmd.Flags().IntVarP(&workers, "concurrency", "c", 0, "articles processed at once (default 8)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		in        string
		out       string
		episodeID string
		style     string
		backend   string
		model     string
		baseURL   string
		maxItems  int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a narrated episode script from summarized records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			recs, err := record.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}
			path := out
			if path == "" {
				path = scriptPath(in)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			if episodeID == "" {
				episodeID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			b := scriptgen.NewBackend(ctx, scriptgen.BackendConfig{
				Backend:    firstNonEmpty(backend, a.cfg.ScriptBackend),
				Model:      firstNonEmpty(model, a.cfg.ScriptModel),
				BaseURL:    firstNonEmpty(baseURL, a.cfg.ScriptBaseURL),
				OllamaURL:  a.cfg.OllamaURL,
				OpenAIKey:  a.cfg.OpenAIKey,
				OpenAIBase: a.cfg.OpenAIBase,
			}, a.logger)
			gen := scriptgen.NewGenerator(b, scriptgen.Options{
				Style:    firstNonEmpty(style, a.cfg.ScriptStyle),
				MaxItems: positiveOr(maxItems, a.cfg.ScriptMaxItems),
				Params:   scriptgen.Params{Model: firstNonEmpty(model, a.cfg.ScriptModel)},
			}, a.logger)

			segments, err := gen.GenerateEpisode(ctx, recs, episodeID)
			if err != nil {
				return err
			}
			if err := scriptgen.WriteFile(path, segments); err != nil {
				return err
			}
			a.logger.Info("episode script written", zap.String("path", path), zap.Int("segments", len(segments)))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "summarized JSON lines file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <input>_script.jsonl)")
	cmd.Flags().StringVar(&episodeID, "episode-id", "", "episode id (default output file name)")
	cmd.Flags().StringVar(&style, "style", "", "educativo, conversacional or humoristico (default SCRIPT_STYLE)")
	cmd.Flags().StringVar(&backend, "backend", "", "auto, template, ollama, openai_compat or openai (default NEWSPEAKER_BACKEND)")
	cmd.Flags().StringVar(&model, "model", "", "model name (default SCRIPT_MODEL)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI compatible server (default NEWSPEAKER_BASE_URL)")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "items in the episode (default SCRIPT_MAX_ITEMS)")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

// scriptPath names the episode file next to its input.
func scriptPath(in string) string {
	stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	return filepath.Join(filepath.Dir(in), stem+"_script.jsonl")
}

func newServeCmd(a *app) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll the configured query, resolve new links and serve them over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(a.cfg.FeedQuery) == "" {
				return errors.New("FEED_QUERY is required for serve")
			}
			if !a.cfg.StoreEnabled() {
				return errors.New("DB_HOST is required for serve")
			}
			store, err := storage.NewMySQLStore(ctx, a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("init mysql store: %w", err)
			}
			defer store.Close()

			svc := service.NewService(rss.NewFetcher(a.logger), a.engine(concurrency), store, a.summarizeURL(), a.logger, a.cfg)
			return svc.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "links resolved at once (default RESOLVE_CONCURRENCY)")
	return cmd
}

func (a *app) summarizer() summarize.Summarizer {
	client := summarize.NewClient(a.cfg.OpenAIKey, a.cfg.OpenAIModel, a.cfg.OpenAIBase, 0, a.logger)
	if !client.Ready() {
		a.logger.Info("OPENAI_API_KEY not set, using lead sentences as summaries")
		return nil
	}
	return client
}

func (a *app) processor(workers int) *summarize.Processor {
	ex := summarize.NewExtractor(a.cfg.UserAgent, a.cfg.NetworkTimeout)
	return summarize.NewProcessor(ex, a.summarizer(), summarize.Lead{}, workers, a.logger)
}

// summarizeURL adapts the processor to the serve loop, which summarizes one
// resolved URL at a time.
func (a *app) summarizeURL() service.Summarize {
	p := a.processor(1)
	return func(ctx context.Context, title, url string) (string, error) {
		rec := record.New()
		_ = rec.Set(record.FieldTitle, title)
		_ = rec.Set(record.FieldResolvedURL, url)
		out, err := p.Process(ctx, []*record.Record{rec})
		if err != nil {
			return "", err
		}
		if reason := out[0].String(record.FieldScrapeError); reason != "" {
			return "", errors.New(reason)
		}
		return out[0].String(record.FieldSummary), nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
