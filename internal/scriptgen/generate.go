package scriptgen

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"newspeaker/internal/record"
)

const (
	wordsPerMinute = 150
	transition     = "Vamos con la siguiente noticia."

	reasonMissingInput = "missing resolved_url or summary"
	reasonEmptyModel   = "llm_empty"
	warnSummaryOnly    = "no full text available, script based only on summary"
)

var (
	json       = jsoniter.Config{EscapeHTML: false}.Froze()
	spokenURLs = regexp.MustCompile(`(https?://\S+|www\.\S+)`)
)

// Citation names the source of a segment.
type Citation struct {
	Title       string `json:"title"`
	ResolvedURL string `json:"resolved_url"`
}

// Segment is one narratable item of an episode.
type Segment struct {
	Title          string     `json:"title"`
	ResolvedURL    string     `json:"resolved_url"`
	Summary        string     `json:"summary"`
	Script         string     `json:"script"`
	Style          string     `json:"style"`
	ScriptModel    string     `json:"script_model"`
	DurationSecEst int        `json:"duration_sec_est"`
	Words          int        `json:"words"`
	SegmentIndex   int        `json:"segment_index"`
	EpisodeID      string     `json:"episode_id"`
	Citations      []Citation `json:"citations"`
	// Errors joins non-fatal problems with " | "; nil when there were none.
	Errors *string `json:"errors"`
}

func (s *Segment) addError(msg string) {
	if s.Errors == nil {
		s.Errors = &msg
		return
	}
	joined := *s.Errors + " | " + msg
	s.Errors = &joined
}

// Options shape an episode.
type Options struct {
	Style    string
	Intro    string
	Outro    string
	MaxItems int
	Params   Params
}

func (o Options) withDefaults() Options {
	if o.Style == "" {
		o.Style = "educativo"
	}
	if o.Intro == "" {
		o.Intro = DefaultIntro
	}
	if o.Outro == "" {
		o.Outro = DefaultOutro
	}
	if o.Params.Temperature == 0 {
		o.Params.Temperature = 0.2
	}
	if o.Params.MaxTokens == 0 {
		o.Params.MaxTokens = 700
	}
	return o
}

// Generator writes scripts with a backend and falls back to the template
// whenever the backend fails or returns nothing.
type Generator struct {
	backend  Backend
	fallback Template
	opts     Options
	logger   *zap.Logger
}

// NewGenerator builds a generator. A nil backend means the template.
func NewGenerator(backend Backend, opts Options, logger *zap.Logger) *Generator {
	if backend == nil {
		backend = Template{}
	}
	return &Generator{
		backend: backend,
		opts:    opts.withDefaults(),
		logger:  logger.Named("scriptgen"),
	}
}

// position places an item inside its episode.
type position struct {
	index      int
	episodeID  string
	first      bool
	last       bool
	transition bool
}

// GenerateEpisode scripts up to MaxItems records in order. Every record
// yields a segment; records missing a resolved URL or summary carry an
// error and an empty script.
func (g *Generator) GenerateEpisode(ctx context.Context, recs []*record.Record, episodeID string) ([]Segment, error) {
	if g.opts.MaxItems > 0 && len(recs) > g.opts.MaxItems {
		recs = recs[:g.opts.MaxItems]
	}
	out := make([]Segment, 0, len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, g.generateItem(ctx, rec, position{
			index:      i,
			episodeID:  episodeID,
			first:      i == 0,
			last:       i == len(recs)-1,
			transition: len(recs) > 1 && i < len(recs)-1,
		}))
	}
	g.logger.Info("episode scripted",
		zap.String("episode_id", episodeID),
		zap.String("backend", g.backend.Name()),
		zap.Int("segments", len(out)))
	return out, nil
}

// generateItem scripts a single record.
func (g *Generator) generateItem(ctx context.Context, rec *record.Record, pos position) Segment {
	title := rec.String(record.FieldTitle)
	resolved := rec.String(record.FieldResolvedURL)
	summary := strings.TrimSpace(rec.String(record.FieldSummary))
	query := rec.String(record.FieldQuery)
	text := strings.TrimSpace(rec.String(record.FieldText))

	seg := Segment{
		Title:        title,
		ResolvedURL:  resolved,
		Summary:      summary,
		Style:        g.opts.Style,
		ScriptModel:  firstNonEmpty(g.opts.Params.Model, g.backend.Name()),
		SegmentIndex: pos.index,
		EpisodeID:    pos.episodeID,
		Citations:    []Citation{},
	}
	if resolved == "" || summary == "" {
		seg.addError(reasonMissingInput)
		return seg
	}

	messages := buildMessages(promptInput{
		Style:       g.opts.Style,
		Title:       title,
		ResolvedURL: resolved,
		Summary:     summary,
		Text:        text,
		Query:       query,
		Intro:       g.opts.Intro,
		Outro:       g.opts.Outro,
	})

	res, err := g.backend.Generate(ctx, messages, g.opts.Params)
	if err != nil || res.Text == "" {
		reason := reasonEmptyModel
		if err != nil {
			reason = err.Error()
		}
		g.logger.Debug("script backend failed, using template",
			zap.String("backend", g.backend.Name()),
			zap.String("title", title),
			zap.String("reason", reason))
		seg.addError(reason)
		res, err = g.fallback.Generate(ctx, messages, g.opts.Params)
		if err != nil {
			seg.addError(err.Error())
		}
	}
	seg.ScriptModel = res.Model

	parts := make([]string, 0, 4)
	if pos.first {
		parts = append(parts, fillTemplate(g.opts.Intro, query))
	}
	parts = append(parts, res.Text)
	if pos.transition {
		parts = append(parts, transition)
	}
	if pos.last {
		parts = append(parts, fillTemplate(g.opts.Outro, query))
	}
	script := strings.Join(parts, " ")
	script = spokenURLs.ReplaceAllString(script, "")
	script = collapseSpaces(normalizeSmallNumbers(script))

	seg.Script = script
	seg.Words = len(strings.Fields(script))
	seg.DurationSecEst = estimateDuration(seg.Words)
	seg.Citations = []Citation{{Title: firstNonEmpty(title, domainFromURL(resolved)), ResolvedURL: resolved}}
	if text == "" {
		seg.addError(warnSummaryOnly)
	}
	return seg
}

func estimateDuration(words int) int {
	secs := int(math.Round(float64(words) / wordsPerMinute * 60))
	if secs < 1 {
		return 1
	}
	return secs
}

// WriteFile writes segments as JSON lines, replacing any existing file.
func WriteFile(path string, segments []Segment) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	for _, s := range segments {
		b, err := json.Marshal(s)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("encode segment %d: %w", s.SegmentIndex, err)
		}
		bw.Write(b)
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
