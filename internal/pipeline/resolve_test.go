package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newspeaker/internal/resolve"
)

type mapResolver struct {
	urls  map[string]string
	err   error
	links []string
}

func (m *mapResolver) ResolveBatch(_ context.Context, links []string) ([]resolve.Result, error) {
	m.links = links
	if m.err != nil {
		return nil, m.err
	}
	out := make([]resolve.Result, len(links))
	for i, l := range links {
		out[i] = resolve.Result{Index: i, URL: m.urls[l]}
	}
	return out, nil
}

func writeInput(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rss_gnews_20261019.jsonl")

	assert.Equal(t, filepath.Join(dir, "rss_gnews_20261019_resolved.jsonl"), OutputPath(in, ""))

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0o755))
	assert.Equal(t, filepath.Join(outDir, "rss_gnews_20261019_resolved.jsonl"), OutputPath(in, outDir))

	assert.Equal(t, filepath.Join(dir, "batch_resolved.jsonl"), OutputPath(in, filepath.Join(dir, "batch")))
	assert.Equal(t, filepath.Join(dir, "x.json"), OutputPath(in, filepath.Join(dir, "x.json")))
}

func TestResolveFileAppendsResolvedURL(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "feed.jsonl", strings.Join([]string{
		`{"title":"A","link":"https://news.google.com/rss/articles/A","extra":1}`,
		``,
		`{"title":"B","link":"https://news.google.com/rss/articles/B"}`,
		`{"title":"C"}`,
	}, "\n"))
	r := &mapResolver{urls: map[string]string{
		"https://news.google.com/rss/articles/A": "https://elpais.com/a",
	}}

	out, err := ResolveFile(context.Background(), r, in, filepath.Join(dir, "nested", "res.jsonl"), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "res.jsonl"), out)
	assert.Equal(t, []string{
		"https://news.google.com/rss/articles/A",
		"https://news.google.com/rss/articles/B",
		"",
	}, r.links)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t,
		`{"title":"A","link":"https://news.google.com/rss/articles/A","extra":1,"resolved_url":"https://elpais.com/a"}`+"\n"+
			`{"title":"B","link":"https://news.google.com/rss/articles/B","resolved_url":null}`+"\n"+
			`{"title":"C","resolved_url":null}`+"\n",
		string(b))
}

func TestResolveFileMissingInput(t *testing.T) {
	_, err := ResolveFile(context.Background(), &mapResolver{}, filepath.Join(t.TempDir(), "nope.jsonl"), "", zap.NewNop())
	assert.ErrorIs(t, err, ErrInputMissing)
}

func TestResolveFilePropagatesBatchFailure(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "feed.jsonl", `{"link":"https://news.google.com/rss/articles/A"}`)
	boom := errors.New("browser gone")

	_, err := ResolveFile(context.Background(), &mapResolver{err: boom}, in, "", zap.NewNop())
	assert.ErrorIs(t, err, boom)
	_, statErr := os.Stat(OutputPath(in, ""))
	assert.True(t, os.IsNotExist(statErr))
}
