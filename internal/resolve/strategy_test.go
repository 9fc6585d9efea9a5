package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newspeaker/internal/browser"
)

type scripted struct {
	name       string
	candidates []string
	err        error
	calls      int
	offered    []bool
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) Attempt(_ context.Context, _ string, offer Offer) error {
	s.calls++
	for _, c := range s.candidates {
		ok := offer(c)
		s.offered = append(s.offered, ok)
		if ok {
			return nil
		}
	}
	return s.err
}

func TestChainStopsAtFirstAcceptedCandidate(t *testing.T) {
	first := &scripted{name: "first", candidates: []string{"https://news.google.com/a", "https://consent.google.com/b"}}
	second := &scripted{name: "second", candidates: []string{"", "https://elpais.com/c", "https://elmundo.es/d"}}
	third := &scripted{name: "third", candidates: []string{"https://abc.es/e"}}
	chain := NewChain(DefaultLocale(), DefaultClassifier(), zap.NewNop(), first, second, third)

	got, err := chain.Run(context.Background(), "https://news.google.com/rss/articles/1")
	require.NoError(t, err)

	assert.Equal(t, "https://elpais.com/c", got)
	assert.Equal(t, []bool{false, false}, first.offered)
	assert.Equal(t, []bool{false, true}, second.offered)
	assert.Zero(t, third.calls)
}

func TestChainTreatsStrategyErrorsAsFallthrough(t *testing.T) {
	broken := &scripted{name: "broken", err: fmt.Errorf("%w: dns", ErrTransport)}
	timeout := &scripted{name: "timeout", err: ErrNavigationTimeout}
	chain := NewChain(DefaultLocale(), DefaultClassifier(), zap.NewNop(), broken, timeout)

	_, err := chain.Run(context.Background(), "https://news.google.com/rss/articles/1")
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, timeout.calls)
}

func TestChainPropagatesBrowserFailures(t *testing.T) {
	dead := &scripted{name: "page", err: fmt.Errorf("%w: crashed", browser.ErrPageUnavailable)}
	after := &scripted{name: "after"}
	chain := NewChain(DefaultLocale(), DefaultClassifier(), zap.NewNop(), dead, after)

	_, err := chain.Run(context.Background(), "https://news.google.com/rss/articles/1")
	assert.ErrorIs(t, err, browser.ErrPageUnavailable)
	assert.Zero(t, after.calls)
}

func TestChainStopsWhenContextCancelled(t *testing.T) {
	s := &scripted{name: "s"}
	chain := NewChain(DefaultLocale(), DefaultClassifier(), zap.NewNop(), s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := chain.Run(ctx, "https://news.google.com/rss/articles/1")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, s.calls)
}

func TestDirectParamOffersDecodedValue(t *testing.T) {
	var offered []string
	err := directParam{}.Attempt(context.Background(),
		"https://news.example/rss/articles/XYZ?url=https%3A%2F%2Felpais.com%2Fa%3Fb%3D1",
		func(c string) bool { offered = append(offered, c); return true })

	require.NoError(t, err)
	assert.Equal(t, []string{"https://elpais.com/a?b=1"}, offered)
}
