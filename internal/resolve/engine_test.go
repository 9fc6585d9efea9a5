package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newspeaker/internal/browser"
)

func noNetwork(t *testing.T) roundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request to %s", req.URL)
		return nil, errors.New("network disabled")
	}
}

func TestResolveBatchDecodesURLParameterWithoutNetwork(t *testing.T) {
	b := newFakeBrowser(noNetwork(t), nil)
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(),
		[]string{"https://news.example/rss/articles/XYZ?url=https://elpais.com/a"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, Result{Index: 0, URL: "https://elpais.com/a"}, got[0])
	assert.Zero(t, b.pagesOpened())
	assert.EqualValues(t, 1, b.closed.Load())
}

func TestResolveBatchFollowsNetworkRedirectWithoutPage(t *testing.T) {
	var seen []string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = append(seen, req.URL.String())
		switch req.URL.Host {
		case "news.google.com":
			return redirectTo(req, "https://elmundo.es/b"), nil
		case "elmundo.es":
			return response(req, http.StatusOK, "<html></html>", nil), nil
		}
		return nil, fmt.Errorf("unexpected host %s", req.URL.Host)
	})
	b := newFakeBrowser(rt, nil)
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(), []string{"https://news.google.com/rss/articles/CBMi?oc=5"})
	require.NoError(t, err)

	assert.Equal(t, "https://elmundo.es/b", got[0].URL)
	assert.Zero(t, b.pagesOpened(), "page navigation must not run")
	require.NotEmpty(t, seen)
	assert.Contains(t, seen[0], "hl=es")
	assert.Contains(t, seen[0], "gl=ES")
}

func TestResolveBatchUsesMetaRefreshFromResponse(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return response(req, http.StatusOK,
			`<html><head><META HTTP-EQUIV="Refresh" CONTENT="0; URL='https://www.abc.es/c'"></head></html>`, nil), nil
	})
	b := newFakeBrowser(rt, nil)
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(), []string{"https://news.google.com/rss/articles/R"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.abc.es/c", got[0].URL)
	assert.Zero(t, b.pagesOpened())
}

func TestResolveBatchFallsBackToPageHints(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) { return aggregatorPage(req), nil })
	b := newFakeBrowser(rt, func(int) *fakePage {
		return &fakePage{
			current: "https://news.google.com/rss/articles/P",
			attrs: map[string]string{
				"head link[rel=canonical]":     "https://news.google.com/articles/P",
				"head meta[property='og:url']": "https://www.rtve.es/d",
			},
		}
	})
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(), []string{"https://news.google.com/rss/articles/P"})
	require.NoError(t, err)

	assert.Equal(t, "https://www.rtve.es/d", got[0].URL)
	assert.Equal(t, 1, b.pagesOpened())
	assert.Zero(t, b.open.Load(), "page must be closed")
	assert.Zero(t, b.consent.Load())
}

func TestResolveBatchResolvesRelativeRefreshOnPage(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) { return aggregatorPage(req), nil })
	b := newFakeBrowser(rt, func(int) *fakePage {
		return &fakePage{
			current: "https://www.20minutos.es/landing",
			attrs: map[string]string{
				"head meta[http-equiv='refresh' i]": "0;url=/noticia/1",
			},
		}
	})
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(), []string{"https://news.google.com/rss/articles/M"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.20minutos.es/noticia/1", got[0].URL)
}

func TestResolveBatchRetriesPageOnceAfterConsent(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return redirectTo(req, "https://consent.google.com/ml?continue=x"), nil
	})
	b := newFakeBrowser(rt, func(n int) *fakePage {
		if n == 1 {
			return &fakePage{current: "https://consent.google.com/ml?continue=x"}
		}
		return &fakePage{
			current: "https://www.lavanguardia.com/e",
			attrs:   map[string]string{"head link[rel=canonical]": "https://www.lavanguardia.com/e"},
		}
	})
	b.client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host == "consent.google.com" {
			return aggregatorPage(req), nil
		}
		return rt(req)
	})
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(), []string{"https://news.google.com/rss/articles/C"})
	require.NoError(t, err)

	assert.Equal(t, "https://www.lavanguardia.com/e", got[0].URL)
	assert.EqualValues(t, 1, b.consent.Load())
	assert.Equal(t, 2, b.pagesOpened())
	assert.Zero(t, b.open.Load())
}

func TestResolveBatchNeverReturnsAggregatorHosts(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host == "news.google.com" {
			return redirectTo(req, "https://consent.google.com/ml"), nil
		}
		return response(req, http.StatusOK, `<meta http-equiv="refresh" content="0;url=https://www.google.com/search">`, nil), nil
	})
	b := newFakeBrowser(rt, func(int) *fakePage {
		return &fakePage{
			current: "https://consent.google.com/ml",
			attrs: map[string]string{
				"head link[rel=canonical]":     "https://www.google.com/",
				"head meta[property='og:url']": "https://news.google.com/home",
			},
		}
	})
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(),
		[]string{"https://news.google.com/rss/articles/G?url=https://news.google.com/loop"})
	require.NoError(t, err)

	assert.False(t, got[0].Resolved())
	assert.Equal(t, 2, b.pagesOpened(), "page attempt plus one consent retry")
	assert.EqualValues(t, 1, b.consent.Load())
	assert.Zero(t, b.open.Load())
}

func TestResolveBatchTimeoutsYieldNullAndBatchCompletes(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "slow") {
			return blockUntilDone(req)
		}
		return redirectTo(req, "https://www.eldiario.es/f"), nil
	})
	b := newFakeBrowser(rt, func(int) *fakePage { return &fakePage{block: true} })
	b.client.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host == "www.eldiario.es" {
			return response(req, http.StatusOK, "", nil), nil
		}
		return rt(req)
	})
	e := testEngine(b, Options{
		NetworkTimeout:    30 * time.Millisecond,
		NavigationTimeout: 30 * time.Millisecond,
		SettleTimeout:     30 * time.Millisecond,
	})

	links := []string{
		"https://news.google.com/rss/articles/slow",
		"https://news.google.com/rss/articles/fast",
		"https://news.example/rss/articles/Q?url=https://elpais.com/q",
	}
	got, err := e.ResolveBatch(context.Background(), links)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "", got[0].URL)
	assert.Equal(t, "https://www.eldiario.es/f", got[1].URL)
	assert.Equal(t, "https://elpais.com/q", got[2].URL)
	assert.Zero(t, b.open.Load(), "every page closed on timeout paths")
}

func TestResolveBatchPreservesInputOrder(t *testing.T) {
	const n = 12
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "news.google.com" {
			return response(req, http.StatusOK, "", nil), nil
		}
		var i int
		_, _ = fmt.Sscanf(req.URL.Path, "/rss/articles/%d", &i)
		time.Sleep(time.Duration(n-i) * 3 * time.Millisecond)
		return redirectTo(req, fmt.Sprintf("https://pub%d.example/story", i)), nil
	})
	b := newFakeBrowser(rt, nil)
	e := testEngine(b, Options{Concurrency: 4})

	links := make([]string, n)
	for i := range links {
		links[i] = fmt.Sprintf("https://news.google.com/rss/articles/%d", i)
	}
	got, err := e.ResolveBatch(context.Background(), links)
	require.NoError(t, err)

	require.Len(t, got, n)
	for i, r := range got {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("https://pub%d.example/story", i), r.URL)
	}
}

func TestResolveBatchBoundsConcurrentTasks(t *testing.T) {
	var active, peak atomic.Int32
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "news.google.com" {
			return response(req, http.StatusOK, "", nil), nil
		}
		now := active.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		active.Add(-1)
		return redirectTo(req, "https://www.elconfidencial.com"+req.URL.Path), nil
	})
	b := newFakeBrowser(rt, nil)
	e := testEngine(b, Options{Concurrency: 5})

	links := make([]string, 20)
	for i := range links {
		links[i] = fmt.Sprintf("https://news.google.com/rss/articles/%d", i)
	}
	got, err := e.ResolveBatch(context.Background(), links)
	require.NoError(t, err)

	require.Len(t, got, 20)
	for _, r := range got {
		assert.True(t, r.Resolved())
	}
	assert.LessOrEqual(t, peak.Load(), int32(5))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestResolveBatchCancelledMidBatchReturnsError(t *testing.T) {
	started := make(chan struct{}, 1)
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		return blockUntilDone(req)
	})
	b := newFakeBrowser(rt, nil)
	e := testEngine(b, Options{Concurrency: 1, NetworkTimeout: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-started
		cancel()
	}()

	got, err := e.ResolveBatch(ctx, []string{
		"https://news.google.com/rss/articles/A",
		"https://news.google.com/rss/articles/B",
		"https://news.google.com/rss/articles/C",
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
	assert.EqualValues(t, 1, b.closed.Load())
}

func TestResolveBatchPageUnavailableFailsBatch(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) { return aggregatorPage(req), nil })
	b := newFakeBrowser(rt, nil)
	b.acquireErr = fmt.Errorf("%w: target crashed", browser.ErrPageUnavailable)
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(), []string{
		"https://news.google.com/rss/articles/A",
		"https://news.google.com/rss/articles/B",
	})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, browser.ErrPageUnavailable)
	assert.EqualValues(t, 1, b.closed.Load())
}

func TestResolveBatchLaunchFailure(t *testing.T) {
	e := NewEngine(Options{}, func(context.Context) (Browser, error) {
		return nil, fmt.Errorf("%w: no chrome", browser.ErrLaunch)
	}, zap.NewNop())

	_, err := e.ResolveBatch(context.Background(), []string{"https://news.google.com/rss/articles/A"})
	assert.ErrorIs(t, err, browser.ErrLaunch)
}

func TestResolveBatchEmptyInputSkipsLaunch(t *testing.T) {
	launched := false
	e := NewEngine(Options{}, func(context.Context) (Browser, error) {
		launched = true
		return nil, errors.New("should not launch")
	}, zap.NewNop())

	got, err := e.ResolveBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, launched)
}

func TestResolveBatchBlankLinkIsUnresolved(t *testing.T) {
	b := newFakeBrowser(noNetwork(t), nil)
	e := testEngine(b, Options{})

	got, err := e.ResolveBatch(context.Background(), []string{"  "})
	require.NoError(t, err)
	assert.Equal(t, Result{Index: 0}, got[0])
	assert.Zero(t, b.pagesOpened())
}
