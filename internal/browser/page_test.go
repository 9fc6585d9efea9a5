package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleTrackerWaitsForInflightRequests(t *testing.T) {
	tr := newIdleTracker()
	tr.handle(&network.EventRequestWillBeSent{RequestID: "1"})
	tr.handle(&network.EventRequestWillBeSent{RequestID: "2"})

	go func() {
		time.Sleep(30 * time.Millisecond)
		tr.handle(&network.EventLoadingFinished{RequestID: "1"})
		tr.handle(&network.EventLoadingFailed{RequestID: "2"})
	}()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tr.wait(ctx, 40*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestIdleTrackerTimesOutWhileBusy(t *testing.T) {
	tr := newIdleTracker()
	tr.handle(&network.EventRequestWillBeSent{RequestID: "long-poll"})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	err := tr.wait(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChromePageCloseReleasesOnce(t *testing.T) {
	released := 0
	cancelled := 0
	p := &chromePage{
		cancel:  func() { cancelled++ },
		release: func() { released++ },
	}

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, released)
	assert.Equal(t, 1, cancelled)
}
