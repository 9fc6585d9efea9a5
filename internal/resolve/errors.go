package resolve

import (
	"context"
	"errors"

	"newspeaker/internal/browser"
)

// Per-URL failure kinds. They are logged and turned into an unresolved
// result; none of them fails a batch.
var (
	ErrTransport            = errors.New("transport failure")
	ErrNavigationTimeout    = errors.New("navigation timeout")
	ErrClassificationReject = errors.New("candidate still on aggregator")
	ErrExhausted            = errors.New("all strategies exhausted")
)

// fatal reports whether err must abort the whole batch. Only failures of
// the shared browser itself qualify.
func fatal(err error) bool {
	return errors.Is(err, browser.ErrLaunch) ||
		errors.Is(err, browser.ErrPageUnavailable) ||
		errors.Is(err, context.Canceled)
}
