package resolve

import (
	"context"
	"net/url"
)

// directParam reads the publisher URL straight from a "url" query parameter.
type directParam struct{}

func (directParam) Name() string { return "direct" }

func (directParam) Attempt(_ context.Context, target string, offer Offer) error {
	u, err := url.Parse(target)
	if err != nil {
		return nil
	}
	if v := u.Query().Get("url"); v != "" {
		offer(v)
	}
	return nil
}
