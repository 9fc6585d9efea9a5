package resolve

import (
	"net/url"
	"strings"
)

// Aggregator hosts. Anything on these hosts, or below them, is not a
// publisher URL.
const (
	AggregatorHost = "news.google.com"
	ConsentHost    = "consent.google.com"
	ParentDomain   = "google.com"
)

// Classifier decides whether a candidate URL has left the aggregator.
type Classifier struct {
	blocked []string
}

// NewClassifier rejects the given domains and all of their subdomains.
func NewClassifier(domains ...string) Classifier {
	blocked := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			blocked = append(blocked, d)
		}
	}
	return Classifier{blocked: blocked}
}

// DefaultClassifier rejects the aggregator, its consent host and its parent domain.
func DefaultClassifier() Classifier {
	return NewClassifier(AggregatorHost, ConsentHost, ParentDomain)
}

// IsFinal reports whether raw is an absolute http(s) URL outside the
// aggregator's domain family.
func (c Classifier) IsFinal(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false
	}
	for _, d := range c.blocked {
		if host == d || strings.HasSuffix(host, "."+d) {
			return false
		}
	}
	return true
}
