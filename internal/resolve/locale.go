package resolve

import (
	"net/url"
	"strings"
)

// Locale holds the edition parameters the aggregator expects on article links.
type Locale struct {
	HL   string
	GL   string
	CEID string
}

// DefaultLocale is the Spanish edition.
func DefaultLocale() Locale {
	return Locale{HL: "es", GL: "ES", CEID: "ES:es"}
}

// Apply adds hl, gl and ceid to aggregator article-redirect links so the
// server answers with a stable redirect. Other links are returned unchanged.
func (l Locale) Apply(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	host := strings.ToLower(u.Hostname())
	if host != AggregatorHost && !strings.HasSuffix(host, "."+AggregatorHost) {
		return link
	}
	if !strings.Contains(u.Path, "/rss/articles/") {
		return link
	}

	q := u.Query()
	for key, value := range map[string]string{"hl": l.HL, "gl": l.GL, "ceid": l.CEID} {
		if value != "" {
			q.Set(key, value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
