package resolve

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Offer hands a candidate URL to the chain. It returns true when the
// candidate was accepted, after which the strategy must stop.
type Offer func(candidate string) bool

// Strategy is one way of turning an indirection link into candidates.
// Returned errors explain why the strategy produced nothing; only browser
// failures abort the batch.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, target string, offer Offer) error
}

// Chain runs strategies in order and returns the first candidate the
// classifier accepts.
type Chain struct {
	locale     Locale
	classifier Classifier
	strategies []Strategy
	logger     *zap.Logger
}

// NewChain builds a chain over the given strategies.
func NewChain(locale Locale, classifier Classifier, logger *zap.Logger, strategies ...Strategy) *Chain {
	return &Chain{
		locale:     locale,
		classifier: classifier,
		strategies: strategies,
		logger:     logger,
	}
}

// Run resolves link. It returns ErrExhausted when no strategy produced an
// accepted candidate, and a fatal error when the browser is unusable.
func (c *Chain) Run(ctx context.Context, link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", ErrExhausted
	}
	target := c.locale.Apply(link)
	logger := c.logger.With(zap.String("link", link))

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		var winner string
		offer := func(candidate string) bool {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				return false
			}
			if !c.classifier.IsFinal(candidate) {
				logger.Debug("candidate rejected",
					zap.String("strategy", s.Name()),
					zap.String("candidate", candidate),
					zap.Error(ErrClassificationReject))
				return false
			}
			winner = candidate
			return true
		}

		err := s.Attempt(ctx, target, offer)
		if winner != "" {
			logger.Debug("link resolved", zap.String("strategy", s.Name()), zap.String("resolved_url", winner))
			return winner, nil
		}
		if err != nil {
			if fatal(err) {
				return "", err
			}
			logger.Debug("strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
		}
	}
	return "", ErrExhausted
}
