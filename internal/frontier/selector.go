// Package frontier chooses the next identity for the crawl engine to expand.
//
// The store itself is the frontier: every public, not yet crawled identity
// is a candidate. The oldest lastProcessed wins, with never-processed
// identities oldest of all, and remaining ties go to the earliest inserted.
package frontier

import (
	"github.com/nao1215/friendcrawl/internal/model"
)

// Source is the read view of the store the selector needs.
type Source interface {
	// Each visits records in insertion order until fn returns false.
	Each(fn func(rec model.PlayerRecord) bool)
}

// Selector picks frontier identities.
type Selector struct {
	// maxFailures excludes identities whose expansion failed this many
	// times in a row. Zero disables the cap.
	maxFailures int
}

// Option configures a Selector.
type Option func(*Selector)

// WithMaxFailures sets the consecutive-failure cap.
func WithMaxFailures(n int) Option {
	return func(s *Selector) {
		s.maxFailures = n
	}
}

// NewSelector creates a Selector.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the identity to expand next, or false when the frontier is empty.
func (s *Selector) Next(src Source) (string, bool) {
	var (
		best  model.PlayerRecord
		found bool
	)

	src.Each(func(rec model.PlayerRecord) bool {
		if !rec.Expandable(s.maxFailures) {
			return true
		}
		if !found || older(rec, best) {
			best = rec
			found = true
		}
		return true
	})

	return best.ID, found
}

// older reports whether a should be expanded before b.
func older(a, b model.PlayerRecord) bool {
	switch {
	case a.LastProcessed.Equal(b.LastProcessed):
		return a.Seq < b.Seq
	case a.LastProcessed.IsZero():
		return true
	case b.LastProcessed.IsZero():
		return false
	default:
		return a.LastProcessed.Before(b.LastProcessed)
	}
}
