// Package score turns verified transaction values into claim scores.
package score

import "github.com/shopspring/decimal"

// Scorer maps a verified, non-negative amount to the score folded into
// aggregates.
type Scorer interface {
	Score(verified decimal.Decimal) decimal.Decimal
}

// IdentityScorer scores a claim with its verified value.
type IdentityScorer struct{}

func (IdentityScorer) Score(verified decimal.Decimal) decimal.Decimal {
	return verified
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(decimal.Decimal) decimal.Decimal

func (f ScorerFunc) Score(verified decimal.Decimal) decimal.Decimal {
	return f(verified)
}
