// Package source provides bracket sources for the calculator: an in-memory
// rule set, a SQLite store and an HTML table scraper.
package source

import (
	"context"

	"github.com/rgehrsitz/taxcalc/internal/domain"
)

// RuleSet serves brackets and policies from a loaded rule set
type RuleSet struct {
	rules *domain.RuleSet
}

// NewRuleSet wraps rs. The rule set must not be modified afterwards.
func NewRuleSet(rs *domain.RuleSet) *RuleSet {
	return &RuleSet{rules: rs}
}

// GetBrackets implements calculation.BracketSource
func (s *RuleSet) GetBrackets(_ context.Context, j domain.Jurisdiction, status domain.FilingStatus) ([]domain.Bracket, error) {
	return s.rules.BracketsOf(j, status)
}

// GetPolicy implements calculation.JurisdictionRegistry
func (s *RuleSet) GetPolicy(_ context.Context, j domain.Jurisdiction) (domain.Policy, error) {
	return s.rules.PolicyOf(j)
}
