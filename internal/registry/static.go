// Package registry provides jurisdiction registries: which policy a
// jurisdiction follows. Registries are built once by the caller and injected
// into a calculation.Calculator; refreshing them is an explicit call.
package registry

import (
	"context"
	"sort"

	"github.com/rgehrsitz/taxcalc/internal/domain"
)

// Static is an immutable in-memory registry
type Static struct {
	policies map[domain.Jurisdiction]domain.Policy
}

// NewStatic creates a registry from a policy table. Codes are normalized.
func NewStatic(policies map[domain.Jurisdiction]domain.Policy) *Static {
	s := &Static{policies: make(map[domain.Jurisdiction]domain.Policy, len(policies))}
	for code, p := range policies {
		s.policies[domain.NewJurisdiction(string(code))] = p
	}
	return s
}

// FromRuleSet creates a registry holding every jurisdiction of a rule set
func FromRuleSet(rs *domain.RuleSet) *Static {
	policies := make(map[domain.Jurisdiction]domain.Policy, len(rs.Jurisdictions))
	for code, jr := range rs.Jurisdictions {
		policies[domain.Jurisdiction(code)] = jr.ToPolicy()
	}
	return NewStatic(policies)
}

// GetPolicy implements calculation.JurisdictionRegistry
func (s *Static) GetPolicy(_ context.Context, j domain.Jurisdiction) (domain.Policy, error) {
	code := domain.NewJurisdiction(string(j))
	p, ok := s.policies[code]
	if !ok {
		return domain.Policy{}, &domain.TaxError{Kind: domain.ErrInvalidJurisdiction, Jurisdiction: code, Detail: "unknown jurisdiction"}
	}
	return p, nil
}

// Jurisdictions returns the known codes in sorted order
func (s *Static) Jurisdictions() []domain.Jurisdiction {
	codes := make([]domain.Jurisdiction, 0, len(s.policies))
	for code := range s.policies {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// WithoutIncomeTax returns the codes whose policy is no_tax
func (s *Static) WithoutIncomeTax() []domain.Jurisdiction {
	var codes []domain.Jurisdiction
	for _, code := range s.Jurisdictions() {
		if s.policies[code].Kind == domain.PolicyNoTax {
			codes = append(codes, code)
		}
	}
	return codes
}
