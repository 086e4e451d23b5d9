package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// RuleSet contains the tax rules of every known jurisdiction.
// It is loaded from a rules YAML file or built in code.
type RuleSet struct {
	Metadata      RuleSetMetadata              `yaml:"metadata" json:"metadata"`
	Jurisdictions map[string]JurisdictionRules `yaml:"jurisdictions" json:"jurisdictions"`
}

// RuleSetMetadata contains information about the rule data
type RuleSetMetadata struct {
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	LastUpdated string `yaml:"last_updated,omitempty" json:"last_updated,omitempty"`
	Source      string `yaml:"source,omitempty" json:"source,omitempty"`
}

// JurisdictionRules contains one jurisdiction's policy and bracket tables
type JurisdictionRules struct {
	Name           string                         `yaml:"name,omitempty" json:"name,omitempty"`
	Policy         PolicyKind                     `yaml:"policy" json:"policy"`
	Rate           decimal.Decimal                `yaml:"rate,omitempty" json:"rate,omitempty"`
	IncomeCategory string                         `yaml:"income_category,omitempty" json:"income_category,omitempty"`
	Brackets       map[FilingStatus][]BracketRule `yaml:"brackets,omitempty" json:"brackets,omitempty"`
}

// BracketRule is the file representation of a bracket. A nil Max marks the
// unbounded top bracket.
type BracketRule struct {
	Rate decimal.Decimal  `yaml:"rate" json:"rate"`
	Min  decimal.Decimal  `yaml:"min" json:"min"`
	Max  *decimal.Decimal `yaml:"max,omitempty" json:"max,omitempty"`
}

// ToPolicy converts the rules into a Policy value
func (jr JurisdictionRules) ToPolicy() Policy {
	switch jr.Policy {
	case PolicyFlatSpecialIncome:
		return FlatSpecialIncome(jr.Rate, jr.IncomeCategory)
	case PolicyProgressive:
		return Progressive()
	}
	return NoTax()
}

// BracketsFor returns a fresh bracket slice for the filing status, in file order
func (jr JurisdictionRules) BracketsFor(status FilingStatus) []Bracket {
	rules := jr.Brackets[status]
	if len(rules) == 0 {
		return nil
	}
	brackets := make([]Bracket, 0, len(rules))
	for _, r := range rules {
		if r.Max == nil {
			brackets = append(brackets, NewTopBracket(r.Rate, status, r.Min))
			continue
		}
		brackets = append(brackets, NewBracket(r.Rate, status, r.Min, *r.Max))
	}
	return brackets
}

// Codes returns the jurisdiction codes in sorted order
func (rs *RuleSet) Codes() []Jurisdiction {
	codes := make([]Jurisdiction, 0, len(rs.Jurisdictions))
	for code := range rs.Jurisdictions {
		codes = append(codes, Jurisdiction(code))
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Lookup finds a jurisdiction's rules by code, ignoring case
func (rs *RuleSet) Lookup(j Jurisdiction) (JurisdictionRules, bool) {
	if rs == nil {
		return JurisdictionRules{}, false
	}
	jr, ok := rs.Jurisdictions[string(NewJurisdiction(string(j)))]
	return jr, ok
}

// PolicyOf returns the jurisdiction's policy, or ErrInvalidJurisdiction when
// the code is unknown
func (rs *RuleSet) PolicyOf(j Jurisdiction) (Policy, error) {
	jr, ok := rs.Lookup(j)
	if !ok {
		return Policy{}, &TaxError{Kind: ErrInvalidJurisdiction, Jurisdiction: NewJurisdiction(string(j)), Detail: "unknown jurisdiction"}
	}
	return jr.ToPolicy(), nil
}

// BracketsOf returns the bracket table for a jurisdiction and filing status,
// or ErrMissingBracketData when there is none
func (rs *RuleSet) BracketsOf(j Jurisdiction, status FilingStatus) ([]Bracket, error) {
	jr, ok := rs.Lookup(j)
	if !ok {
		return nil, &TaxError{Kind: ErrMissingBracketData, Jurisdiction: NewJurisdiction(string(j)), FilingStatus: status, Detail: "unknown jurisdiction"}
	}
	brackets := jr.BracketsFor(status)
	if len(brackets) == 0 {
		return nil, &TaxError{Kind: ErrMissingBracketData, Jurisdiction: NewJurisdiction(string(j)), FilingStatus: status}
	}
	return brackets, nil
}
