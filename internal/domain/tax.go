package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FilingStatus selects which bracket table applies to a taxpayer
type FilingStatus string

const (
	Single          FilingStatus = "S"
	MarriedJoint    FilingStatus = "MFJ"
	MarriedSeparate FilingStatus = "MFS"
	HeadOfHousehold FilingStatus = "HH"
)

// FilingStatuses lists every filing status in display order
var FilingStatuses = []FilingStatus{Single, MarriedJoint, MarriedSeparate, HeadOfHousehold}

var filingStatusNames = map[string]FilingStatus{
	"s":                         Single,
	"single":                    Single,
	"mfj":                       MarriedJoint,
	"married_joint":             MarriedJoint,
	"married_filing_jointly":    MarriedJoint,
	"mfs":                       MarriedSeparate,
	"married_separate":          MarriedSeparate,
	"married_filing_separately": MarriedSeparate,
	"hh":                        HeadOfHousehold,
	"head_of_household":         HeadOfHousehold,
}

// ParseFilingStatus accepts a status code (S, MFJ, MFS, HH) or its long name.
// Spaces, hyphens and underscores in long names are interchangeable.
func ParseFilingStatus(s string) (FilingStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.Join(strings.FieldsFunc(key, func(r rune) bool { return r == ' ' || r == '-' || r == '_' }), "_")
	if fs, ok := filingStatusNames[key]; ok {
		return fs, nil
	}
	return "", &TaxError{Kind: ErrInvalidFilingStatus, Detail: fmt.Sprintf("unrecognized filing status %q", s)}
}

// Valid reports whether fs is one of the known filing statuses
func (fs FilingStatus) Valid() bool {
	switch fs {
	case Single, MarriedJoint, MarriedSeparate, HeadOfHousehold:
		return true
	}
	return false
}

// Label returns a human readable name for the filing status
func (fs FilingStatus) Label() string {
	switch fs {
	case Single:
		return "Single"
	case MarriedJoint:
		return "Married filing jointly"
	case MarriedSeparate:
		return "Married filing separately"
	case HeadOfHousehold:
		return "Head of household"
	}
	return string(fs)
}

// Jurisdiction identifies a taxing authority by code, e.g. "CA" or "FED"
type Jurisdiction string

// NewJurisdiction normalizes a jurisdiction code to trimmed upper case
func NewJurisdiction(code string) Jurisdiction {
	return Jurisdiction(strings.ToUpper(strings.TrimSpace(code)))
}

func (j Jurisdiction) String() string { return string(j) }

// Bracket applies one marginal rate over an income range.
// The top bracket of a table is Unbounded and its High is ignored.
type Bracket struct {
	Rate         decimal.Decimal
	FilingStatus FilingStatus
	Low          decimal.Decimal
	High         decimal.Decimal
	Unbounded    bool
}

// NewBracket creates a bracket covering [low, high)
func NewBracket(rate decimal.Decimal, status FilingStatus, low, high decimal.Decimal) Bracket {
	return Bracket{Rate: rate, FilingStatus: status, Low: low, High: high}
}

// NewTopBracket creates a bracket with no upper bound starting at low
func NewTopBracket(rate decimal.Decimal, status FilingStatus, low decimal.Decimal) Bracket {
	return Bracket{Rate: rate, FilingStatus: status, Low: low, Unbounded: true}
}

// Ceiling returns the smaller of the bracket's upper bound and income
func (b Bracket) Ceiling(income decimal.Decimal) decimal.Decimal {
	if b.Unbounded {
		return income
	}
	return decimal.Min(b.High, income)
}

// Inverted reports whether the bracket's upper bound lies below its lower bound
func (b Bracket) Inverted() bool {
	return !b.Unbounded && b.High.LessThan(b.Low)
}

func (b Bracket) String() string {
	high := "inf"
	if !b.Unbounded {
		high = b.High.String()
	}
	return fmt.Sprintf("%s %s [%s, %s)", b.FilingStatus, b.Rate.String(), b.Low.String(), high)
}

// PolicyKind classifies how a jurisdiction taxes income
type PolicyKind string

const (
	PolicyProgressive       PolicyKind = "progressive"
	PolicyFlatSpecialIncome PolicyKind = "flat_special_income"
	PolicyNoTax             PolicyKind = "no_tax"
)

// Valid reports whether k is a known policy kind
func (k PolicyKind) Valid() bool {
	switch k {
	case PolicyProgressive, PolicyFlatSpecialIncome, PolicyNoTax:
		return true
	}
	return false
}

// Policy is a jurisdiction's tax classification. Rate and IncomeCategory are
// only meaningful for PolicyFlatSpecialIncome.
type Policy struct {
	Kind           PolicyKind
	Rate           decimal.Decimal
	IncomeCategory string
}

// Progressive returns a bracket based policy
func Progressive() Policy {
	return Policy{Kind: PolicyProgressive}
}

// FlatSpecialIncome returns a policy taxing one income category at a fixed rate
func FlatSpecialIncome(rate decimal.Decimal, category string) Policy {
	return Policy{Kind: PolicyFlatSpecialIncome, Rate: rate, IncomeCategory: category}
}

// NoTax returns a policy for jurisdictions without an income tax
func NoTax() Policy {
	return Policy{Kind: PolicyNoTax}
}
