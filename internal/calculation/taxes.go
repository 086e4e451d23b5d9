package calculation

import (
	"fmt"

	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
)

// TAX CALCULATION ASSUMPTIONS:
//
// 1. Income is taxable income. Deductions and credits are applied by the caller.
// 2. Progressive: each bracket's rate applies only to the slice of income between
//    its Low and the smaller of its High and the income.
// 3. Flat special income: one rate on the whole amount, no brackets.
// 4. No rounding is applied. Decimal arithmetic keeps results exact.

var hundred = decimal.NewFromInt(100)

// BracketShare is the part of a liability produced by one bracket
type BracketShare struct {
	Rate  decimal.Decimal  `json:"rate"`
	Low   decimal.Decimal  `json:"low"`
	High  *decimal.Decimal `json:"high,omitempty"`
	Taxed decimal.Decimal  `json:"taxed"`
	Tax   decimal.Decimal  `json:"tax"`
}

// TaxCalculator applies bracket and flat-rate formulas.
// It keeps no per-call state and is safe for concurrent use.
type TaxCalculator struct {
	Logger Logger
	Sink   DiagnosticSink // nil reports through Logger
}

// NewTaxCalculator creates a tax calculator that discards diagnostics
func NewTaxCalculator() *TaxCalculator {
	return &TaxCalculator{Logger: NopLogger{}}
}

func (tc *TaxCalculator) logger() Logger {
	if tc.Logger == nil {
		return NopLogger{}
	}
	return tc.Logger
}

func (tc *TaxCalculator) sink() DiagnosticSink {
	if tc.Sink != nil {
		return tc.Sink
	}
	return logSink{logger: tc.logger()}
}

// ComputeLiability sums rate * taxed portion over every bracket whose floor
// lies below income. An empty bracket set yields zero with ErrMissingBracketData.
// Inverted brackets are skipped; all integrity faults go to the diagnostic sink.
func (tc *TaxCalculator) ComputeLiability(brackets []domain.Bracket, income decimal.Decimal) (decimal.Decimal, error) {
	total, _, err := tc.apply(brackets, income)
	return total, err
}

// Breakdown is ComputeLiability returning each contributing bracket's share
func (tc *TaxCalculator) Breakdown(brackets []domain.Bracket, income decimal.Decimal) (decimal.Decimal, []BracketShare, error) {
	return tc.apply(brackets, income)
}

func (tc *TaxCalculator) apply(brackets []domain.Bracket, income decimal.Decimal) (decimal.Decimal, []BracketShare, error) {
	if income.IsNegative() {
		return decimal.Zero, nil, &domain.TaxError{Kind: domain.ErrInvalidIncome, Detail: fmt.Sprintf("income %s is negative", income)}
	}
	if len(brackets) == 0 {
		return decimal.Zero, nil, &domain.TaxError{Kind: domain.ErrMissingBracketData, Detail: "empty bracket set"}
	}

	sink := tc.sink()
	for _, d := range CheckBrackets(brackets) {
		sink.Report(d)
	}

	var shares []BracketShare
	total := decimal.Zero
	for _, b := range brackets {
		if b.Inverted() {
			continue
		}
		if income.LessThanOrEqual(b.Low) {
			continue
		}
		taxed := b.Ceiling(income).Sub(b.Low)
		tax := taxed.Mul(b.Rate)
		total = total.Add(tax)

		share := BracketShare{Rate: b.Rate, Low: b.Low, Taxed: taxed, Tax: tax}
		if !b.Unbounded {
			high := b.High
			share.High = &high
		}
		shares = append(shares, share)
	}

	tc.logger().Debugf("liability %s on income %s across %d brackets", total, income, len(shares))
	return total, shares, nil
}

// ComputeFlatLiability returns income * rate for jurisdictions that tax a
// single income category at one rate
func (tc *TaxCalculator) ComputeFlatLiability(rate, income decimal.Decimal) (decimal.Decimal, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, &domain.TaxError{Kind: domain.ErrInvalidRate, Detail: fmt.Sprintf("rate %s outside [0, 1]", rate)}
	}
	if income.IsNegative() {
		return decimal.Zero, &domain.TaxError{Kind: domain.ErrInvalidIncome, Detail: fmt.Sprintf("income %s is negative", income)}
	}
	return income.Mul(rate), nil
}

// ComputeEffectiveRate returns liability as a percentage of income
func ComputeEffectiveRate(liability, income decimal.Decimal) (decimal.Decimal, error) {
	if income.IsZero() {
		return decimal.Zero, &domain.TaxError{Kind: domain.ErrDivisionByZero, Detail: "effective rate of zero income"}
	}
	if income.IsNegative() {
		return decimal.Zero, &domain.TaxError{Kind: domain.ErrInvalidIncome, Detail: fmt.Sprintf("income %s is negative", income)}
	}
	return liability.Div(income).Mul(hundred), nil
}

// MarginalRate returns the rate of the highest bracket that taxed any income
func MarginalRate(shares []BracketShare) decimal.Decimal {
	rate := decimal.Zero
	var low *decimal.Decimal
	for i := range shares {
		if shares[i].Taxed.Sign() <= 0 {
			continue
		}
		if low == nil || shares[i].Low.GreaterThanOrEqual(*low) {
			low = &shares[i].Low
			rate = shares[i].Rate
		}
	}
	return rate
}
