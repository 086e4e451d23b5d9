package calculation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
)

// BracketSource supplies the ordered bracket set for a jurisdiction and filing status.
// It returns domain.ErrMissingBracketData when no rules exist for the pair.
type BracketSource interface {
	GetBrackets(ctx context.Context, jurisdiction domain.Jurisdiction, status domain.FilingStatus) ([]domain.Bracket, error)
}

// JurisdictionRegistry classifies jurisdictions.
// It returns domain.ErrInvalidJurisdiction for unknown codes.
type JurisdictionRegistry interface {
	GetPolicy(ctx context.Context, jurisdiction domain.Jurisdiction) (domain.Policy, error)
}

// Assessment is the full result of one liability calculation
type Assessment struct {
	Jurisdiction  domain.Jurisdiction `json:"jurisdiction"`
	FilingStatus  domain.FilingStatus `json:"filing_status"`
	Policy        domain.PolicyKind   `json:"policy"`
	Income        decimal.Decimal     `json:"income"`
	Liability     decimal.Decimal     `json:"liability"`
	EffectiveRate *decimal.Decimal    `json:"effective_rate,omitempty"` // nil for zero income
	MarginalRate  decimal.Decimal     `json:"marginal_rate"`
	Breakdown     []BracketShare      `json:"breakdown,omitempty"`
	Diagnostics   []Diagnostic        `json:"diagnostics,omitempty"`
}

// Calculator dispatches a liability request to the calculation its
// jurisdiction's policy calls for. Registry and Source are injected by the
// caller; the calculator holds no other state.
type Calculator struct {
	TaxCalc  *TaxCalculator
	Registry JurisdictionRegistry
	Source   BracketSource
	Logger   Logger
}

// NewCalculator creates a calculator over the given registry and bracket source
func NewCalculator(registry JurisdictionRegistry, source BracketSource) *Calculator {
	return &Calculator{
		TaxCalc:  NewTaxCalculator(),
		Registry: registry,
		Source:   source,
		Logger:   NopLogger{},
	}
}

// SetLogger sets the logger for the calculator and its tax calculator.
// A nil logger installs NopLogger.
func (c *Calculator) SetLogger(logger Logger) {
	if logger == nil {
		logger = NopLogger{}
	}
	c.Logger = logger
	if c.TaxCalc == nil {
		c.TaxCalc = NewTaxCalculator()
	}
	c.TaxCalc.Logger = logger
}

func (c *Calculator) logger() Logger {
	if c.Logger == nil {
		return NopLogger{}
	}
	return c.Logger
}

// ResolvePolicy looks up the jurisdiction's policy in the registry
func (c *Calculator) ResolvePolicy(ctx context.Context, jurisdiction domain.Jurisdiction) (domain.Policy, error) {
	if c.Registry == nil {
		return domain.Policy{}, errors.New("calculator has no jurisdiction registry")
	}
	policy, err := c.Registry.GetPolicy(ctx, jurisdiction)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidJurisdiction) {
			return domain.Policy{}, err
		}
		return domain.Policy{}, fmt.Errorf("failed to resolve policy for %s: %w", jurisdiction, err)
	}
	if !policy.Kind.Valid() {
		return domain.Policy{}, &domain.TaxError{Kind: domain.ErrInvalidJurisdiction, Jurisdiction: jurisdiction,
			Detail: fmt.Sprintf("unknown policy kind %q", policy.Kind)}
	}
	return policy, nil
}

// ComputeTaxDue returns the liability owed to a jurisdiction
func (c *Calculator) ComputeTaxDue(ctx context.Context, jurisdiction domain.Jurisdiction, status domain.FilingStatus, income decimal.Decimal) (decimal.Decimal, error) {
	a, err := c.Assess(ctx, jurisdiction, status, income)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Liability, nil
}

// Assess computes the liability with its breakdown, effective rate and any
// bracket diagnostics raised along the way
func (c *Calculator) Assess(ctx context.Context, jurisdiction domain.Jurisdiction, status domain.FilingStatus, income decimal.Decimal) (*Assessment, error) {
	jurisdiction = domain.NewJurisdiction(string(jurisdiction))
	if income.IsNegative() {
		return nil, &domain.TaxError{Kind: domain.ErrInvalidIncome, Jurisdiction: jurisdiction, FilingStatus: status,
			Detail: fmt.Sprintf("income %s is negative", income)}
	}
	if !status.Valid() {
		return nil, &domain.TaxError{Kind: domain.ErrInvalidFilingStatus, Jurisdiction: jurisdiction,
			Detail: fmt.Sprintf("unrecognized filing status %q", status)}
	}

	policy, err := c.ResolvePolicy(ctx, jurisdiction)
	if err != nil {
		return nil, err
	}

	a := &Assessment{Jurisdiction: jurisdiction, FilingStatus: status, Policy: policy.Kind, Income: income}
	rec := &DiagnosticRecorder{}
	tc := c.taxCalcWith(rec)

	switch policy.Kind {
	case domain.PolicyProgressive:
		if c.Source == nil {
			return nil, errors.New("calculator has no bracket source")
		}
		brackets, err := c.Source.GetBrackets(ctx, jurisdiction, status)
		if err != nil {
			if errors.Is(err, domain.ErrMissingBracketData) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to get brackets for %s/%s: %w", jurisdiction, status, err)
		}
		liability, shares, err := tc.Breakdown(brackets, income)
		if err != nil {
			return nil, withContext(err, jurisdiction, status)
		}
		a.Liability = liability
		a.Breakdown = shares
		a.MarginalRate = MarginalRate(shares)

	case domain.PolicyFlatSpecialIncome:
		liability, err := tc.ComputeFlatLiability(policy.Rate, income)
		if err != nil {
			return nil, withContext(err, jurisdiction, status)
		}
		a.Liability = liability
		a.MarginalRate = policy.Rate

	default:
		return nil, &domain.TaxError{Kind: domain.ErrInvalidJurisdiction, Jurisdiction: jurisdiction,
			Detail: "jurisdiction does not collect income tax"}
	}

	if income.IsPositive() {
		rate, err := ComputeEffectiveRate(a.Liability, income)
		if err != nil {
			return nil, withContext(err, jurisdiction, status)
		}
		a.EffectiveRate = &rate
	}
	a.Diagnostics = rec.Diagnostics()

	c.logger().Debugf("assessed %s/%s: income=%s liability=%s diagnostics=%d",
		jurisdiction, status, income, a.Liability, len(a.Diagnostics))
	return a, nil
}

// taxCalcWith copies the tax calculator so diagnostics also reach rec
func (c *Calculator) taxCalcWith(rec *DiagnosticRecorder) *TaxCalculator {
	base := c.TaxCalc
	if base == nil {
		base = NewTaxCalculator()
	}
	tc := *base
	tc.Sink = teeSink{base.sink(), rec}
	return &tc
}

// withContext attaches the request to a context-free TaxError
func withContext(err error, jurisdiction domain.Jurisdiction, status domain.FilingStatus) error {
	var te *domain.TaxError
	if errors.As(err, &te) && te.Jurisdiction == "" {
		out := *te
		out.Jurisdiction = jurisdiction
		out.FilingStatus = status
		return &out
	}
	return err
}
