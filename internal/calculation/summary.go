package calculation

import (
	"context"

	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Summary combines the assessments of several jurisdictions for one taxpayer,
// e.g. federal plus state
type Summary struct {
	FilingStatus   domain.FilingStatus `json:"filing_status"`
	Income         decimal.Decimal     `json:"income"`
	Assessments    []*Assessment       `json:"assessments"`
	TotalLiability decimal.Decimal     `json:"total_liability"`
	EffectiveRate  *decimal.Decimal    `json:"effective_rate,omitempty"`
}

// AssessAll assesses every jurisdiction concurrently. Assessments keep the
// input order. The first failure cancels the remaining work and is returned.
func (c *Calculator) AssessAll(ctx context.Context, jurisdictions []domain.Jurisdiction, status domain.FilingStatus, income decimal.Decimal) (*Summary, error) {
	if len(jurisdictions) == 0 {
		return nil, &domain.TaxError{Kind: domain.ErrInvalidJurisdiction, Detail: "no jurisdictions requested"}
	}

	results := make([]*Assessment, len(jurisdictions))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jurisdictions {
		i, j := i, j
		g.Go(func() error {
			a, err := c.Assess(gctx, j, status, income)
			if err != nil {
				return err
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Summary{FilingStatus: status, Income: income, Assessments: results, TotalLiability: decimal.Zero}
	for _, a := range results {
		s.TotalLiability = s.TotalLiability.Add(a.Liability)
	}
	if income.IsPositive() {
		rate, err := ComputeEffectiveRate(s.TotalLiability, income)
		if err != nil {
			return nil, err
		}
		s.EffectiveRate = &rate
	}

	c.logger().Infof("assessed %d jurisdictions: total liability %s", len(results), s.TotalLiability)
	return s, nil
}
