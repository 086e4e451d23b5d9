package config

import (
	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
)

// noIncomeTaxStates do not collect a general income tax
var noIncomeTaxStates = []string{"AK", "FL", "NV", "SD", "TN", "TX", "WY"}

// table builds bracket rules from parallel rate and floor slices; the last
// floor starts the unbounded bracket
func table(rates []string, floors []int64) []domain.BracketRule {
	rules := make([]domain.BracketRule, len(rates))
	for i := range rates {
		rules[i] = domain.BracketRule{
			Rate: decimal.RequireFromString(rates[i]),
			Min:  decimal.NewFromInt(floors[i]),
		}
		if i+1 < len(floors) {
			ceiling := decimal.NewFromInt(floors[i+1])
			rules[i].Max = &ceiling
		}
	}
	return rules
}

// CreateExampleRuleSet returns a small sample rule set covering each policy kind
func (ip *InputParser) CreateExampleRuleSet() *domain.RuleSet {
	fedRates := []string{"0.10", "0.12", "0.22", "0.24", "0.32", "0.35", "0.37"}

	rs := &domain.RuleSet{
		Metadata: domain.RuleSetMetadata{
			Description: "Sample tax rules. Replace with current tables before relying on results.",
			Source:      "example",
		},
		Jurisdictions: map[string]domain.JurisdictionRules{
			"FED": {
				Name:   "Federal",
				Policy: domain.PolicyProgressive,
				Brackets: map[domain.FilingStatus][]domain.BracketRule{
					domain.Single:          table(fedRates, []int64{0, 11600, 47150, 100525, 191950, 243725, 609350}),
					domain.MarriedJoint:    table(fedRates, []int64{0, 23200, 94300, 201050, 383900, 487450, 731200}),
					domain.MarriedSeparate: table(fedRates, []int64{0, 11600, 47150, 100525, 191950, 243725, 365600}),
					domain.HeadOfHousehold: table(fedRates, []int64{0, 16550, 63100, 100500, 191950, 243700, 609350}),
				},
			},
			"PA": {
				Name:   "Pennsylvania",
				Policy: domain.PolicyProgressive,
				Brackets: map[domain.FilingStatus][]domain.BracketRule{
					domain.Single:          table([]string{"0.0307"}, []int64{0}),
					domain.MarriedJoint:    table([]string{"0.0307"}, []int64{0}),
					domain.MarriedSeparate: table([]string{"0.0307"}, []int64{0}),
					domain.HeadOfHousehold: table([]string{"0.0307"}, []int64{0}),
				},
			},
			"NH": {
				Name:           "New Hampshire",
				Policy:         domain.PolicyFlatSpecialIncome,
				Rate:           decimal.RequireFromString("0.05"),
				IncomeCategory: "interest and dividends",
			},
			"WA": {
				Name:           "Washington",
				Policy:         domain.PolicyFlatSpecialIncome,
				Rate:           decimal.RequireFromString("0.07"),
				IncomeCategory: "capital gains",
			},
		},
	}

	for _, code := range noIncomeTaxStates {
		rs.Jurisdictions[code] = domain.JurisdictionRules{Policy: domain.PolicyNoTax}
	}
	return rs
}
