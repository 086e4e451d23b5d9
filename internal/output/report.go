package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rgehrsitz/taxcalc/internal/calculation"
	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
)

// Formatter renders calculation results in one output format
type Formatter interface {
	Name() string
	FormatAssessment(a *calculation.Assessment) ([]byte, error)
	FormatSummary(s *calculation.Summary) ([]byte, error)
	FormatJurisdictions(entries []JurisdictionEntry) ([]byte, error)
}

// JurisdictionEntry is one row of a jurisdiction listing
type JurisdictionEntry struct {
	Code           domain.Jurisdiction   `json:"code"`
	Name           string                `json:"name,omitempty"`
	Policy         domain.PolicyKind     `json:"policy"`
	Rate           *decimal.Decimal      `json:"rate,omitempty"`
	IncomeCategory string                `json:"income_category,omitempty"`
	FilingStatuses []domain.FilingStatus `json:"filing_statuses,omitempty"`
}

// JurisdictionEntries lists every jurisdiction of a rule set in code order
func JurisdictionEntries(rs *domain.RuleSet) []JurisdictionEntry {
	var entries []JurisdictionEntry
	for _, code := range rs.Codes() {
		jr, _ := rs.Lookup(code)
		e := JurisdictionEntry{Code: code, Name: jr.Name, Policy: jr.Policy, IncomeCategory: jr.IncomeCategory}
		if jr.Policy == domain.PolicyFlatSpecialIncome {
			rate := jr.Rate
			e.Rate = &rate
		}
		for _, status := range domain.FilingStatuses {
			if len(jr.Brackets[status]) > 0 {
				e.FilingStatuses = append(e.FilingStatuses, status)
			}
		}
		entries = append(entries, e)
	}
	return entries
}

var formatters = map[string]Formatter{
	"text": TextFormatter{},
	"json": JSONFormatter{},
	"csv":  CSVFormatter{},
}

var formatAliases = map[string]string{
	"console": "text",
	"table":   "text",
}

// GetFormatterByName returns the formatter registered under name or one of
// its aliases, or nil
func GetFormatterByName(name string) Formatter {
	name = strings.ToLower(strings.TrimSpace(name))
	if target, ok := formatAliases[name]; ok {
		name = target
	}
	return formatters[name]
}

// AvailableFormatterNames returns the registered formatter names, sorted
func AvailableFormatterNames() []string {
	names := make([]string, 0, len(formatters))
	for name := range formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AvailableFormatAliases returns the accepted aliases, sorted
func AvailableFormatAliases() []string {
	aliases := make([]string, 0, len(formatAliases))
	for alias := range formatAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Write renders v with f and writes it to w. v must be an *Assessment, a
// *Summary or a []JurisdictionEntry.
func Write(w io.Writer, f Formatter, v any) error {
	var (
		data []byte
		err  error
	)
	switch r := v.(type) {
	case *calculation.Assessment:
		data, err = f.FormatAssessment(r)
	case *calculation.Summary:
		data, err = f.FormatSummary(r)
	case []JurisdictionEntry:
		data, err = f.FormatJurisdictions(r)
	default:
		return fmt.Errorf("%s formatter cannot render %T", f.Name(), v)
	}
	if err != nil {
		return fmt.Errorf("%s formatter: %w", f.Name(), err)
	}
	_, err = w.Write(data)
	return err
}

// FormatCurrency formats a decimal as currency
func FormatCurrency(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

// FormatPercentage formats a decimal that is already a percentage
func FormatPercentage(amount decimal.Decimal) string {
	return amount.StringFixed(2) + "%"
}

// FormatRate formats a fractional rate such as 0.0525 as a percentage
func FormatRate(rate decimal.Decimal) string {
	return FormatPercentage(rate.Mul(decimal.NewFromInt(100)))
}

func formatOptionalPercentage(p *decimal.Decimal) string {
	if p == nil {
		return "n/a"
	}
	return FormatPercentage(*p)
}
