package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rgehrsitz/taxcalc/internal/calculation"
	"github.com/rgehrsitz/taxcalc/internal/domain"
)

var (
	colorPrimary = lipgloss.Color("#5A56E0")
	colorMuted   = lipgloss.Color("#7D7D7D")
	colorWarning = lipgloss.Color("#E5A50A")
	colorSuccess = lipgloss.Color("#26A269")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	labelStyle   = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
	valueStyle   = lipgloss.NewStyle().Bold(true)
	totalStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
)

// TextFormatter renders human readable reports for a terminal
type TextFormatter struct{}

func (t TextFormatter) Name() string { return "text" }

func (t TextFormatter) FormatAssessment(a *calculation.Assessment) ([]byte, error) {
	var sb strings.Builder

	fmt.Fprintln(&sb, titleStyle.Render(fmt.Sprintf("%s · %s", a.Jurisdiction, a.FilingStatus.Label())))
	writeField(&sb, "Policy", string(a.Policy))
	writeField(&sb, "Taxable income", FormatCurrency(a.Income))
	writeField(&sb, "Tax due", FormatCurrency(a.Liability))
	writeField(&sb, "Effective rate", formatOptionalPercentage(a.EffectiveRate))
	writeField(&sb, "Marginal rate", FormatRate(a.MarginalRate))

	if len(a.Breakdown) > 0 {
		fmt.Fprintln(&sb)
		fmt.Fprintln(&sb, headerStyle.Render("Bracket breakdown"))
		fmt.Fprintf(&sb, "  %-9s %-28s %14s %14s\n", "Rate", "Range", "Taxed", "Tax")
		for _, share := range a.Breakdown {
			upper := "and above"
			if share.High != nil {
				upper = "to " + FormatCurrency(*share.High)
			}
			span := FormatCurrency(share.Low) + " " + upper
			fmt.Fprintf(&sb, "  %-9s %-28s %14s %14s\n", FormatRate(share.Rate), span, FormatCurrency(share.Taxed), FormatCurrency(share.Tax))
		}
	}

	writeDiagnostics(&sb, a.Diagnostics)
	return []byte(sb.String()), nil
}

func (t TextFormatter) FormatSummary(s *calculation.Summary) ([]byte, error) {
	var sb strings.Builder

	fmt.Fprintln(&sb, titleStyle.Render(fmt.Sprintf("Tax summary · %s", s.FilingStatus.Label())))
	writeField(&sb, "Taxable income", FormatCurrency(s.Income))
	fmt.Fprintln(&sb)

	fmt.Fprintf(&sb, "  %-6s %-20s %14s %10s\n", "Code", "Policy", "Tax due", "Effective")
	var diagnostics []calculation.Diagnostic
	for _, a := range s.Assessments {
		fmt.Fprintf(&sb, "  %-6s %-20s %14s %10s\n", a.Jurisdiction, a.Policy, FormatCurrency(a.Liability), formatOptionalPercentage(a.EffectiveRate))
		diagnostics = append(diagnostics, a.Diagnostics...)
	}
	fmt.Fprintln(&sb)
	writeField(&sb, "Total tax due", totalStyle.Render(FormatCurrency(s.TotalLiability)))
	writeField(&sb, "Effective rate", formatOptionalPercentage(s.EffectiveRate))

	writeDiagnostics(&sb, diagnostics)
	return []byte(sb.String()), nil
}

func (t TextFormatter) FormatJurisdictions(entries []JurisdictionEntry) ([]byte, error) {
	var sb strings.Builder

	fmt.Fprintln(&sb, titleStyle.Render(fmt.Sprintf("%d jurisdictions", len(entries))))
	for _, e := range entries {
		detail := ""
		switch e.Policy {
		case domain.PolicyProgressive:
			statuses := make([]string, 0, len(e.FilingStatuses))
			for _, fs := range e.FilingStatuses {
				statuses = append(statuses, string(fs))
			}
			detail = "brackets: " + strings.Join(statuses, ", ")
		case domain.PolicyFlatSpecialIncome:
			if e.Rate != nil {
				detail = FormatRate(*e.Rate)
			}
			if e.IncomeCategory != "" {
				detail += " on " + e.IncomeCategory
			}
		case domain.PolicyNoTax:
			detail = "no income tax"
		}
		fmt.Fprintf(&sb, "  %-6s %-20s %-20s %s\n", e.Code, e.Name, e.Policy, detail)
	}
	return []byte(sb.String()), nil
}

func writeField(sb *strings.Builder, label, value string) {
	fmt.Fprintln(sb, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value)))
}

func writeDiagnostics(sb *strings.Builder, diagnostics []calculation.Diagnostic) {
	if len(diagnostics) == 0 {
		return
	}
	fmt.Fprintln(sb)
	fmt.Fprintln(sb, warningStyle.Render(fmt.Sprintf("%d bracket data warnings", len(diagnostics))))
	for _, d := range diagnostics {
		fmt.Fprintf(sb, "  ! %s\n", d)
	}
}
