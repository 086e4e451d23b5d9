package output

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/rgehrsitz/taxcalc/internal/calculation"
)

// CSVFormatter writes one row per assessment, for spreadsheets
type CSVFormatter struct{}

func (c CSVFormatter) Name() string { return "csv" }

var assessmentHeader = []string{"Jurisdiction", "FilingStatus", "Policy", "Income", "Liability", "EffectiveRate", "MarginalRate", "Diagnostics"}

func assessmentRow(a *calculation.Assessment) []string {
	rate := ""
	if a.EffectiveRate != nil {
		rate = a.EffectiveRate.StringFixed(4)
	}
	return []string{
		string(a.Jurisdiction),
		string(a.FilingStatus),
		string(a.Policy),
		a.Income.StringFixed(2),
		a.Liability.StringFixed(2),
		rate,
		a.MarginalRate.String(),
		strconv.Itoa(len(a.Diagnostics)),
	}
}

func (c CSVFormatter) FormatAssessment(a *calculation.Assessment) ([]byte, error) {
	return writeCSV(assessmentHeader, [][]string{assessmentRow(a)})
}

func (c CSVFormatter) FormatSummary(s *calculation.Summary) ([]byte, error) {
	rows := make([][]string, 0, len(s.Assessments)+1)
	for _, a := range s.Assessments {
		rows = append(rows, assessmentRow(a))
	}
	rate := ""
	if s.EffectiveRate != nil {
		rate = s.EffectiveRate.StringFixed(4)
	}
	rows = append(rows, []string{"TOTAL", string(s.FilingStatus), "", s.Income.StringFixed(2), s.TotalLiability.StringFixed(2), rate, "", ""})
	return writeCSV(assessmentHeader, rows)
}

func (c CSVFormatter) FormatJurisdictions(entries []JurisdictionEntry) ([]byte, error) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rate := ""
		if e.Rate != nil {
			rate = e.Rate.String()
		}
		statuses := make([]string, 0, len(e.FilingStatuses))
		for _, fs := range e.FilingStatuses {
			statuses = append(statuses, string(fs))
		}
		rows = append(rows, []string{string(e.Code), e.Name, string(e.Policy), rate, e.IncomeCategory, strings.Join(statuses, " ")})
	}
	return writeCSV([]string{"Code", "Name", "Policy", "Rate", "IncomeCategory", "FilingStatuses"}, rows)
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
