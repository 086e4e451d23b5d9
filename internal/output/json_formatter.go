package output

import (
	"encoding/json"

	"github.com/rgehrsitz/taxcalc/internal/calculation"
)

// JSONFormatter emits indented JSON. Decimal values are quoted strings so
// no precision is lost.
type JSONFormatter struct{}

func (j JSONFormatter) Name() string { return "json" }

func (j JSONFormatter) FormatAssessment(a *calculation.Assessment) ([]byte, error) {
	return marshal(a)
}

func (j JSONFormatter) FormatSummary(s *calculation.Summary) ([]byte, error) {
	return marshal(s)
}

func (j JSONFormatter) FormatJurisdictions(entries []JurisdictionEntry) ([]byte, error) {
	if entries == nil {
		entries = []JurisdictionEntry{}
	}
	return marshal(entries)
}

func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
