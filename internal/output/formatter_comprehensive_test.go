package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rgehrsitz/taxcalc/internal/calculation"
	"github.com/rgehrsitz/taxcalc/internal/config"
	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func buildTestAssessment() *calculation.Assessment {
	return &calculation.Assessment{
		Jurisdiction:  "FED",
		FilingStatus:  domain.Single,
		Policy:        domain.PolicyProgressive,
		Income:        d("50000"),
		Liability:     d("6800"),
		EffectiveRate: ptr(d("13.6")),
		MarginalRate:  d("0.22"),
		Breakdown: []calculation.BracketShare{
			{Rate: d("0.1"), Low: d("0"), High: ptr(d("10000")), Taxed: d("10000"), Tax: d("1000")},
			{Rate: d("0.12"), Low: d("10000"), High: ptr(d("40000")), Taxed: d("30000"), Tax: d("3600")},
			{Rate: d("0.22"), Low: d("40000"), Taxed: d("10000"), Tax: d("2200")},
		},
	}
}

func buildTestSummary() *calculation.Summary {
	fed := buildTestAssessment()
	nh := &calculation.Assessment{
		Jurisdiction:  "NH",
		FilingStatus:  domain.Single,
		Policy:        domain.PolicyFlatSpecialIncome,
		Income:        d("50000"),
		Liability:     d("2500"),
		EffectiveRate: ptr(d("5")),
		MarginalRate:  d("0.05"),
		Diagnostics: []calculation.Diagnostic{
			{Kind: calculation.DiagGap, Index: 1, Message: "gap between 100 and 500"},
		},
	}
	return &calculation.Summary{
		FilingStatus:   domain.Single,
		Income:         d("50000"),
		Assessments:    []*calculation.Assessment{fed, nh},
		TotalLiability: d("9300"),
		EffectiveRate:  ptr(d("18.6")),
	}
}

func TestJSONFormatter_AssessmentGolden(t *testing.T) {
	out, err := JSONFormatter{}.FormatAssessment(buildTestAssessment())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "assessment_json", out)
}

func TestCSVFormatter_SummaryGolden(t *testing.T) {
	out, err := CSVFormatter{}.FormatSummary(buildTestSummary())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "summary_csv", out)
}

func TestJSONFormatter_SummaryDecodes(t *testing.T) {
	out, err := JSONFormatter{}.FormatSummary(buildTestSummary())
	require.NoError(t, err)

	var decoded struct {
		TotalLiability string `json:"total_liability"`
		Assessments    []struct {
			Jurisdiction string `json:"jurisdiction"`
			Diagnostics  []struct {
				Kind string `json:"kind"`
			} `json:"diagnostics"`
		} `json:"assessments"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "9300", decoded.TotalLiability)
	require.Len(t, decoded.Assessments, 2)
	assert.Empty(t, decoded.Assessments[0].Diagnostics)
	require.Len(t, decoded.Assessments[1].Diagnostics, 1)
	assert.Equal(t, "gap", decoded.Assessments[1].Diagnostics[0].Kind)
}

func TestJSONFormatter_EmptyJurisdictions(t *testing.T) {
	out, err := JSONFormatter{}.FormatJurisdictions(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(out))
}

func TestTextFormatter_Assessment(t *testing.T) {
	out, err := TextFormatter{}.FormatAssessment(buildTestAssessment())
	require.NoError(t, err)

	content := string(out)
	assert.Contains(t, content, "FED")
	assert.Contains(t, content, "Single")
	assert.Contains(t, content, "$6800.00")
	assert.Contains(t, content, "13.60%")
	assert.Contains(t, content, "22.00%")
	assert.Contains(t, content, "Bracket breakdown")
	assert.Contains(t, content, "$40000.00 and above")
	assert.NotContains(t, content, "warnings")
}

func TestTextFormatter_ZeroIncome(t *testing.T) {
	a := &calculation.Assessment{Jurisdiction: "FED", FilingStatus: domain.MarriedJoint, Policy: domain.PolicyProgressive}
	out, err := TextFormatter{}.FormatAssessment(a)
	require.NoError(t, err)
	assert.Contains(t, string(out), "n/a")
	assert.Contains(t, string(out), "Married filing jointly")
}

func TestTextFormatter_Summary(t *testing.T) {
	out, err := TextFormatter{}.FormatSummary(buildTestSummary())
	require.NoError(t, err)

	content := string(out)
	assert.Contains(t, content, "$9300.00")
	assert.Contains(t, content, "18.60%")
	assert.Contains(t, content, "NH")
	assert.Contains(t, content, "1 bracket data warnings")
	assert.Contains(t, content, "gap at bracket 1")
}

func TestTextFormatter_Jurisdictions(t *testing.T) {
	entries := JurisdictionEntries(config.NewInputParser().CreateExampleRuleSet())
	out, err := TextFormatter{}.FormatJurisdictions(entries)
	require.NoError(t, err)

	content := string(out)
	assert.Contains(t, content, "5.00% on interest and dividends")
	assert.Contains(t, content, "brackets: S, MFJ, MFS, HH")
	assert.Contains(t, content, "no income tax")
}

func TestJurisdictionEntries(t *testing.T) {
	entries := JurisdictionEntries(config.NewInputParser().CreateExampleRuleSet())
	require.NotEmpty(t, entries)

	byCode := make(map[domain.Jurisdiction]JurisdictionEntry)
	for _, e := range entries {
		byCode[e.Code] = e
	}
	assert.Equal(t, domain.FilingStatuses, byCode["FED"].FilingStatuses)
	assert.Nil(t, byCode["FED"].Rate)
	require.NotNil(t, byCode["WA"].Rate)
	assert.True(t, byCode["WA"].Rate.Equal(d("0.07")))
	assert.Empty(t, byCode["TX"].FilingStatuses)
}

func TestAvailableFormatterNames(t *testing.T) {
	assert.Equal(t, []string{"csv", "json", "text"}, AvailableFormatterNames())
	assert.Equal(t, []string{"console", "table"}, AvailableFormatAliases())
}

func TestGetFormatterByName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"text", "text"},
		{"JSON", "json"},
		{" csv ", "csv"},
		{"console", "text"},
		{"table", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := GetFormatterByName(tt.name)
			require.NotNil(t, f)
			assert.Equal(t, tt.expected, f.Name())
		})
	}

	assert.Nil(t, GetFormatterByName("non-existent"))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSONFormatter{}, buildTestAssessment()))
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	buf.Reset()
	require.NoError(t, Write(&buf, CSVFormatter{}, []JurisdictionEntry{{Code: "TX", Policy: domain.PolicyNoTax}}))
	assert.Contains(t, buf.String(), "TX,,no_tax")

	err := Write(&buf, TextFormatter{}, "not a result")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot render string")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "$1234.50", FormatCurrency(d("1234.5")))
	assert.Equal(t, "13.60%", FormatPercentage(d("13.6")))
	assert.Equal(t, "5.25%", FormatRate(d("0.0525")))
}
