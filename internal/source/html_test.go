package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bracketPage = `<!DOCTYPE html>
<html><head><title>Rates</title></head>
<body>
<h1>Income tax rates</h1>
<table>
  <thead><tr><th>Rate</th><th>Filing status</th><th>Over</th><th>But not over</th></tr></thead>
  <tbody>
    <tr><td>10%</td><td>Single</td><td>$0</td><td>$10,000</td></tr>
    <tr><td>12%</td><td>Single</td><td>$10,000</td><td>$40,000</td></tr>
    <tr><td><b>22</b>%</td><td>Single</td><td>$40,000</td><td>and above</td></tr>
    <tr><td>5.25%</td><td>MFJ</td><td>$0</td><td></td></tr>
    <tr><td>n/a</td><td>Single</td><td>$0</td><td>$1</td></tr>
  </tbody>
</table>
<table><tr><td>9%</td><td>Single</td><td>$0</td><td></td></tr></table>
</body></html>`

func newBracketServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		switch r.URL.Path {
		case "/FED":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, bracketPage)
		case "/EMPTY":
			fmt.Fprint(w, "<html><body><p>nothing here</p></body></html>")
		case "/DOWN":
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTMLSource_GetBrackets(t *testing.T) {
	srv := newBracketServer(t, nil)
	src := NewHTMLSource(srv.URL+"/", WithRateLimit(100, 10))

	brackets, err := src.GetBrackets(context.Background(), "fed", domain.Single)
	require.NoError(t, err)
	require.Len(t, brackets, 3, "malformed row and second table are ignored")

	assert.True(t, brackets[0].Rate.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, brackets[1].Low.Equal(decimal.NewFromInt(10000)))
	assert.True(t, brackets[1].High.Equal(decimal.NewFromInt(40000)))
	assert.True(t, brackets[2].Unbounded)
	assert.True(t, brackets[2].Rate.Equal(decimal.RequireFromString("0.22")))

	joint, err := src.GetBrackets(context.Background(), "FED", domain.MarriedJoint)
	require.NoError(t, err)
	require.Len(t, joint, 1)
	assert.True(t, joint[0].Rate.Equal(decimal.RequireFromString("0.0525")))
}

func TestHTMLSource_Missing(t *testing.T) {
	srv := newBracketServer(t, nil)
	src := NewHTMLSource(srv.URL, WithRateLimit(100, 10))

	tests := []struct {
		name   string
		code   domain.Jurisdiction
		status domain.FilingStatus
	}{
		{"unknown page", "ZZ", domain.Single},
		{"no table", "EMPTY", domain.Single},
		{"status not listed", "FED", domain.HeadOfHousehold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.GetBrackets(context.Background(), tt.code, tt.status)
			assert.True(t, errors.Is(err, domain.ErrMissingBracketData), "got %v", err)
		})
	}
}

func TestHTMLSource_ServerError(t *testing.T) {
	srv := newBracketServer(t, nil)
	src := NewHTMLSource(srv.URL, WithRateLimit(100, 10))

	_, err := src.GetBrackets(context.Background(), "DOWN", domain.Single)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.False(t, errors.Is(err, domain.ErrMissingBracketData))
}

func TestHTMLSource_RateLimitHonorsContext(t *testing.T) {
	var hits atomic.Int32
	srv := newBracketServer(t, &hits)
	src := NewHTMLSource(srv.URL, WithRateLimit(0.01, 1))

	_, err := src.GetBrackets(context.Background(), "FED", domain.Single)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = src.GetBrackets(ctx, "FED", domain.Single)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, int32(1), hits.Load())
}

func TestParseRow(t *testing.T) {
	b, err := parseRow([]string{"7.5 %", "Head of household", "$ 1,000.50", "Over"})
	require.NoError(t, err)
	assert.Equal(t, domain.HeadOfHousehold, b.FilingStatus)
	assert.True(t, b.Rate.Equal(decimal.RequireFromString("0.075")))
	assert.True(t, b.Low.Equal(decimal.RequireFromString("1000.50")))
	assert.True(t, b.Unbounded)

	_, err = parseRow([]string{"5%", "Single", "$0"})
	assert.Error(t, err)

	_, err = parseRow([]string{"5%", "Widowed", "$0", ""})
	assert.True(t, errors.Is(err, domain.ErrInvalidFilingStatus))
}
