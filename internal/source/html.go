package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rgehrsitz/taxcalc/internal/calculation"
	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// HTMLSource reads bracket tables published as HTML. For each jurisdiction it
// fetches {base}/{code} and reads the first <table> on the page. Each data row
// holds four cells: rate ("5.25%"), filing status, lower bound ("$0") and
// upper bound ("$10,000", or empty / "and above" for the top bracket).
// Requests are throttled by a token bucket shared across callers.
type HTMLSource struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	logger  calculation.Logger
}

// HTMLOption configures an HTMLSource
type HTMLOption func(*HTMLSource)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) HTMLOption {
	return func(s *HTMLSource) { s.client = c }
}

// WithRateLimit sets requests per second and burst
func WithRateLimit(rps float64, burst int) HTMLOption {
	return func(s *HTMLSource) { s.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithHTMLLogger sets the logger used for skipped rows and fetches
func WithHTMLLogger(l calculation.Logger) HTMLOption {
	return func(s *HTMLSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHTMLSource creates a source reading pages below base
func NewHTMLSource(base string, opts ...HTMLOption) *HTMLSource {
	s := &HTMLSource{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
		logger:  calculation.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBrackets implements calculation.BracketSource
func (s *HTMLSource) GetBrackets(ctx context.Context, j domain.Jurisdiction, status domain.FilingStatus) ([]domain.Bracket, error) {
	code := domain.NewJurisdiction(string(j))

	doc, err := s.fetch(ctx, code)
	if err != nil {
		return nil, err
	}

	table := findFirst(doc, "table")
	if table == nil {
		return nil, &domain.TaxError{Kind: domain.ErrMissingBracketData, Jurisdiction: code, FilingStatus: status, Detail: "page has no table"}
	}

	var brackets []domain.Bracket
	for i, cells := range tableRows(table) {
		b, err := parseRow(cells)
		if err != nil {
			s.logger.Warnf("%s row %d skipped: %v", code, i, err)
			continue
		}
		if b.FilingStatus == status {
			brackets = append(brackets, b)
		}
	}
	if len(brackets) == 0 {
		return nil, &domain.TaxError{Kind: domain.ErrMissingBracketData, Jurisdiction: code, FilingStatus: status}
	}
	return brackets, nil
}

func (s *HTMLSource) fetch(ctx context.Context, code domain.Jurisdiction) (*html.Node, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	target := s.base + "/" + url.PathEscape(string(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	s.logger.Debugf("fetching brackets from %s", target)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.TaxError{Kind: domain.ErrMissingBracketData, Jurisdiction: code, Detail: "no bracket page"}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: HTTP %d", target, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// tableRows returns the text of the <td> cells of every row. Header rows
// made only of <th> cells yield nothing.
func tableRows(table *html.Node) [][]string {
	var rows [][]string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "td" {
					cells = append(cells, strings.TrimSpace(textContent(c)))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		// nested tables belong to someone else
		if n != table && n.Type == html.ElementNode && n.Data == "table" {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(table)
	return rows
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func parseRow(cells []string) (domain.Bracket, error) {
	if len(cells) < 4 {
		return domain.Bracket{}, fmt.Errorf("expected 4 cells, got %d", len(cells))
	}

	r, err := parsePercent(cells[0])
	if err != nil {
		return domain.Bracket{}, err
	}
	status, err := domain.ParseFilingStatus(cells[1])
	if err != nil {
		return domain.Bracket{}, err
	}
	low, err := parseAmount(cells[2])
	if err != nil {
		return domain.Bracket{}, fmt.Errorf("lower bound: %w", err)
	}

	upper := strings.ToLower(cells[3])
	if upper == "" || upper == "-" || strings.Contains(upper, "above") || strings.Contains(upper, "over") {
		return domain.NewTopBracket(r, status, low), nil
	}
	high, err := parseAmount(cells[3])
	if err != nil {
		return domain.Bracket{}, fmt.Errorf("upper bound: %w", err)
	}
	return domain.NewBracket(r, status, low, high), nil
}

var hundred = decimal.NewFromInt(100)

func parsePercent(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q", s)
	}
	return v.Div(hundred), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
