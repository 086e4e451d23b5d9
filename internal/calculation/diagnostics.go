package calculation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
)

// DiagnosticKind names a bracket data-integrity fault
type DiagnosticKind string

const (
	DiagInvertedRange     DiagnosticKind = "inverted_range"
	DiagGap               DiagnosticKind = "gap"
	DiagOverlap           DiagnosticKind = "overlap"
	DiagOutOfOrder        DiagnosticKind = "out_of_order"
	DiagNonZeroStart      DiagnosticKind = "nonzero_start"
	DiagRateOutOfRange    DiagnosticKind = "rate_out_of_range"
	DiagMixedFilingStatus DiagnosticKind = "mixed_filing_status"
	DiagUnboundedNotLast  DiagnosticKind = "unbounded_not_last"
)

// Diagnostic is a non-fatal report about malformed bracket data.
// Index is the bracket's position in the input slice.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Index   int            `json:"index"`
	Bracket domain.Bracket `json:"-"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at bracket %d: %s", d.Kind, d.Index, d.Message)
}

// DiagnosticSink receives diagnostics as they are found
type DiagnosticSink interface {
	Report(d Diagnostic)
}

// DiagnosticRecorder is a DiagnosticSink that keeps every diagnostic.
// It is safe for concurrent use.
type DiagnosticRecorder struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// Report records d
func (r *DiagnosticRecorder) Report(d Diagnostic) {
	r.mu.Lock()
	r.diags = append(r.diags, d)
	r.mu.Unlock()
}

// Diagnostics returns a copy of the recorded diagnostics
func (r *DiagnosticRecorder) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Reset drops all recorded diagnostics
func (r *DiagnosticRecorder) Reset() {
	r.mu.Lock()
	r.diags = nil
	r.mu.Unlock()
}

type logSink struct {
	logger Logger
}

func (s logSink) Report(d Diagnostic) {
	s.logger.Warnf("bracket data integrity: %s", d)
}

type teeSink []DiagnosticSink

func (t teeSink) Report(d Diagnostic) {
	for _, s := range t {
		s.Report(d)
	}
}

type indexedBracket struct {
	index int
	domain.Bracket
}

// CheckBrackets inspects a bracket set for integrity faults without changing it.
// A well-formed set sorted by Low is contiguous, starts at zero, shares one
// filing status and ends with its only unbounded bracket.
func CheckBrackets(brackets []domain.Bracket) []Diagnostic {
	if len(brackets) == 0 {
		return nil
	}

	var diags []Diagnostic
	one := decimal.NewFromInt(1)
	status := brackets[0].FilingStatus
	usable := make([]indexedBracket, 0, len(brackets))

	for i, b := range brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(one) {
			diags = append(diags, Diagnostic{Kind: DiagRateOutOfRange, Index: i, Bracket: b,
				Message: fmt.Sprintf("rate %s outside [0, 1]", b.Rate)})
		}
		if b.FilingStatus != status {
			diags = append(diags, Diagnostic{Kind: DiagMixedFilingStatus, Index: i, Bracket: b,
				Message: fmt.Sprintf("filing status %s differs from %s", b.FilingStatus, status)})
		}
		if b.Unbounded && i != len(brackets)-1 {
			diags = append(diags, Diagnostic{Kind: DiagUnboundedNotLast, Index: i, Bracket: b,
				Message: "unbounded bracket is not the last bracket"})
		}
		if i > 0 && b.Low.LessThan(brackets[i-1].Low) {
			diags = append(diags, Diagnostic{Kind: DiagOutOfOrder, Index: i, Bracket: b,
				Message: fmt.Sprintf("low %s precedes previous low %s", b.Low, brackets[i-1].Low)})
		}
		if b.Inverted() {
			diags = append(diags, Diagnostic{Kind: DiagInvertedRange, Index: i, Bracket: b,
				Message: fmt.Sprintf("high %s below low %s", b.High, b.Low)})
			continue
		}
		usable = append(usable, indexedBracket{index: i, Bracket: b})
	}

	if len(usable) == 0 {
		return diags
	}

	sort.SliceStable(usable, func(i, j int) bool { return usable[i].Low.LessThan(usable[j].Low) })

	if !usable[0].Low.IsZero() {
		diags = append(diags, Diagnostic{Kind: DiagNonZeroStart, Index: usable[0].index, Bracket: usable[0].Bracket,
			Message: fmt.Sprintf("lowest bracket starts at %s", usable[0].Low)})
	}
	for i := 1; i < len(usable); i++ {
		prev, cur := usable[i-1], usable[i]
		switch {
		case prev.Unbounded || cur.Low.LessThan(prev.High):
			diags = append(diags, Diagnostic{Kind: DiagOverlap, Index: cur.index, Bracket: cur.Bracket,
				Message: fmt.Sprintf("range starting at %s overlaps bracket %d", cur.Low, prev.index)})
		case cur.Low.GreaterThan(prev.High):
			diags = append(diags, Diagnostic{Kind: DiagGap, Index: cur.index, Bracket: cur.Bracket,
				Message: fmt.Sprintf("gap between %s and %s", prev.High, cur.Low)})
		}
	}

	return diags
}
