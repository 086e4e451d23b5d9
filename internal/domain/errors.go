package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for tax calculation failures. Match them with errors.Is.
var (
	ErrInvalidIncome       = errors.New("invalid income")
	ErrInvalidJurisdiction = errors.New("invalid jurisdiction")
	ErrMissingBracketData  = errors.New("missing bracket data")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrInvalidFilingStatus = errors.New("invalid filing status")
	ErrInvalidRate         = errors.New("invalid rate")
)

// TaxError carries the request context of a failed calculation.
// Kind is one of the sentinel errors above.
type TaxError struct {
	Kind         error
	Jurisdiction Jurisdiction
	FilingStatus FilingStatus
	Detail       string
}

func (e *TaxError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	switch {
	case e.Jurisdiction != "" && e.FilingStatus != "":
		fmt.Fprintf(&sb, " (jurisdiction=%s, status=%s)", e.Jurisdiction, e.FilingStatus)
	case e.Jurisdiction != "":
		fmt.Fprintf(&sb, " (jurisdiction=%s)", e.Jurisdiction)
	}
	return sb.String()
}

func (e *TaxError) Unwrap() error { return e.Kind }
