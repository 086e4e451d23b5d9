package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rgehrsitz/taxcalc/internal/domain"
)

const testRules = `
jurisdictions:
  FED:
    policy: progressive
    brackets:
      S:
        - {rate: 0.10, min: 0, max: 10000}
        - {rate: 0.12, min: 10000, max: 40000}
        - {rate: 0.22, min: 40000}
  NH:
    policy: flat_special_income
    rate: 0.05
    income_category: interest and dividends
  TX:
    policy: no_tax
`

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeTestRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()

	if cmd.Use != "taxcalc" {
		t.Errorf("Expected root command use to be 'taxcalc', got %s", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("Expected root command to have short and long descriptions")
	}
	for _, flag := range []string{"rules", "db", "source-url", "format", "verbose"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("Expected persistent flag --%s", flag)
		}
	}
}

func TestCommandSubcommands(t *testing.T) {
	expected := []string{"due", "rate", "summary", "jurisdictions", "validate", "example", "import", "version"}

	registered := make(map[string]bool)
	for _, c := range newRootCmd().Commands() {
		registered[c.Name()] = true
	}
	for _, name := range expected {
		if !registered[name] {
			t.Errorf("Expected command '%s' to be registered with root command", name)
		}
	}
}

func TestRootCommand_InvalidCommand(t *testing.T) {
	if _, err := execute("invalid-command"); err == nil {
		t.Error("Expected error for invalid command")
	}
}

func TestDue(t *testing.T) {
	rules := writeTestRules(t, testRules)

	out, err := execute("due", "fed", "$50,000", "--rules", rules, "--format", "json")
	if err != nil {
		t.Fatalf("due failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"liability": "6800"`) {
		t.Errorf("Expected liability 6800 in output, got:\n%s", out)
	}
	if !strings.Contains(out, `"effective_rate": "13.6"`) {
		t.Errorf("Expected effective rate 13.6 in output, got:\n%s", out)
	}
}

func TestDue_Errors(t *testing.T) {
	rules := writeTestRules(t, testRules)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no income tax", []string{"due", "TX", "50000"}, domain.ErrInvalidJurisdiction},
		{"unknown jurisdiction", []string{"due", "ZZ", "50000"}, domain.ErrInvalidJurisdiction},
		{"negative income", []string{"due", "FED", "--", "-1"}, domain.ErrInvalidIncome},
		{"bad status", []string{"due", "FED", "1", "--status", "widowed"}, domain.ErrInvalidFilingStatus},
		{"missing table", []string{"due", "FED", "1", "--status", "MFJ"}, domain.ErrMissingBracketData},
		{"zero income rate", []string{"rate", "FED", "0"}, domain.ErrDivisionByZero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{tt.args[0], "--rules", rules}, tt.args[1:]...)
			_, err := execute(args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRate(t *testing.T) {
	rules := writeTestRules(t, testRules)

	out, err := execute("rate", "FED", "50000", "--rules", rules)
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	if strings.TrimSpace(out) != "13.60%" {
		t.Errorf("Expected 13.60%%, got %q", out)
	}
}

func TestSummary(t *testing.T) {
	rules := writeTestRules(t, testRules)

	out, err := execute("summary", "50000", "-j", "FED,nh", "--rules", rules, "--format", "csv")
	if err != nil {
		t.Fatalf("summary failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "TOTAL,S,,50000.00,9300.00,18.6000,,") {
		t.Errorf("Expected total row in output, got:\n%s", out)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := execute("jurisdictions", "--format", "yaml")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("Expected unknown format error, got %v", err)
	}
}

func TestExampleValidateImport(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "example.yaml")
	db := filepath.Join(dir, "rules.db")

	out, err := execute("example", rules)
	if err != nil {
		t.Fatalf("example failed: %v", err)
	}
	if !strings.Contains(out, "Example rules written") {
		t.Errorf("unexpected example output: %s", out)
	}

	out, err = execute("validate", rules)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "0 warnings") {
		t.Errorf("Expected example rules to validate cleanly, got:\n%s", out)
	}

	if _, err := execute("import", rules); err == nil {
		t.Error("Expected import without --db to fail")
	}
	out, err = execute("import", rules, "--db", db)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !strings.Contains(out, "Imported") {
		t.Errorf("unexpected import output: %s", out)
	}

	out, err = execute("jurisdictions", "--db", db, "--format", "csv")
	if err != nil {
		t.Fatalf("jurisdictions failed: %v", err)
	}
	for _, want := range []string{"FED,,progressive", "WA,,flat_special_income,0.07,capital gains", "TX,,no_tax"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output, got:\n%s", want, out)
		}
	}

	out, err = execute("due", "WA", "10000", "--db", db, "--format", "csv")
	if err != nil {
		t.Fatalf("due from database failed: %v", err)
	}
	if !strings.Contains(out, "WA,S,flat_special_income,10000.00,700.00") {
		t.Errorf("unexpected due output: %s", out)
	}
}

func TestValidate_ReportsWarnings(t *testing.T) {
	rules := writeTestRules(t, `
jurisdictions:
  CA:
    policy: progressive
    brackets:
      S:
        - {rate: 0.01, min: 0, max: 100}
        - {rate: 0.02, min: 500}
`)
	out, err := execute("validate", rules)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "CA/S: gap") || !strings.Contains(out, "1 warnings") {
		t.Errorf("Expected a gap warning, got:\n%s", out)
	}
}

// lockedBuffer lets a test read output while a command is still writing it
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestValidate_Watch(t *testing.T) {
	rules := writeTestRules(t, testRules)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out lockedBuffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"validate", rules, "--watch"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	waitFor := func(want string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(out.String(), want) {
			if time.Now().After(deadline) {
				t.Fatalf("Expected %q in output, got:\n%s", want, out.String())
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	waitFor("generation 1")
	if err := os.WriteFile(rules, []byte(`
jurisdictions:
  CA:
    policy: progressive
    brackets:
      S:
        - {rate: 0.01, min: 0, max: 100}
        - {rate: 0.02, min: 500}
`), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor("CA/S: gap")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("validate --watch failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("validate --watch did not stop after cancellation")
	}
	if !strings.Contains(out.String(), "stopped watching") {
		t.Errorf("Expected a stop message, got:\n%s", out.String())
	}
}

func TestDue_HTMLSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/FED" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<table>
<tr><th>Rate</th><th>Status</th><th>Over</th><th>Up to</th></tr>
<tr><td>10%</td><td>S</td><td>$0</td><td>$10,000</td></tr>
<tr><td>20%</td><td>S</td><td>$10,000</td><td>and above</td></tr>
</table>`)
	}))
	defer srv.Close()
	rules := writeTestRules(t, testRules)

	out, err := execute("due", "FED", "20000", "--rules", rules, "--source-url", srv.URL, "--format", "json")
	if err != nil {
		t.Fatalf("due failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"liability": "3000"`) {
		t.Errorf("Expected liability 3000 from published tables, got:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute("version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "taxcalc dev") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestParseIncome(t *testing.T) {
	for input, want := range map[string]string{"50000": "50000", "$85,000.50": "85000.5", " 1_000 ": "1000"} {
		got, err := parseIncome(input)
		if err != nil {
			t.Errorf("parseIncome(%q) failed: %v", input, err)
			continue
		}
		if got.String() != want {
			t.Errorf("parseIncome(%q) = %s, want %s", input, got, want)
		}
	}
	if _, err := parseIncome("lots"); err == nil {
		t.Error("Expected error for non-numeric income")
	}
}
