package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/rgehrsitz/taxcalc/internal/calculation"
	"github.com/rgehrsitz/taxcalc/internal/config"
	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/rgehrsitz/taxcalc/internal/output"
	"github.com/rgehrsitz/taxcalc/internal/registry"
	"github.com/rgehrsitz/taxcalc/internal/source"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// options holds the persistent flags shared by every command
type options struct {
	rulesFile string
	dbPath    string
	sourceURL string
	format    string
	verbose   bool

	logger *zap.SugaredLogger
}

func (o *options) log() calculation.Logger {
	if o.logger == nil {
		return calculation.NopLogger{}
	}
	return o.logger
}

func (o *options) formatter() (output.Formatter, error) {
	f := output.GetFormatterByName(o.format)
	if f == nil {
		return nil, fmt.Errorf("unknown format %q (available: %s)", o.format, strings.Join(output.AvailableFormatterNames(), ", "))
	}
	return f, nil
}

// backend is the registry and bracket source a command runs against
type backend struct {
	registry calculation.JurisdictionRegistry
	source   calculation.BracketSource
	rules    *domain.RuleSet // nil when backed by a database
	store    *source.Store
	closers  []func() error
}

func (b *backend) Close() {
	for _, c := range b.closers {
		_ = c()
	}
}

// entries lists the jurisdictions the backend knows
func (b *backend) entries(ctx context.Context) ([]output.JurisdictionEntry, error) {
	if b.rules != nil {
		return output.JurisdictionEntries(b.rules), nil
	}
	codes, err := b.store.Jurisdictions(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]output.JurisdictionEntry, 0, len(codes))
	for _, code := range codes {
		policy, err := b.store.GetPolicy(ctx, code)
		if err != nil {
			return nil, err
		}
		e := output.JurisdictionEntry{Code: code, Policy: policy.Kind, IncomeCategory: policy.IncomeCategory}
		if policy.Kind == domain.PolicyFlatSpecialIncome {
			rate := policy.Rate
			e.Rate = &rate
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// openBackend picks the rule data in order of precedence: --db, --rules,
// then the built-in example rules. --source-url replaces only the bracket source.
func (o *options) openBackend() (*backend, error) {
	b := &backend{}
	switch {
	case o.dbPath != "":
		store, err := source.OpenStore(o.dbPath)
		if err != nil {
			return nil, err
		}
		b.registry, b.source, b.store = store, store, store
		b.closers = append(b.closers, store.Close)
		o.log().Debugf("using rule database %s", o.dbPath)

	case o.rulesFile != "":
		reg, err := registry.NewFile(o.rulesFile, registry.WithLogger(o.log()))
		if err != nil {
			return nil, err
		}
		b.registry, b.source, b.rules = reg, reg, reg.RuleSet()
		b.closers = append(b.closers, reg.Close)

	default:
		rs := config.NewInputParser().CreateExampleRuleSet()
		b.registry, b.source, b.rules = registry.FromRuleSet(rs), source.NewRuleSet(rs), rs
		o.log().Infof("no --rules or --db given, using built-in example rules")
	}

	if o.sourceURL != "" {
		b.source = source.NewHTMLSource(o.sourceURL, source.WithHTMLLogger(o.log()))
	}
	return b, nil
}

func (o *options) newCalculator(b *backend) *calculation.Calculator {
	calc := calculation.NewCalculator(b.registry, b.source)
	calc.SetLogger(o.log())
	return calc
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "taxcalc",
		Short: "Income tax liability calculator",
		Long: `Computes income tax owed to a jurisdiction from its bracket tables.

Rules come from a YAML file (--rules), a SQLite database (--db) or the
built-in example rules. Progressive jurisdictions apply marginal brackets,
flat special-income jurisdictions apply one rate, and no-tax jurisdictions
are reported as such.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if opts.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			opts.logger = logger.Sugar()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.rulesFile, "rules", "r", "", "Path to a rules YAML file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to a SQLite rule database")
	root.PersistentFlags().StringVar(&opts.sourceURL, "source-url", "", "Base URL of published HTML bracket tables")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", "text", "Output format ("+strings.Join(output.AvailableFormatterNames(), ", ")+")")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		dueCmd(opts),
		rateCmd(opts),
		summaryCmd(opts),
		jurisdictionsCmd(opts),
		validateCmd(opts),
		exampleCmd(opts),
		importCmd(opts),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taxcalc %s (commit %s, built %s)\n", version, commit, date)
			if info := buildInfo(); info != "" {
				fmt.Fprintln(cmd.OutOrStdout(), info)
			}
		},
	}
}

func buildInfo() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		return bi.Main.Path + " " + bi.GoVersion
	}
	return ""
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseIncome accepts plain numbers as well as "$50,000"
func parseIncome(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", "_", "").Replace(strings.TrimSpace(s))
	v, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid income %q", s)
	}
	return v, nil
}
