package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rgehrsitz/taxcalc/internal/calculation"
	"github.com/rgehrsitz/taxcalc/internal/config"
	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/rgehrsitz/taxcalc/internal/output"
	"github.com/rgehrsitz/taxcalc/internal/registry"
	"github.com/rgehrsitz/taxcalc/internal/source"
	"github.com/spf13/cobra"
)

func addStatusFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("status", "s", "S", "Filing status (S, MFJ, MFS, HH)")
}

func statusFlag(cmd *cobra.Command) (domain.FilingStatus, error) {
	raw, _ := cmd.Flags().GetString("status")
	return domain.ParseFilingStatus(raw)
}

func dueCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "due [jurisdiction] [income]",
		Short: "Compute the tax due to one jurisdiction",
		Example: `  taxcalc due FED 50000
  taxcalc due CA '$85,000' --status MFJ --rules rules.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := statusFlag(cmd)
			if err != nil {
				return err
			}
			income, err := parseIncome(args[1])
			if err != nil {
				return err
			}
			f, err := opts.formatter()
			if err != nil {
				return err
			}

			b, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			a, err := opts.newCalculator(b).Assess(cmd.Context(), domain.Jurisdiction(args[0]), status, income)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), f, a)
		},
	}
	addStatusFlag(cmd)
	return cmd
}

func rateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate [jurisdiction] [income]",
		Short: "Compute the effective tax rate for one jurisdiction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := statusFlag(cmd)
			if err != nil {
				return err
			}
			income, err := parseIncome(args[1])
			if err != nil {
				return err
			}

			b, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			liability, err := opts.newCalculator(b).ComputeTaxDue(cmd.Context(), domain.Jurisdiction(args[0]), status, income)
			if err != nil {
				return err
			}
			rate, err := calculation.ComputeEffectiveRate(liability, income)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", output.FormatPercentage(rate))
			return nil
		},
	}
	addStatusFlag(cmd)
	return cmd
}

func summaryCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "summary [income]",
		Short:   "Compute the combined tax due to several jurisdictions",
		Example: `  taxcalc summary 120000 --jurisdictions FED,NH --status HH`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := statusFlag(cmd)
			if err != nil {
				return err
			}
			income, err := parseIncome(args[0])
			if err != nil {
				return err
			}
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			list, _ := cmd.Flags().GetStringSlice("jurisdictions")
			var codes []domain.Jurisdiction
			for _, code := range list {
				if code = strings.TrimSpace(code); code != "" {
					codes = append(codes, domain.NewJurisdiction(code))
				}
			}

			b, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			s, err := opts.newCalculator(b).AssessAll(cmd.Context(), codes, status, income)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), f, s)
		},
	}
	addStatusFlag(cmd)
	cmd.Flags().StringSliceP("jurisdictions", "j", []string{"FED"}, "Comma-separated jurisdiction codes")
	return cmd
}

func jurisdictionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "jurisdictions",
		Short: "List known jurisdictions and their policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := opts.formatter()
			if err != nil {
				return err
			}
			b, err := opts.openBackend()
			if err != nil {
				return err
			}
			defer b.Close()

			entries, err := b.entries(cmd.Context())
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), f, entries)
		},
	}
}

func validateCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules-file]",
		Short: "Validate a rules file and report bracket data warnings",
		Example: `  taxcalc validate rules.yaml
  taxcalc validate rules.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				return watchRules(cmd, opts, args[0])
			}
			rs, err := config.NewInputParser().LoadFromFile(args[0])
			if err != nil {
				return err
			}
			reportRuleSet(cmd.OutOrStdout(), opts, args[0], rs)
			return nil
		},
	}
	cmd.Flags().Bool("watch", false, "Keep running and revalidate whenever the file changes")
	return cmd
}

// reportRuleSet prints the bracket diagnostics of every table in rs
func reportRuleSet(out io.Writer, opts *options, path string, rs *domain.RuleSet) {
	warnings := 0
	for _, code := range rs.Codes() {
		jr, _ := rs.Lookup(code)
		for _, status := range domain.FilingStatuses {
			brackets := jr.BracketsFor(status)
			if len(brackets) == 0 {
				continue
			}
			for _, d := range calculation.CheckBrackets(brackets) {
				fmt.Fprintf(out, "%s/%s: %s\n", code, status, d)
				warnings++
			}
		}
	}
	opts.log().Debugf("validated %s: %d jurisdictions", path, len(rs.Jurisdictions))
	fmt.Fprintf(out, "%s: %d jurisdictions, %d warnings\n", path, len(rs.Jurisdictions), warnings)
}

// watchRules revalidates path on every change until interrupted
func watchRules(cmd *cobra.Command, opts *options, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	reg, err := registry.NewFile(path,
		registry.WithLogger(opts.log()),
		registry.WithReloadHook(func(gen uint64, rs *domain.RuleSet, err error) {
			if err != nil {
				fmt.Fprintf(out, "reload failed, keeping generation %d: %v\n", gen, err)
				return
			}
			fmt.Fprintf(out, "generation %d\n", gen)
			reportRuleSet(out, opts, path, rs)
		}),
	)
	if err != nil {
		return err
	}
	defer reg.Close()

	if err := reg.Watch(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := reg.Close(); err != nil {
		return err
	}

	fmt.Fprintf(out, "stopped watching %s at generation %d\n", path, reg.Generation())
	if err := reg.LastError(); err != nil {
		return fmt.Errorf("last reload of %s failed: %w", path, err)
	}
	return nil
}

func exampleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "example [output-file]",
		Short: "Write the built-in example rules to a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs := config.NewInputParser().CreateExampleRuleSet()
			if err := config.SaveRuleSet(rs, args[0]); err != nil {
				return err
			}
			opts.log().Infof("wrote example rules to %s", args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Example rules written to %s\n", args[0])
			return nil
		},
	}
}

func importCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import [rules-file]",
		Short: "Import a rules file into the --db database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dbPath == "" {
				return fmt.Errorf("import requires --db")
			}
			rs, err := config.NewInputParser().LoadFromFile(args[0])
			if err != nil {
				return err
			}

			store, err := source.OpenStore(opts.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Import(cmd.Context(), rs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d jurisdictions into %s\n", len(rs.Jurisdictions), opts.dbPath)
			return nil
		},
	}
}
