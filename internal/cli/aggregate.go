package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jlingford/ddg-rosetta/internal/aggregate"
	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/ledger"
	"github.com/jlingford/ddg-rosetta/internal/mutation"
	"github.com/jlingford/ddg-rosetta/internal/store"
)

// AggregateOptions holds flags for the aggregate command.
type AggregateOptions struct {
	*RootOptions
	Configs ConfigFlags
	RunDir  string
	Ledger    string
	Mutations string
	Residues  string
	OutDir    string
	Jobs      int
	DB        string
}

// AggregateResult wraps the aggregation summary for text output.
type AggregateResult struct {
	*aggregate.Summary
}

func (r AggregateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Aggregated %d of %d mutation(s) (run %s)", len(r.Aggregated), r.Mutations, r.RunID)
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "\n  skipped %s: %s", s.Path, s.Reason)
	}
	if n := len(r.Outputs); n >= 2 {
		fmt.Fprintf(&b, "\n  tables: %s, %s", r.Outputs[n-2], r.Outputs[n-1])
	}
	return b.String()
}

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AggregateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate the raw ΔΔG outputs of a run into tables",
		Long: `Parse the raw outputs of every mutation of a run and write ΔΔG tables.

For each mutation an aggregate table (mean ΔΔG over structures) and a
structures table (wild-type, mutant and ΔΔG energies per structure) are
written, followed by the combined tables of the whole run.

The mutations to aggregate, their order and their labels come from the
provenance ledger of the run directory, or from the mutation list given
with --mutations. Each mutation's directory is derived from the mutation
itself; other entries of the run directory are ignored, and a mutation
without a directory is skipped.

With --db the combined tables are also recorded in a results database,
keyed by the run id, for later listing with the results command.

Outputs that are missing or cannot be parsed are skipped with a warning.
A mutation whose outputs cannot be reduced aborts the aggregation
(exit code 1).

Example:
  rosettaddg aggregate -r cartddg_ref2015 -a aggregate --config-dir ./configs \
      --run-dir ./run --out ./results`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.Configs, true, false)
	cmd.Flags().StringVarP(&opts.RunDir, "run-dir", "d", ".", "run directory")
	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "provenance ledger (default <run-dir>/"+LedgerFile+")")
	cmd.Flags().StringVarP(&opts.Mutations, "mutations", "l", "", "mutation list used at preparation, instead of the ledger")
	cmd.Flags().StringVarP(&opts.Residues, "residues", "t", "", "residue types of a saturation scan (with --mutations)")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", ".", "output directory")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "number of mutations processed at once (0: one per CPU)")
	cmd.Flags().StringVar(&opts.DB, "db", "", "results database to record the run in")
	cmd.MarkFlagsMutuallyExclusive("ledger", "mutations")
	_ = cmd.MarkFlagRequired("config-run")
	_ = cmd.MarkFlagRequired("config-aggregate")

	return cmd
}

func runAggregate(opts *AggregateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	run, err := opts.Configs.loadRun(logger)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	agg, err := opts.Configs.loadAggregate()
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}

	p, err := aggregate.New(run, agg, opts.RunDir)
	if err != nil {
		return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeInvalidConfig, Message: err.Error()})
	}
	p.Workers = opts.Jobs
	p.Logger = logger

	records, err := runRecords(opts, agg, logger)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	if p.Mutations, err = ledger.Mutations(records); err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	p.Labels = ledger.Index(records)

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	summary, err := p.Run(ctx, opts.OutDir)
	if err != nil {
		code := ExitFailure
		if errors.Is(err, fs.ErrNotExist) {
			code = ExitCommandError
		}
		return formatter.fail(code, err)
	}
	if opts.DB != "" {
		if err := recordRun(ctx, opts.DB, p, summary); err != nil {
			return formatter.fail(ExitFailure, &LoadError{Code: ErrCodeWriteFailed, Message: err.Error()})
		}
		logger.Info("run recorded", "db", opts.DB, "run_id", summary.RunID)
	}
	return formatter.SuccessWithRun(summary.RunID, AggregateResult{summary})
}

// recordRun stores the combined tables of an aggregation in the results
// database at path.
func recordRun(ctx context.Context, path string, p *aggregate.Pipeline, summary *aggregate.Summary) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	dir, err := filepath.Abs(p.Dir)
	if err != nil {
		return err
	}
	run := store.Run{
		ID:              summary.RunID,
		Family:          string(p.Family),
		ScoringFunction: p.ScoringFunction,
		Dir:             dir,
		Columns:         p.Columns,
	}
	return db.WriteRun(ctx, run, summary.Aggregate, summary.Structures, summary.Skipped)
}

// runRecords returns the ledger records of the run in enumeration order,
// with labels in the form the aggregation configuration asks for. They are
// read from the ledger, or rebuilt from the mutation list when one is given.
func runRecords(opts *AggregateOptions, agg *config.Aggregate, logger *slog.Logger) ([]ledger.Record, error) {
	lopts := ledger.Options{ChainInLabels: agg.LabelChains}
	if opts.Mutations != "" {
		list, residues, err := readList(opts.Mutations, opts.Residues, logger)
		if err != nil {
			return nil, err
		}
		plan, err := mutation.BuildPlan(mutation.PlanInput{List: list, ResidueTypes: residues})
		if err != nil {
			return nil, err
		}
		return ledger.Records(plan.OriginalUnits, lopts)
	}

	path := cmp.Or(opts.Ledger, filepath.Join(opts.RunDir, LedgerFile))
	records, err := ledger.ReadFileInOrder(path)
	if err != nil {
		return nil, err
	}
	if agg.LabelChains {
		if records, err = ledger.Relabel(records, lopts); err != nil {
			return nil, err
		}
	}
	logger.Debug("ledger loaded", "ledger", path, "records", len(records))
	return records, nil
}
