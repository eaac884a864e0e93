package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jlingford/ddg-rosetta/internal/aggregate"
	"github.com/jlingford/ddg-rosetta/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	DB string
}

// RunListing lists the runs recorded in a results database.
type RunListing struct {
	Runs []store.Run `json:"runs"`
}

func (l RunListing) String() string {
	var b strings.Builder
	b.WriteString("RUN\tFAMILY\tSCOREFXN\tDIRECTORY")
	for _, r := range l.Runs {
		fmt.Fprintf(&b, "\n%s\t%s\t%s\t%s", r.ID, r.Family, r.ScoringFunction, r.Dir)
	}
	return b.String()
}

// RunResults is the mean ΔΔG table of one recorded run.
type RunResults struct {
	Run     store.Run           `json:"run"`
	Results []store.Result      `json:"results"`
	Skipped []aggregate.Skipped `json:"skipped,omitempty"`
}

func (r RunResults) String() string {
	var b strings.Builder
	b.WriteString("MUTATION\tLABEL\tN")
	for _, c := range r.Run.Columns {
		b.WriteString("\t" + c)
	}
	for _, res := range r.Results {
		fmt.Fprintf(&b, "\n%s\t%s\t%d", res.Mutation, res.MutationLabel, res.NStructures)
		for _, c := range r.Run.Columns {
			b.WriteString("\t" + strconv.FormatFloat(res.DDG[c], 'f', -1, 64))
		}
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "\nskipped %s: %s", s.Path, s.Reason)
	}
	return b.String()
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results [run-id]",
		Short: "List runs and ΔΔG results recorded in a results database",
		Long: `List the aggregation runs recorded with "aggregate --db", oldest first.
Given a run id, print the mean ΔΔG of every mutation of that run and the
outputs that were skipped.

Example:
  rosettaddg results --db ./results.db
  rosettaddg results --db ./results.db 0192b3c4-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "results database")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runResults(opts *ResultsOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	// Opening creates the database; a missing file is a usage error here.
	if _, err := os.Stat(opts.DB); err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	db, err := store.Open(opts.DB)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	defer db.Close()

	if len(args) == 0 {
		runs, err := db.Runs(ctx)
		if err != nil {
			return formatter.fail(ExitFailure, err)
		}
		formatter.VerboseLog("%d run(s) in %s", len(runs), opts.DB)
		return formatter.Success(RunListing{Runs: runs})
	}

	id := args[0]
	run, err := db.Run(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeNotFound, Message: err.Error()})
		}
		return formatter.fail(ExitFailure, err)
	}
	results, err := db.Results(ctx, id)
	if err != nil {
		return formatter.fail(ExitFailure, err)
	}
	skipped, err := db.Skipped(ctx, id)
	if err != nil {
		return formatter.fail(ExitFailure, err)
	}
	return formatter.SuccessWithRun(id, RunResults{Run: run, Results: results, Skipped: skipped})
}
