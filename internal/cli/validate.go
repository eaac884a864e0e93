package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jlingford/ddg-rosetta/internal/aggregate"
	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/structure"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Configs   ConfigFlags
	PDB       string
	Mutations string
	Residues  string
}

// ValidationIssue is one problem found by the validate command.
type ValidationIssue struct {
	Source  string `json:"source"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Mutations int               `json:"mutations,omitempty"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configurations and inputs without writing anything",
		Long: `Validate a run configuration and, optionally, an aggregation configuration,
execution settings and the inputs of a run.

With --pdb and --mutations the work list is built as prepare would build
it, so unknown residues and malformed list lines are reported before any
directory is written. Every configuration is checked even when an earlier
one fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.Configs, true, true)
	cmd.Flags().StringVar(&opts.PDB, "pdb", "", "input structure")
	cmd.Flags().StringVarP(&opts.Mutations, "mutations", "l", "", "mutation list, or position list with --residues")
	cmd.Flags().StringVarP(&opts.Residues, "residues", "t", "", "residue types for a saturation scan")
	_ = cmd.MarkFlagRequired("config-run")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	var (
		issues []ValidationIssue
		result ValidationResult
	)
	report := func(source string, err error) {
		le := classify(err)
		issue := ValidationIssue{Source: source, Code: le.Code, Message: le.Error()}
		if le.Pos.IsValid() {
			issue.Line = le.Pos.Line()
		}
		issues = append(issues, issue)
	}

	run, err := opts.Configs.loadRun(logger)
	if err != nil {
		report(opts.Configs.Run, err)
	} else {
		formatter.VerboseLog("Run configuration %s: family %s", run.Path, run.Family)
	}

	var agg *config.Aggregate
	if opts.Configs.Aggregate != "" {
		if agg, err = opts.Configs.loadAggregate(); err != nil {
			report(opts.Configs.Aggregate, err)
		}
	}
	if run != nil && agg != nil {
		if _, err := aggregate.New(run, agg, "."); err != nil {
			report(opts.Configs.Aggregate, err)
		}
	}

	if opts.Configs.Settings != "" {
		if _, err := opts.Configs.loadSettings(); err != nil {
			report(opts.Configs.Settings, err)
		}
	}

	if run != nil && opts.PDB != "" && opts.Mutations != "" {
		n, err := validateInputs(run, opts, logger)
		if err != nil {
			report(opts.Mutations, err)
		}
		result.Mutations = n
	}

	if len(issues) > 0 {
		return outputValidationErrors(formatter, issues)
	}
	result.Valid = true
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, "✓ Configuration valid")
	if result.Mutations > 0 {
		fmt.Fprintf(formatter.Writer, "  %d mutation(s)\n", result.Mutations)
	}
	return nil
}

// validateInputs builds the work list of the run without writing it.
func validateInputs(run *config.Run, opts *ValidateOptions, logger *slog.Logger) (int, error) {
	s, err := structure.ReadPDB(opts.PDB)
	if err != nil {
		return 0, err
	}
	if err := structure.Check(s, structure.CheckOptions{
		AllowMultiChain: run.Structure.AllowMultiChain,
		AllowNoChainIDs: run.Structure.AllowNoChainIDs,
	}); err != nil {
		return 0, &LoadError{Code: ErrCodeStructure, Message: err.Error()}
	}
	plan, err := buildPlan(run, s, opts.Mutations, opts.Residues, logger)
	if err != nil {
		return 0, err
	}
	return plan.Original.Len(), nil
}

// outputValidationErrors outputs every validation issue.
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	writeIssues(formatter.Writer, issues)
	return NewExitError(ExitCommandError, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}

func writeIssues(w io.Writer, issues []ValidationIssue) {
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, is := range issues {
		fmt.Fprintln(w, is.Source)
		fmt.Fprintf(w, "  %s: %s\n\n", is.Code, is.Message)
	}
}
