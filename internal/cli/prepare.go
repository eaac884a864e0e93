package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/ledger"
	"github.com/jlingford/ddg-rosetta/internal/mutation"
	"github.com/jlingford/ddg-rosetta/internal/numbering"
	"github.com/jlingford/ddg-rosetta/internal/rosetta"
	"github.com/jlingford/ddg-rosetta/internal/structure"
)

// LedgerFile is the provenance ledger written at the root of a run
// directory.
const LedgerFile = "mutinfo.txt"

// PrepareOptions holds flags for the prepare command.
type PrepareOptions struct {
	*RootOptions
	Configs     ConfigFlags
	PDB         string
	Mutations   string
	Residues    string
	ScriptsDir  string
	LabelChains bool
	OutDir      string
}

// PreparedStep reports the units laid out for one protocol step.
type PreparedStep struct {
	Name  string `json:"name"`
	Dir   string `json:"dir"`
	Units int    `json:"units"`
}

// PrepareResult is the outcome of the prepare command.
type PrepareResult struct {
	Structure string         `json:"structure"`
	Mutations int            `json:"mutations"`
	Ledger    string         `json:"ledger"`
	Steps     []PreparedStep `json:"steps"`
}

func (r PrepareResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Prepared %d mutation(s) on %s\n", r.Mutations, filepath.Base(r.Structure))
	fmt.Fprintf(&b, "  ledger: %s", r.Ledger)
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "\n  %s: %d unit(s) in %s", s.Name, s.Units, s.Dir)
	}
	return b.String()
}

// NewPrepareCommand creates the prepare command.
func NewPrepareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PrepareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Lay out the calculation directories of a protocol run",
		Long: `Build the work list of a protocol run and write the engine inputs.

The mutation list is checked against the input structure, converted to the
engine numbering when the run uses pose numbering, and expanded into one
calculation unit per mutation and structure replicate. Every step of the
protocol gets a working directory with one flags file (and mutation file or
resfile) per unit. The provenance ledger is written to the run directory.

With --residues, the list holds positions and a saturation scan is
performed over the listed residue types.

Example:
  rosettaddg prepare -r cartddg_ref2015 --config-dir ./configs \
      --pdb input.pdb --mutations mutations.txt --out ./run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.Configs, true, false)
	cmd.Flags().StringVar(&opts.PDB, "pdb", "", "input structure (required)")
	cmd.Flags().StringVarP(&opts.Mutations, "mutations", "l", "", "mutation list, or position list with --residues (required)")
	cmd.Flags().StringVarP(&opts.Residues, "residues", "t", "", "residue types for a saturation scan")
	cmd.Flags().StringVar(&opts.ScriptsDir, "scripts-dir", "", "directory of protocol scripts given by name")
	cmd.Flags().BoolVar(&opts.LabelChains, "label-chains", false, "keep chain ids in mutation labels")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "d", ".", "run directory")
	_ = cmd.MarkFlagRequired("config-run")
	_ = cmd.MarkFlagRequired("pdb")
	_ = cmd.MarkFlagRequired("mutations")

	return cmd
}

func runPrepare(opts *PrepareOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	run, err := opts.Configs.loadRun(logger)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	labelChains := opts.LabelChains
	if opts.Configs.Aggregate != "" {
		agg, err := opts.Configs.loadAggregate()
		if err != nil {
			return formatter.fail(ExitCommandError, err)
		}
		labelChains = labelChains || agg.LabelChains
	}

	pdb, err := filepath.Abs(opts.PDB)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	s, err := structure.ReadPDB(pdb)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	if err := structure.Check(s, structure.CheckOptions{
		AllowMultiChain: run.Structure.AllowMultiChain,
		AllowNoChainIDs: run.Structure.AllowNoChainIDs,
	}); err != nil {
		return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeStructure, Message: err.Error()})
	}

	plan, err := buildPlan(run, s, opts.Mutations, opts.Residues, logger)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}

	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	ledgerPath := filepath.Join(outDir, LedgerFile)
	if err := ledger.WriteFile(ledgerPath, plan.OriginalUnits, ledger.Options{ChainInLabels: labelChains}); err != nil {
		return formatter.fail(ExitCommandError, err)
	}

	result := PrepareResult{Structure: pdb, Mutations: plan.Original.Len(), Ledger: ledgerPath}
	jobs := plan.Jobs()
	input := pdb
	for _, spec := range run.Family.Steps() {
		step, ok := run.Steps[spec.Name]
		if !ok {
			logger.Debug("step not configured", "step", spec.Name)
			continue
		}
		var stepJobs []mutation.Job
		if spec.Input != config.NoMutation {
			stepJobs = jobs
		}
		units, err := rosetta.PrepareStep(outDir, spec, step, stepJobs, rosetta.Bindings{
			PDB:        input,
			ScriptsDir: opts.ScriptsDir,
		})
		if err != nil {
			return formatter.fail(ExitCommandError, &LoadError{Code: ErrCodeWriteFailed, Message: err.Error()})
		}
		dir := filepath.Join(outDir, step.WD)
		logger.Info("step prepared", "step", spec.Name, "dir", dir, "units", len(units))
		result.Steps = append(result.Steps, PreparedStep{Name: spec.Name, Dir: dir, Units: len(units)})

		// a structure-generating step feeds its best structure to the next
		if spec.Input == config.NoMutation {
			input = filepath.Join(dir, rosetta.BestStructureFile)
		}
	}

	return formatter.Success(result)
}

// buildPlan reads the mutation list (or position and residue-type lists)
// and expands it into the run's work list.
func buildPlan(run *config.Run, s *structure.Structure, listPath, residuesPath string, logger *slog.Logger) (*mutation.Plan, error) {
	list, residues, err := readList(listPath, residuesPath, logger)
	if err != nil {
		return nil, err
	}

	scheme, err := run.Scheme()
	if err != nil {
		return nil, err
	}
	renumber, err := numbering.Converter(scheme, s)
	if err != nil {
		return nil, err
	}
	in := mutation.PlanInput{
		List:         list,
		ResidueTypes: residues,
		Renumber:     renumber,
		ExtraKeys:    run.Mutations.Extra,
	}
	if _, spec := run.DDGStep(); spec.Replicates {
		in.NStruct = run.Mutations.NStruct
	}
	return mutation.BuildPlan(in)
}

// readList reads a mutation list, or a position list and the residue types
// of a saturation scan when residuesPath is set. Duplicate warnings are
// logged.
func readList(listPath, residuesPath string, logger *slog.Logger) (*mutation.List, []string, error) {
	var (
		list     *mutation.List
		residues []string
		err      error
	)
	if residuesPath != "" {
		if list, err = mutation.ReadPositions(listPath); err != nil {
			return nil, nil, err
		}
		if residues, err = mutation.ReadResidueTypes(residuesPath); err != nil {
			return nil, nil, err
		}
	} else if list, err = mutation.ReadList(listPath); err != nil {
		return nil, nil, err
	}
	for _, w := range list.Warnings() {
		logger.Warn(w.String())
	}
	return list, residues, nil
}
