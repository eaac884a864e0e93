package cli

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/rosetta"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Configs    ConfigFlags
	RunDir     string
	RosettaDir string
	Suffix     string
	Jobs       int
}

// StepReport is the outcome of one protocol step.
type StepReport struct {
	Name    string   `json:"name"`
	Units   int      `json:"units"`
	Failed  []string `json:"failed,omitempty"`
	Crashed []string `json:"crashed,omitempty"`
	// Best is the structure selected for the next step, if any.
	Best *rosetta.Score `json:"best,omitempty"`
}

// RunReport is the outcome of the run command.
type RunReport struct {
	RunDir string       `json:"run_dir"`
	Steps  []StepReport `json:"steps"`
}

func (r RunReport) crashed() int {
	n := 0
	for _, s := range r.Steps {
		n += len(s.Crashed)
	}
	return n
}

func (r RunReport) String() string {
	var b strings.Builder
	mark := "✓"
	if r.crashed() > 0 {
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s Ran protocol in %s", mark, r.RunDir)
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "\n  %s: %d unit(s), %d crashed", s.Name, s.Units, len(s.Crashed))
		if s.Best != nil {
			fmt.Fprintf(&b, ", best structure %d (%g)", s.Best.Structure, s.Best.Total)
		}
		for _, c := range s.Crashed {
			fmt.Fprintf(&b, "\n    crashed: %s", c)
		}
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine over a prepared run directory",
		Long: `Run every configured step of a prepared protocol run.

Each unit directory is run with its flags file as working directory.
Structure-generating steps (relax) are run once; the lowest-scoring structure
is then copied to best.pdb for the following step. Units that leave a crash
log are reported and make the command fail once all units have run.

The Rosetta executables are looked up in --rosetta-dir (or rosetta.dir in the
settings file) with the build suffix appended. MPI launches are configured
in the settings file.

Example:
  rosettaddg run -r cartddg_ref2015 --rosetta-dir /opt/rosetta/bin \
      --suffix .static.linuxgccrelease --run-dir ./run --jobs 8`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProtocol(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.Configs, false, true)
	cmd.Flags().StringVarP(&opts.RunDir, "run-dir", "d", ".", "prepared run directory")
	cmd.Flags().StringVar(&opts.RosettaDir, "rosetta-dir", "", "directory holding the Rosetta executables")
	cmd.Flags().StringVar(&opts.Suffix, "suffix", "", "build suffix of the Rosetta executables")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "number of engine runs launched at once")
	_ = cmd.MarkFlagRequired("config-run")

	return cmd
}

func runProtocol(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	run, err := opts.Configs.loadRun(logger)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	settings, err := opts.Configs.loadSettings()
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	binDir := cmp.Or(opts.RosettaDir, settings.Rosetta.Dir)
	suffix := cmp.Or(opts.Suffix, settings.Rosetta.Suffix)
	if binDir == "" {
		return formatter.fail(ExitCommandError,
			&LoadError{Code: ErrCodeInvalidConfig, Message: "no Rosetta directory: pass --rosetta-dir or set rosetta.dir in the settings"})
	}
	if opts.Jobs < 1 {
		return formatter.fail(ExitCommandError,
			&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("invalid number of jobs %d", opts.Jobs)})
	}

	runner := &rosetta.Runner{Logger: logger}
	if m := settings.MPI; m != nil {
		runner.MPI = &rosetta.MPI{Exec: m.Exec, NProc: m.NProc, Args: m.Args}
	}

	runDir, err := filepath.Abs(opts.RunDir)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	report := RunReport{RunDir: runDir}
	for _, spec := range run.Family.Steps() {
		step, ok := run.Steps[spec.Name]
		if !ok {
			continue
		}
		sr, err := runStep(ctx, runner, logger, runDir, binDir, suffix, spec, step, opts.Jobs)
		if sr != nil {
			report.Steps = append(report.Steps, *sr)
		}
		if err != nil {
			_ = formatter.Error(classify(err).Code, err.Error(), report)
			return WrapExitError(GetExitCode(err), "step "+spec.Name, err)
		}
	}

	if err := formatter.Success(report); err != nil {
		return err
	}
	if n := report.crashed(); n > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d unit(s) crashed", n))
	}
	return nil
}

// runStep runs the units of one step. Errors carry the exit code they map
// to; a report is returned whenever the units were run.
func runStep(ctx context.Context, runner *rosetta.Runner, logger *slog.Logger,
	runDir, binDir, suffix string, spec config.StepSpec, step config.Step, jobs int,
) (*StepReport, error) {
	logger = logger.With("step", spec.Name)

	name := step.Executable
	if name == "" {
		name = spec.Executable
	}
	exe, err := rosetta.FindExecutable(binDir, name, suffix)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "find executable", err)
	}

	base := filepath.Join(runDir, step.WD)
	dirs, err := unitDirs(base)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "list units", err)
	}
	if len(dirs) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no prepared units in %s", base))
	}
	logger.Info("running step", "executable", exe, "units", len(dirs), "jobs", jobs)

	results := make([]rosetta.Result, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := runner.Run(gctx, rosetta.Invocation{
				Executable: exe,
				Dir:        dir,
				Flags:      rosetta.FlagsFile,
				Log:        rosetta.LogFile,
			})
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, WrapExitError(ExitFailure, "engine", err)
	}

	sr := &StepReport{Name: spec.Name, Units: len(dirs)}
	for i, res := range results {
		if res.ExitCode != 0 {
			sr.Failed = append(sr.Failed, relPath(runDir, dirs[i]))
		}
	}
	crashed, err := rosetta.Crashed(dirs)
	if err != nil {
		return sr, WrapExitError(ExitFailure, "inspect crash logs", err)
	}
	for _, d := range crashed {
		logger.Error("engine crashed", "dir", d)
		sr.Crashed = append(sr.Crashed, relPath(runDir, d))
	}

	if spec.Input != config.NoMutation {
		return sr, nil
	}
	if len(sr.Crashed) > 0 || len(sr.Failed) > 0 {
		return sr, &ExitError{Code: ExitFailure, Message: "structure generation failed", Err: &LoadError{
			Code: ErrCodeEngine, Message: fmt.Sprintf("%s failed in %s", spec.Name, base),
		}}
	}
	pdb, err := rosetta.InputStructure(base)
	if err != nil {
		return sr, WrapExitError(ExitFailure, "select structure", err)
	}
	best, err := rosetta.SelectBest(base, step, pdb)
	if err != nil {
		return sr, WrapExitError(ExitFailure, "select structure", err)
	}
	logger.Info("selected structure", "structure", best.Structure, "total_score", best.Total)
	sr.Best = &best
	return sr, nil
}

// unitDirs lists the directories below base holding a flags file, in
// lexical order.
func unitDirs(base string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == rosetta.FlagsFile {
			dirs = append(dirs, filepath.Dir(path))
		}
		return nil
	})
	return dirs, err
}

func relPath(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}
