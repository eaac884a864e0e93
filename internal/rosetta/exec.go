package rosetta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// CrashLog is the file the engine leaves in its working directory when it
// aborts.
const CrashLog = "ROSETTA_CRASH.log"

// FindExecutable returns the path of name+suffix inside dir. Exactly one
// matching entry must exist.
func FindExecutable(dir, name, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("list executables: %w", err)
	}
	want := name + suffix
	var found []string
	for _, e := range entries {
		if e.Name() == want {
			found = append(found, e.Name())
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no executable found for %s in %s", want, dir)
	case 1:
		return filepath.Join(dir, found[0]), nil
	default:
		return "", fmt.Errorf("multiple executables found for %s in %s", want, dir)
	}
}

// MPI configures launching the engine under an MPI launcher.
type MPI struct {
	Exec  string
	NProc int
	Args  []string
}

// Invocation is one engine run.
type Invocation struct {
	Executable string
	// Dir is the working directory; relative paths in the flags file are
	// resolved against it.
	Dir string
	// Flags is the flags file, relative to Dir or absolute.
	Flags string
	// Log receives the combined stdout and stderr, relative to Dir or
	// absolute.
	Log string
}

// Result describes a finished engine run.
type Result struct {
	Args     []string
	ExitCode int
	Duration time.Duration
}

// Runner launches engine executables.
type Runner struct {
	MPI    *MPI
	Logger *slog.Logger
}

// Command returns the argument vector of inv.
func (r *Runner) Command(inv Invocation) []string {
	var args []string
	if r.MPI != nil {
		args = append(args, r.MPI.Exec, "-n", strconv.Itoa(r.MPI.NProc))
		args = append(args, r.MPI.Args...)
	}
	return append(args, inv.Executable, "@", inv.Flags)
}

// Run executes inv and waits for it. A non-zero exit is reported in the
// Result, not as an error: the engine signals failures through its crash
// log, which Crashed inspects.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(inv.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create working directory: %w", err)
	}
	logPath := inv.Log
	if logPath == "" {
		logPath = LogFile
	}
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(inv.Dir, logPath)
	}
	out, err := os.Create(logPath)
	if err != nil {
		return Result{}, fmt.Errorf("create engine log: %w", err)
	}
	defer out.Close()

	args := r.Command(inv)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = inv.Dir
	cmd.Stdout = out
	cmd.Stderr = out

	logger.Debug("starting engine", "dir", inv.Dir, "args", args)
	start := time.Now()
	err = cmd.Run()
	res := Result{Args: args, Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		logger.Warn("engine exited with non-zero status", "dir", inv.Dir, "code", res.ExitCode)
	default:
		return res, fmt.Errorf("run %s: %w", filepath.Base(inv.Executable), err)
	}
	logger.Debug("engine finished", "dir", inv.Dir, "duration", res.Duration)
	return res, nil
}

// Crashed returns the directories, among dirs, that contain a crash log.
func Crashed(dirs []string) ([]string, error) {
	var crashed []string
	for _, d := range dirs {
		_, err := os.Stat(filepath.Join(d, CrashLog))
		switch {
		case err == nil:
			crashed = append(crashed, d)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("check %s: %w", d, err)
		}
	}
	return crashed, nil
}
