package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/jlingford/ddg-rosetta/internal/aggregate"
	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/mutation"
	"github.com/jlingford/ddg-rosetta/internal/numbering"
)

// Error codes for CLI error responses.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeInvalidConfig = "E002" // Configuration failed schema or semantic checks
	ErrCodeMutationList  = "E003" // Mutation or position list rejected
	ErrCodeStructure     = "E004" // Input structure rejected
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeEngine        = "E006" // Engine failed or crashed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeAggregation   = "E008" // Aggregation aborted
)

// LoadError is a failure reported to the user with an error code.
type LoadError struct {
	Code    string
	Message string
	Details any
	Pos     token.Pos // configuration position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// classify maps err onto an error code.
func classify(err error) *LoadError {
	var (
		le     *LoadError
		schema *config.SchemaError
	)
	switch {
	case errors.As(err, &le):
		return le
	case errors.As(err, &schema):
		if len(schema.Issues) == 0 {
			return &LoadError{Code: ErrCodeInvalidConfig, Message: err.Error()}
		}
		first := schema.Issues[0]
		out := &LoadError{Code: ErrCodeInvalidConfig, Message: first.Path + ": " + first.Message, Pos: first.Pos}
		if !first.Pos.IsValid() {
			out.Message = schema.File + ": " + out.Message
		}
		if n := len(schema.Issues) - 1; n > 0 {
			out.Message += fmt.Sprintf(" (and %d more)", n)
		}
		issues := make([]string, len(schema.Issues))
		for i, is := range schema.Issues {
			issues[i] = is.String()
		}
		out.Details = issues
		return out
	case mutation.IsParseError(err), mutation.IsInvalidScanError(err), numbering.IsUnknownResidue(err):
		return &LoadError{Code: ErrCodeMutationList, Message: err.Error()}
	case aggregate.IsReductionError(err):
		return &LoadError{Code: ErrCodeAggregation, Message: err.Error()}
	case errors.Is(err, fs.ErrNotExist):
		return &LoadError{Code: ErrCodeNotFound, Message: err.Error()}
	default:
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
}

// ConfigFlags locate the configuration files of a command.
type ConfigFlags struct {
	// Dir resolves configuration arguments given as bare names.
	Dir       string
	Run       string
	Aggregate string
	Settings  string
}

func addConfigFlags(cmd *cobra.Command, f *ConfigFlags, aggregate, settings bool) {
	cmd.Flags().StringVar(&f.Dir, "config-dir", "", "directory holding configurations referred to by name")
	cmd.Flags().StringVarP(&f.Run, "config-run", "r", "", "protocol run configuration (path or name)")
	if aggregate {
		cmd.Flags().StringVarP(&f.Aggregate, "config-aggregate", "a", "", "aggregation configuration (path or name)")
	}
	if settings {
		cmd.Flags().StringVar(&f.Settings, "settings", "", "execution settings (path or name)")
	}
}

// loadRun loads the run configuration and logs its warnings.
func (f *ConfigFlags) loadRun(logger *slog.Logger) (*config.Run, error) {
	path := config.Locate(f.Run, f.Dir)
	run, err := config.LoadRun(path)
	if err != nil {
		return nil, configError(err)
	}
	for _, w := range run.Warnings {
		logger.Warn(w, "config", path)
	}
	logger.Debug("run configuration loaded", "config", path, "family", string(run.Family))
	return run, nil
}

func (f *ConfigFlags) loadAggregate() (*config.Aggregate, error) {
	agg, err := config.LoadAggregate(config.Locate(f.Aggregate, f.Dir))
	if err != nil {
		return nil, configError(err)
	}
	return agg, nil
}

// loadSettings returns empty settings when no settings file is given.
func (f *ConfigFlags) loadSettings() (*config.Settings, error) {
	if f.Settings == "" {
		return &config.Settings{}, nil
	}
	s, err := config.LoadSettings(config.Locate(f.Settings, f.Dir))
	if err != nil {
		return nil, configError(err)
	}
	return s, nil
}

// configError classifies semantic configuration failures; schema and
// missing-file errors keep their own codes.
func configError(err error) error {
	var schema *config.SchemaError
	if errors.As(err, &schema) || errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return &LoadError{Code: ErrCodeInvalidConfig, Message: err.Error()}
}
