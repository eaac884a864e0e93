// Package config loads the YAML configuration files of a ΔΔG protocol run:
// the run configuration (protocol family, steps and engine options), the
// aggregation configuration (output tables, energy contributions, unit
// conversion) and the optional settings file (engine installation, MPI).
//
// Every file is validated against an embedded CUE schema and then decoded
// strictly, so misspelled keys are rejected instead of ignored. Engine
// options are normalized once at load time and their aliased spellings are
// resolved once, so later stages never see null values, raw booleans, or
// competing spellings of one option.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jlingford/ddg-rosetta/internal/numbering"
)

// Family is a protocol family.
type Family string

// Supported protocol families.
const (
	CartDDG Family = "cartddg"
	FlexDDG Family = "flexddg"
)

// MutationInput is the file an engine step reads its mutation from.
type MutationInput int

const (
	// NoMutation steps run on the wild-type structure only.
	NoMutation MutationInput = iota
	// Mutfile steps read a cartesian_ddg mutation file.
	Mutfile
	// Resfile steps read a packer resfile through script variables.
	Resfile
)

// StepSpec describes the fixed properties of a protocol step.
type StepSpec struct {
	Name       string
	Executable string
	Input      MutationInput
	// Replicates is true when the step runs once per structure replicate.
	Replicates bool
}

var families = map[Family][]StepSpec{
	CartDDG: {
		{Name: "relax", Executable: "relax"},
		{Name: "cartesian", Executable: "cartesian_ddg", Input: Mutfile},
	},
	FlexDDG: {
		{Name: "flexddg", Executable: "rosetta_scripts", Input: Resfile, Replicates: true},
	},
}

// ParseFamily parses a protocol family name.
func ParseFamily(s string) (Family, error) {
	f := Family(s)
	if _, ok := families[f]; !ok {
		return "", fmt.Errorf("unrecognized protocol family %q", s)
	}
	return f, nil
}

// Steps returns the steps of the family in execution order.
func (f Family) Steps() []StepSpec {
	return families[f]
}

// Step returns the named step of the family.
func (f Family) Step(name string) (StepSpec, bool) {
	for _, s := range families[f] {
		if s.Name == name {
			return s, true
		}
	}
	return StepSpec{}, false
}

// DDGStep returns the step whose outputs are aggregated.
func (f Family) DDGStep() StepSpec {
	steps := families[f]
	return steps[len(steps)-1]
}

// Run is the run configuration.
type Run struct {
	Version   int             `yaml:"version"`
	Family    Family          `yaml:"family"`
	Mutations Mutations       `yaml:"mutations"`
	Structure StructureChecks `yaml:"structure"`
	Steps     map[string]Step `yaml:"steps"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-"`

	// Warnings collects non-fatal findings from loading, such as
	// equivalent option spellings used together.
	Warnings []string `yaml:"-"`
}

// Mutations configures how mutation lists are interpreted.
type Mutations struct {
	// Numbering is the residue numbering of the input list: "pdb" (default)
	// or "pose".
	Numbering string `yaml:"numbering"`

	// NStruct is the number of structure replicates per mutation.
	// Zero means a single run with no replicate subdirectory.
	NStruct int `yaml:"nstruct"`

	// Extra names the optional tokens trailing each list line.
	Extra []string `yaml:"extra"`
}

// StructureChecks configures the input structure checks.
type StructureChecks struct {
	AllowMultiChain bool `yaml:"allow_multi_chain"`
	AllowNoChainIDs bool `yaml:"allow_no_chain_ids"`
}

// Step configures one engine step.
type Step struct {
	// WD is the step working directory, relative to the run directory.
	WD string `yaml:"wd"`

	// Executable overrides the engine executable of the step.
	Executable string `yaml:"executable"`

	Options Options `yaml:"options"`

	// Keys resolves aliased spellings among Options; VarKeys among the
	// script variables.
	Keys    Resolution `yaml:"-"`
	VarKeys Resolution `yaml:"-"`
}

// Scheme returns the parsed numbering scheme of the mutation list.
func (r *Run) Scheme() (numbering.Scheme, error) {
	if r.Mutations.Numbering == "" {
		return numbering.PDB, nil
	}
	return numbering.ParseScheme(r.Mutations.Numbering)
}

// DDGStep returns the configuration of the step producing ΔΔG outputs.
func (r *Run) DDGStep() (Step, StepSpec) {
	spec := r.Family.DDGStep()
	return r.Steps[spec.Name], spec
}

// Option returns the string value of a logical option of the step.
func (s Step) Option(name Logical) (string, bool) {
	key, ok := s.Keys.Key(name)
	if !ok {
		return "", false
	}
	opt, _ := s.Options.Get(key)
	return opt.Value.Text, opt.Value.Kind == Scalar
}

// ScriptVars returns the script variables option of the step.
func (s Step) ScriptVars() (Option, bool) {
	key, ok := s.Keys.Key(ScriptVars)
	if !ok {
		return Option{}, false
	}
	opt, _ := s.Options.Get(key)
	return opt, opt.Value.Kind == Vars
}

// Var returns the value of a logical script variable of the step.
func (s Step) Var(name Logical) (string, bool) {
	vars, ok := s.ScriptVars()
	if !ok {
		return "", false
	}
	key, ok := s.VarKeys.Key(name)
	if !ok {
		return "", false
	}
	return vars.Value.Var(key)
}

// LoadRun reads and validates a run configuration.
func LoadRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run configuration: %w", err)
	}
	return ParseRun(data, path)
}

// ParseRun validates and decodes a run configuration document.
func ParseRun(data []byte, name string) (*Run, error) {
	if err := validate(defRun, name, data); err != nil {
		return nil, err
	}
	var run Run
	if err := decodeStrict(data, &run); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	run.Path = name
	if err := run.prepare(); err != nil {
		return nil, fmt.Errorf("%s: invalid run configuration: %w", name, err)
	}
	return &run, nil
}

func (r *Run) prepare() error {
	if _, err := ParseFamily(string(r.Family)); err != nil {
		return err
	}
	if _, err := r.Scheme(); err != nil {
		return err
	}
	if r.Mutations.NStruct < 0 {
		return fmt.Errorf("mutations.nstruct must not be negative")
	}

	names := make([]string, 0, len(r.Steps))
	for name := range r.Steps {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, ok := r.Family.Step(name); !ok {
			return fmt.Errorf("unrecognized step name %q for protocol family %s", name, r.Family)
		}
		step := r.Steps[name]
		opts, err := Normalize(step.Options)
		if err != nil {
			return fmt.Errorf("step %s: %w", name, err)
		}
		step.Options = opts
		step.Keys = Resolve(optionKeys(opts))
		if vars, ok := step.ScriptVars(); ok {
			varNames := make([]string, len(vars.Value.Vars))
			for i, v := range vars.Value.Vars {
				varNames[i] = v.Name
			}
			step.VarKeys = Resolve(varNames)
		}
		for _, w := range append(step.Keys.Warnings, step.VarKeys.Warnings...) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("step %s: %s", name, w))
		}
		r.Steps[name] = step
	}

	ddg := r.Family.DDGStep()
	step, ok := r.Steps[ddg.Name]
	if !ok {
		return fmt.Errorf("protocol family %s requires step %q", r.Family, ddg.Name)
	}
	return r.checkDDGStep(step)
}

// checkDDGStep verifies that the options the aggregation depends on can be
// found.
func (r *Run) checkDDGStep(step Step) error {
	switch r.Family {
	case CartDDG:
		if _, ok := step.Option(DDGOut); !ok {
			return fmt.Errorf("step cartesian: missing option %s", Canonical(DDGOut))
		}
		if _, ok := step.Option(ScoreFunction); !ok {
			return fmt.Errorf("step cartesian: missing option %s", Canonical(ScoreFunction))
		}
	case FlexDDG:
		if _, ok := step.ScriptVars(); !ok {
			return fmt.Errorf("step flexddg: missing option %s", Canonical(ScriptVars))
		}
		for _, name := range []Logical{DDGDBFile, ScoreFunction, BackrubNTrials, BackrubTrajStride} {
			if _, ok := step.Var(name); !ok {
				return fmt.Errorf("step flexddg: missing script variable %s", name)
			}
		}
		if _, err := r.TrajectoryStride(); err != nil {
			return err
		}
	}
	return nil
}

// ScoreFunction returns the scoring function name used by the ΔΔG step.
func (r *Run) ScoreFunction() string {
	step, _ := r.DDGStep()
	if r.Family == FlexDDG {
		v, _ := step.Var(ScoreFunction)
		return v
	}
	v, _ := step.Option(ScoreFunction)
	return v
}

// OutputName returns the name of the raw ΔΔG output file of one run.
func (r *Run) OutputName() string {
	step, _ := r.DDGStep()
	if r.Family == FlexDDG {
		v, _ := step.Var(DDGDBFile)
		return v
	}
	v, _ := step.Option(DDGOut)
	return v
}

// TrajectoryStride returns the number of backrub trials between two saved
// trajectory steps of a flexddg run.
func (r *Run) TrajectoryStride() (int, error) {
	step, _ := r.DDGStep()
	ntrials, _ := step.Var(BackrubNTrials)
	saved, _ := step.Var(BackrubTrajStride)
	n, err := strconv.Atoi(ntrials)
	if err != nil {
		return 0, fmt.Errorf("step flexddg: %s: invalid integer %q", BackrubNTrials, ntrials)
	}
	s, err := strconv.Atoi(saved)
	if err != nil {
		return 0, fmt.Errorf("step flexddg: %s: invalid integer %q", BackrubTrajStride, saved)
	}
	if n <= 0 || s <= 0 {
		return 0, fmt.Errorf("step flexddg: backrub trials and trajectory stride must be positive")
	}
	if n/s == 0 {
		return 0, fmt.Errorf("step flexddg: trajectory stride %d exceeds the %d backrub trials", s, n)
	}
	return n / s, nil
}

func optionKeys(o Options) []string {
	keys := make([]string, len(o))
	for i, opt := range o {
		keys[i] = opt.Key
	}
	return keys
}

// Aggregate is the aggregation configuration.
type Aggregate struct {
	Version   int       `yaml:"version"`
	OutTables OutTables `yaml:"out_tables"`

	// EnergyContributions lists, per scoring function, the energy terms
	// reported in the output tables.
	EnergyContributions map[string][]string `yaml:"energy_contributions"`

	// ConversionFactors maps each scoring function to the factor that
	// converts its units into kcal/mol.
	ConversionFactors map[string]float64 `yaml:"conversion_factors"`

	// LabelChains keeps chain ids in mutation and position labels.
	LabelChains bool `yaml:"label_chains"`

	Path string `yaml:"-"`
}

// OutTables configures the output tables.
type OutTables struct {
	Options TableOptions `yaml:"options"`
	Rescale bool         `yaml:"rescale"`
	Names   TableNames   `yaml:"names"`
}

// TableOptions configures the delimited text rendering of tables.
type TableOptions struct {
	// Sep is the field separator, a single character. Default ",".
	Sep string `yaml:"sep"`

	// FloatFormat is a fmt verb for floating point values, e.g. "%.3f".
	// Empty means the shortest exact representation.
	FloatFormat string `yaml:"float_format"`
}

// TableNames names the output files.
type TableNames struct {
	Aggregate        string `yaml:"aggregate"`
	Structures       string `yaml:"structures"`
	AggregateSuffix  string `yaml:"aggregate_suffix"`
	StructuresSuffix string `yaml:"structures_suffix"`
}

// Separator returns the field separator as a rune.
func (o TableOptions) Separator() rune {
	if o.Sep == "" {
		return ','
	}
	return []rune(o.Sep)[0]
}

// LoadAggregate reads and validates an aggregation configuration.
func LoadAggregate(path string) (*Aggregate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read aggregation configuration: %w", err)
	}
	return ParseAggregate(data, path)
}

// ParseAggregate validates and decodes an aggregation configuration document.
func ParseAggregate(data []byte, name string) (*Aggregate, error) {
	if err := validate(defAggregate, name, data); err != nil {
		return nil, err
	}
	var agg Aggregate
	if err := decodeStrict(data, &agg); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	agg.Path = name
	if n := len([]rune(agg.OutTables.Options.Sep)); n > 1 {
		return nil, fmt.Errorf("%s: out_tables.options.sep must be a single character", name)
	}
	if f := agg.OutTables.Options.FloatFormat; f != "" && !strings.HasPrefix(f, "%") {
		return nil, fmt.Errorf("%s: out_tables.options.float_format must be a fmt verb such as %%.3f", name)
	}
	return &agg, nil
}

// Scoring returns the energy contributions and conversion factor of a
// scoring function.
func (a *Aggregate) Scoring(scfname string) ([]string, float64, error) {
	terms, ok := a.EnergyContributions[scfname]
	if !ok {
		return nil, 0, fmt.Errorf("no energy contributions configured for scoring function %q", scfname)
	}
	factor, ok := a.ConversionFactors[scfname]
	if !ok {
		return nil, 0, fmt.Errorf("no conversion factor configured for scoring function %q", scfname)
	}
	return terms, factor, nil
}

// Settings configures the execution environment.
type Settings struct {
	Version int      `yaml:"version"`
	Rosetta Rosetta  `yaml:"rosetta"`
	MPI     *MPIConf `yaml:"mpi"`
}

// Rosetta locates the engine executables.
type Rosetta struct {
	// Dir is the directory holding the executables.
	Dir string `yaml:"dir"`
	// Suffix is the build suffix appended to executable names,
	// e.g. ".linuxgccrelease" or ".mpi.linuxgccrelease".
	Suffix string `yaml:"suffix"`
}

// MPIConf configures MPI launches.
type MPIConf struct {
	Exec  string   `yaml:"exec"`
	NProc int      `yaml:"nproc"`
	Args  []string `yaml:"args"`
}

// LoadSettings reads and validates a settings file.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := validate(defSettings, path, data); err != nil {
		return nil, err
	}
	var s Settings
	if err := decodeStrict(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// Locate resolves a configuration argument. A bare name without extension
// or directory is looked up as <name>.yaml in dir; anything else is a path.
func Locate(arg, dir string) string {
	if filepath.Base(arg) == arg && filepath.Ext(arg) == "" && dir != "" {
		return filepath.Join(dir, arg+".yaml")
	}
	if abs, err := filepath.Abs(arg); err == nil {
		return abs
	}
	return arg
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}
