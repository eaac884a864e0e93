package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/ledger"
	"github.com/jlingford/ddg-rosetta/internal/mutation"
)

// Pipeline aggregates the ΔΔG outputs of one protocol run.
type Pipeline struct {
	Family config.Family

	// Dir holds one subdirectory per mutation, as laid out at preparation.
	Dir string

	// OutputName is the raw output file inside each unit directory.
	OutputName string

	ScoringFunction string
	Columns         []string

	// Rescale is applied when non-nil.
	Rescale *Rescaler

	// Replicates is the number of structure replicates per mutation
	// (flexddg); zero means a single unit without replicate directory.
	Replicates int

	// Stride is the number of trials between saved trajectory steps
	// (flexddg).
	Stride int

	// Mutations are the mutations of the run in enumeration order. Their
	// directories are named with mutation.DirName; mutations sharing a
	// directory are aggregated once.
	Mutations []mutation.Mutation

	// Labels maps directory names to ledger records. Mutations missing
	// from it are labelled with their directory name.
	Labels map[string]ledger.Record

	Tables config.OutTables

	// Workers bounds the number of mutations processed at once.
	// Zero means GOMAXPROCS.
	Workers int

	Logger *slog.Logger
}

// New builds the pipeline of a run from its configuration. runDir is the
// directory the protocol ran in.
func New(run *config.Run, agg *config.Aggregate, runDir string) (*Pipeline, error) {
	step, spec := run.DDGStep()
	scfname := run.ScoreFunction()
	terms, factor, err := agg.Scoring(scfname)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		Family:          run.Family,
		Dir:             filepath.Join(runDir, step.WD),
		OutputName:      run.OutputName(),
		ScoringFunction: scfname,
		Columns:         Columns(terms),
		Tables:          agg.OutTables,
	}
	if agg.OutTables.Rescale {
		p.Rescale = &Rescaler{Factor: factor, Columns: terms}
	}
	if spec.Replicates {
		p.Replicates = run.Mutations.NStruct
	}
	if run.Family == config.FlexDDG {
		if p.Stride, err = run.TrajectoryStride(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Skipped is a mutation or replicate left out of the tables.
type Skipped struct {
	Mutation string `json:"mutation"`
	Path     string `json:"path"`
	Reason   string `json:"reason"`
}

// Summary reports the outcome of an aggregation run.
type Summary struct {
	RunID      string    `json:"run_id"`
	Mutations  int       `json:"mutations"`
	Aggregated []string  `json:"aggregated"`
	Skipped    []Skipped `json:"skipped,omitempty"`
	Outputs    []string  `json:"outputs"`

	// Aggregate and Structures are the combined tables.
	Aggregate  *Table `json:"-"`
	Structures *Table `json:"-"`
}

type mutationResult struct {
	name    string
	agg     *Table
	structs *Table
	skipped []Skipped
	outputs []string
	usable  bool
}

// Run aggregates the directory of every mutation in p.Mutations and writes
// the per-mutation and combined tables to outDir. Combined rows follow
// enumeration order; other entries of p.Dir are never read. A mutation
// without a directory is skipped.
//
// Mutations are processed concurrently. Unusable outputs are skipped and
// reported in the Summary; a reduction failure cancels the run. Tables
// already written for other mutations are left in place.
func (p *Pipeline) Run(ctx context.Context, outDir string) (*Summary, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", id.String(), "family", string(p.Family))

	switch p.Family {
	case config.CartDDG, config.FlexDDG:
	default:
		return nil, fmt.Errorf("unrecognized protocol family %q", p.Family)
	}

	if _, err := os.Stat(p.Dir); err != nil {
		return nil, fmt.Errorf("open run directory: %w", err)
	}
	names := p.dirNames()
	if len(names) == 0 {
		return nil, fmt.Errorf("no mutations to aggregate in %s", p.Dir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	logger.Info("aggregating", "dir", p.Dir, "mutations", len(names))

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]*mutationResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.mutation(gctx, logger, name, outDir)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("aggregation aborted", "error", err)
		return nil, err
	}

	summary := &Summary{RunID: id.String(), Mutations: len(names)}
	combinedAgg := &Table{Kind: AggregateTable, Columns: p.Columns}
	combinedStructs := &Table{Kind: StructuresTable, Columns: p.Columns}
	for _, res := range results {
		summary.Skipped = append(summary.Skipped, res.skipped...)
		if !res.usable {
			continue
		}
		summary.Aggregated = append(summary.Aggregated, res.name)
		summary.Outputs = append(summary.Outputs, res.outputs...)
		if err := combinedAgg.Append(res.agg); err != nil {
			return nil, err
		}
		if err := combinedStructs.Append(res.structs); err != nil {
			return nil, err
		}
	}

	tn := p.Tables.Names
	for _, out := range []struct {
		name  string
		table *Table
	}{{tn.Aggregate, combinedAgg}, {tn.Structures, combinedStructs}} {
		path := filepath.Join(outDir, out.name)
		if err := out.table.WriteFile(path, p.Tables.Options); err != nil {
			return nil, err
		}
		summary.Outputs = append(summary.Outputs, path)
	}
	summary.Aggregate, summary.Structures = combinedAgg, combinedStructs
	logger.Info("aggregation complete",
		"aggregated", len(summary.Aggregated),
		"skipped", len(summary.Skipped))
	return summary, nil
}

// mutation parses, reduces and writes the tables of one mutation.
func (p *Pipeline) mutation(ctx context.Context, logger *slog.Logger, name, outDir string) (*mutationResult, error) {
	res := &mutationResult{name: name}
	logger = logger.With("mutation", name)

	dir := filepath.Join(p.Dir, name)
	if _, err := os.Stat(dir); err != nil {
		me := &MissingOutputError{Mutation: name, Path: dir, Err: err}
		logger.Warn("skipping mutation without directory", "path", dir)
		res.skipped = []Skipped{skippedFrom(me)}
		return res, nil
	}

	rows, skipped, err := p.parse(ctx, name)
	res.skipped = skipped
	for _, s := range skipped {
		logger.Warn("skipping unusable output", "path", s.Path, "reason", s.Reason)
	}
	if err != nil {
		return nil, err
	}
	if rows == nil && p.Family == config.CartDDG {
		return res, nil
	}

	frames, err := Reduce(name, rows, p.Columns)
	if err != nil {
		return nil, err
	}
	if _, ok := p.Labels[name]; p.Labels != nil && !ok {
		logger.Warn("mutation not found in ledger; labelling with directory name")
	}
	agg, structs := Tables(p.identity(name), frames)
	if p.Rescale != nil {
		p.Rescale.Apply(agg)
		p.Rescale.Apply(structs)
	}

	names := p.Tables.Names
	for _, out := range []struct {
		suffix string
		table  *Table
	}{{names.AggregateSuffix, agg}, {names.StructuresSuffix, structs}} {
		path := filepath.Join(outDir, name+out.suffix)
		if err := out.table.WriteFile(path, p.Tables.Options); err != nil {
			return nil, err
		}
		res.outputs = append(res.outputs, path)
	}
	res.agg, res.structs, res.usable = agg, structs, true
	logger.Debug("mutation aggregated", "structures", len(frames.DDG))
	return res, nil
}

// parse reads the raw outputs of one mutation. Unusable outputs are
// returned as skipped entries; only context cancellation is an error.
func (p *Pipeline) parse(ctx context.Context, name string) ([]Row, []Skipped, error) {
	dir := filepath.Join(p.Dir, name)
	if p.Family == config.CartDDG {
		rows, err := readCartesian(name, filepath.Join(dir, p.OutputName))
		if err != nil {
			return nil, []Skipped{skippedFrom(err)}, nil
		}
		return rows, nil, nil
	}

	replicates := []int{0}
	if p.Replicates > 0 {
		replicates = make([]int, p.Replicates)
		for i := range replicates {
			replicates[i] = i + 1
		}
	}
	var (
		rows    []Row
		skipped []Skipped
	)
	for _, r := range replicates {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		path := filepath.Join(dir, p.OutputName)
		structure := 1
		if r > 0 {
			path = filepath.Join(dir, strconv.Itoa(r), p.OutputName)
			structure = r
		}
		rs, err := ReadFlexDDG(ctx, path, structure, p.Stride)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			skipped = append(skipped, skippedFrom(&MissingOutputError{Mutation: name, Path: path, Err: err}))
			continue
		}
		rows = append(rows, rs...)
	}
	return rows, skipped, nil
}

func skippedFrom(err error) Skipped {
	var me *MissingOutputError
	if errors.As(err, &me) {
		return Skipped{Mutation: me.Mutation, Path: me.Path, Reason: me.Err.Error()}
	}
	return Skipped{Reason: err.Error()}
}

func (p *Pipeline) identity(name string) Identity {
	id := Identity{Mutation: name, MutationLabel: name, ScoringFunction: p.ScoringFunction}
	if rec, ok := p.Labels[name]; ok {
		id.Mutation = rec.MutationName
		id.MutationLabel = rec.MutationLabel
		id.PositionLabel = rec.PositionLabel
	}
	return id
}

// dirNames returns the directory name of every mutation, in enumeration
// order, each name once.
func (p *Pipeline) dirNames() []string {
	seen := make(map[string]struct{}, len(p.Mutations))
	var names []string
	for _, m := range p.Mutations {
		name := mutation.DirName(m)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
