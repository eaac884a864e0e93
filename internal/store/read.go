package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jlingford/ddg-rosetta/internal/aggregate"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Result is the mean ΔΔG of one mutation in a run.
type Result struct {
	Mutation      string             `json:"mutation"`
	MutationLabel string             `json:"mutation_label"`
	PositionLabel string             `json:"position_label"`
	NStructures   int                `json:"n_structures"`
	DDG           map[string]float64 `json:"ddg"`
}

// Runs returns every stored run in insertion order.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, family, scoring_function, run_dir, columns
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Run returns the run stored under id.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, family, scoring_function, run_dir, columns
		FROM runs
		WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Results returns the mean ΔΔG of every mutation of a run, in table order.
func (s *Store) Results(ctx context.Context, runID string) ([]Result, error) {
	if _, err := s.Run(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT mutation, mutation_label, position_label, n_structures
		FROM mutations
		WHERE run_id = ?
		ORDER BY ord ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	results := []Result{}
	index := make(map[string]int)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Mutation, &r.MutationLabel, &r.PositionLabel, &r.NStructures); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		r.DDG = make(map[string]float64)
		index[r.Mutation] = len(results)
		results = append(results, r)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT mutation, term, value
		FROM energies
		WHERE run_id = ? AND structure = 0 AND state = ?
		ORDER BY mutation COLLATE BINARY ASC, term COLLATE BINARY ASC
	`, runID, string(aggregate.DDG))
	if err != nil {
		return nil, fmt.Errorf("query energies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			mutation, term string
			value          float64
		)
		if err := rows.Scan(&mutation, &term, &value); err != nil {
			return nil, fmt.Errorf("scan energy: %w", err)
		}
		if i, ok := index[mutation]; ok {
			results[i].DDG[term] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate energies: %w", err)
	}
	return results, nil
}

// Skipped returns the outputs left out of a run.
func (s *Store) Skipped(ctx context.Context, runID string) ([]aggregate.Skipped, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mutation, path, reason
		FROM skipped
		WHERE run_id = ?
		ORDER BY ord ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query skipped: %w", err)
	}
	defer rows.Close()

	skipped := []aggregate.Skipped{}
	for rows.Next() {
		var sk aggregate.Skipped
		if err := rows.Scan(&sk.Mutation, &sk.Path, &sk.Reason); err != nil {
			return nil, fmt.Errorf("scan skipped: %w", err)
		}
		skipped = append(skipped, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skipped: %w", err)
	}
	return skipped, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r    Run
		cols string
	)
	if err := sc.Scan(&r.Seq, &r.ID, &r.Family, &r.ScoringFunction, &r.Dir, &cols); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if r.Columns, err = unmarshalColumns(cols); err != nil {
		return Run{}, err
	}
	return r, nil
}
