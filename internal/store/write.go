package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jlingford/ddg-rosetta/internal/aggregate"
)

// Run describes one stored aggregation run.
type Run struct {
	Seq             int64    `json:"seq"`
	ID              string   `json:"id"`
	Family          string   `json:"family"`
	ScoringFunction string   `json:"scoring_function"`
	Dir             string   `json:"run_dir"`
	Columns         []string `json:"columns"`
}

// WriteRun stores a run with its combined tables and skipped outputs in a
// single transaction. A run already stored under the same id is left
// unchanged.
func (s *Store) WriteRun(ctx context.Context, run Run, agg, structs *aggregate.Table, skipped []aggregate.Skipped) error {
	if agg == nil || agg.Kind != aggregate.AggregateTable {
		return fmt.Errorf("write run %s: missing aggregate table", run.ID)
	}
	if structs == nil || structs.Kind != aggregate.StructuresTable {
		return fmt.Errorf("write run %s: missing structures table", run.ID)
	}
	cols, err := marshalColumns(run.Columns)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, family, scoring_function, run_dir, columns)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Family, run.ScoringFunction, run.Dir, cols)
	if err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	if err := writeMutations(ctx, tx, run.ID, agg); err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	if err := writeStructures(ctx, tx, run.ID, structs); err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	if err := writeSkipped(ctx, tx, run.ID, skipped); err != nil {
		return fmt.Errorf("write run %s: %w", run.ID, err)
	}
	return tx.Commit()
}

// writeMutations stores one mutation row and its mean energies per
// aggregate record.
func writeMutations(ctx context.Context, tx *sql.Tx, runID string, t *aggregate.Table) error {
	mutStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mutations (run_id, ord, mutation, mutation_label, position_label, n_structures)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer mutStmt.Close()
	enStmt, err := prepareEnergy(ctx, tx)
	if err != nil {
		return err
	}
	defer enStmt.Close()

	for i, r := range t.Records {
		if _, err := mutStmt.ExecContext(ctx, runID, i, r.Mutation, r.MutationLabel, r.PositionLabel, r.NStructures); err != nil {
			return fmt.Errorf("mutation %s: %w", r.Mutation, err)
		}
		for j, term := range t.Columns {
			if _, err := enStmt.ExecContext(ctx, runID, r.Mutation, 0, string(aggregate.DDG), term, r.Values[j]); err != nil {
				return fmt.Errorf("mutation %s: %s: %w", r.Mutation, term, err)
			}
		}
	}
	return nil
}

func writeStructures(ctx context.Context, tx *sql.Tx, runID string, t *aggregate.Table) error {
	stmt, err := prepareEnergy(ctx, tx)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range t.Records {
		for j, term := range t.Columns {
			if _, err := stmt.ExecContext(ctx, runID, r.Mutation, r.Structure, string(r.State), term, r.Values[j]); err != nil {
				return fmt.Errorf("mutation %s: structure %d: %w", r.Mutation, r.Structure, err)
			}
		}
	}
	return nil
}

func prepareEnergy(ctx context.Context, tx *sql.Tx) (*sql.Stmt, error) {
	return tx.PrepareContext(ctx, `
		INSERT INTO energies (run_id, mutation, structure, state, term, value)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
}

func writeSkipped(ctx context.Context, tx *sql.Tx, runID string, skipped []aggregate.Skipped) error {
	for i, sk := range skipped {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO skipped (run_id, ord, mutation, path, reason)
			VALUES (?, ?, ?, ?, ?)
		`, runID, i, sk.Mutation, sk.Path, sk.Reason)
		if err != nil {
			return fmt.Errorf("skipped %s: %w", sk.Path, err)
		}
	}
	return nil
}
