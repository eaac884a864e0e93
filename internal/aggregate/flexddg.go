package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// Batch names of the flexddg score database.
const (
	wtBatch  = "wt_dG"
	mutBatch = "mut_dG"
)

// ReadFlexDDG reads the score database written by one flexddg replicate.
//
// Structures of a batch are saved along the backrub trajectory; the i-th
// structure (0-based, in struct_id order) belongs to trajectory step
// (i+1)*stride. Only the structures of the final step are returned, one
// wild-type and one mutant row, both labelled with the replicate number.
func ReadFlexDDG(ctx context.Context, path string, replicate, stride int) ([]Row, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("invalid trajectory stride %d", stride)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	rows, err := db.QueryContext(ctx, `
		SELECT b.name, s.struct_id, t.score_type_name, s.score_value
		FROM structure_scores s
		JOIN batches b ON b.batch_id = s.batch_id
		JOIN score_types t ON t.batch_id = s.batch_id AND t.score_type_id = s.score_type_id
		WHERE b.name IN (?, ?)
		ORDER BY b.name ASC, s.struct_id ASC, t.score_type_id ASC
	`, wtBatch, mutBatch)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	type structure struct {
		id     int64
		scores map[string]float64
	}
	batches := map[string][]*structure{}
	for rows.Next() {
		var (
			batch, term string
			id          int64
			value       float64
		)
		if err := rows.Scan(&batch, &id, &term, &value); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		structs := batches[batch]
		if n := len(structs); n == 0 || structs[n-1].id != id {
			structs = append(structs, &structure{id: id, scores: map[string]float64{}})
			batches[batch] = structs
		}
		structs[len(structs)-1].scores[term] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}

	out := make([]Row, 0, 2)
	for _, b := range []struct {
		name  string
		state State
	}{{wtBatch, WildType}, {mutBatch, Mutant}} {
		structs := batches[b.name]
		if len(structs) == 0 {
			return nil, fmt.Errorf("no structures in batch %s", b.name)
		}
		final := structs[len(structs)-1]
		out = append(out, Row{
			Structure: replicate,
			State:     b.state,
			Step:      len(structs) * stride,
			Scores:    final.scores,
		})
	}
	if out[0].Step != out[1].Step {
		return nil, fmt.Errorf("wild-type trajectory ends at step %d, mutant at step %d", out[0].Step, out[1].Step)
	}
	return out, nil
}
