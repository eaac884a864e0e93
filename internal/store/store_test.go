package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jlingford/ddg-rosetta/internal/aggregate"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "mutations", "energies", "skipped"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("user_version = %d, want %d", version, len(migrations))
	}

	var index string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_energies_state'").Scan(&index)
	if err != nil {
		t.Errorf("mean row index missing: %v", err)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTemp(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	} {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

// sampleRun is a two-mutation cartddg run with two structures each.
func sampleRun() (Run, *aggregate.Table, *aggregate.Table, []aggregate.Skipped) {
	cols := []string{"total_score", "fa_atr"}
	run := Run{
		ID:              "0192b3c4-0000-7000-8000-000000000001",
		Family:          "cartddg",
		ScoringFunction: "ref2015_cart",
		Dir:             "/runs/cartesian",
		Columns:         cols,
	}
	id := func(m, ml, pl string) aggregate.Identity {
		return aggregate.Identity{Mutation: m, MutationLabel: ml, PositionLabel: pl, ScoringFunction: "ref2015_cart"}
	}
	c11y := id("A.C.11.Y", "C11Y", "C11")
	g12a := id("A.G.12.A", "G12A", "G12")

	agg := &aggregate.Table{Kind: aggregate.AggregateTable, Columns: cols, Records: []aggregate.Record{
		{Identity: c11y, NStructures: 2, State: aggregate.DDG, Values: []float64{1.5, -0.5}},
		{Identity: g12a, NStructures: 2, State: aggregate.DDG, Values: []float64{0.25, 0}},
	}}
	structs := &aggregate.Table{Kind: aggregate.StructuresTable, Columns: cols}
	for _, r := range agg.Records {
		for s := 1; s <= 2; s++ {
			for _, st := range []aggregate.State{aggregate.WildType, aggregate.Mutant, aggregate.DDG} {
				structs.Records = append(structs.Records, aggregate.Record{
					Identity:  r.Identity,
					Structure: s,
					State:     st,
					Values:    []float64{float64(s), 1},
				})
			}
		}
	}
	skipped := []aggregate.Skipped{{Mutation: "A.S.13.N", Path: "/runs/cartesian/A-S13N/mutation.ddg", Reason: "missing"}}
	return run, agg, structs, skipped
}

func TestWriteRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	run, agg, structs, skipped := sampleRun()

	if err := s.WriteRun(ctx, run, agg, structs, skipped); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	got, err := s.Run(ctx, run.ID)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	run.Seq = got.Seq
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("Run() mismatch (-want +got):\n%s", diff)
	}

	results, err := s.Results(ctx, run.ID)
	if err != nil {
		t.Fatalf("Results() failed: %v", err)
	}
	want := []Result{
		{Mutation: "A.C.11.Y", MutationLabel: "C11Y", PositionLabel: "C11", NStructures: 2,
			DDG: map[string]float64{"total_score": 1.5, "fa_atr": -0.5}},
		{Mutation: "A.G.12.A", MutationLabel: "G12A", PositionLabel: "G12", NStructures: 2,
			DDG: map[string]float64{"total_score": 0.25, "fa_atr": 0}},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("Results() mismatch (-want +got):\n%s", diff)
	}

	gotSkipped, err := s.Skipped(ctx, run.ID)
	if err != nil {
		t.Fatalf("Skipped() failed: %v", err)
	}
	if diff := cmp.Diff(skipped, gotSkipped); diff != "" {
		t.Errorf("Skipped() mismatch (-want +got):\n%s", diff)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM energies WHERE run_id = ? AND structure > 0", run.ID).Scan(&n); err != nil {
		t.Fatalf("count energies: %v", err)
	}
	if n != 2*2*3*2 {
		t.Errorf("structure energies = %d, want %d", n, 24)
	}
}

func TestWriteRun_SameIDIsNoop(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	run, agg, structs, skipped := sampleRun()

	if err := s.WriteRun(ctx, run, agg, structs, skipped); err != nil {
		t.Fatalf("first WriteRun() failed: %v", err)
	}
	agg.Records[0].Values = []float64{99, 99}
	if err := s.WriteRun(ctx, run, agg, structs, skipped); err != nil {
		t.Fatalf("second WriteRun() failed: %v", err)
	}

	results, err := s.Results(ctx, run.ID)
	if err != nil {
		t.Fatalf("Results() failed: %v", err)
	}
	if got := results[0].DDG["total_score"]; got != 1.5 {
		t.Errorf("total_score = %v after rewrite, want 1.5", got)
	}
	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("len(Runs()) = %d, want 1", len(runs))
	}
}

func TestRuns_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	run, agg, structs, _ := sampleRun()

	ids := []string{"run-b", "run-a", "run-c"}
	for _, id := range ids {
		run.ID = id
		if err := s.WriteRun(ctx, run, agg, structs, nil); err != nil {
			t.Fatalf("WriteRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	var got []string
	for _, r := range runs {
		got = append(got, r.ID)
	}
	if diff := cmp.Diff(ids, got); diff != "" {
		t.Errorf("Runs() order mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	if _, err := s.Run(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Run() error = %v, want ErrRunNotFound", err)
	}
	if _, err := s.Results(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Results() error = %v, want ErrRunNotFound", err)
	}
}

func TestWriteRun_RejectsWrongTables(t *testing.T) {
	s := openTemp(t)
	run, agg, structs, _ := sampleRun()

	if err := s.WriteRun(context.Background(), run, structs, agg, nil); err == nil {
		t.Fatal("WriteRun() with swapped tables should fail")
	}
	runs, err := s.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("len(Runs()) = %d, want 0", len(runs))
	}
}
