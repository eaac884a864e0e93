package aggregate

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/jlingford/ddg-rosetta/internal/config"
)

// Identity names the mutation a table row belongs to.
type Identity struct {
	Mutation        string `json:"mutation"`
	MutationLabel   string `json:"mutation_label"`
	PositionLabel   string `json:"position_label"`
	ScoringFunction string `json:"scoring_function"`
}

// Record is one table row.
type Record struct {
	Identity
	// NStructures is set in aggregate tables.
	NStructures int
	// Structure and State are set in structures tables.
	Structure int
	State     State
	Values    []float64
}

// Kind distinguishes the two output tables.
type Kind int

const (
	// AggregateTable has one ΔΔG row per mutation, averaged over structures.
	AggregateTable Kind = iota
	// StructuresTable has wild-type, mutant and ΔΔG rows per structure.
	StructuresTable
)

// Table is an in-memory output table.
type Table struct {
	Kind    Kind
	Columns []string
	Records []Record
}

// Tables builds the aggregate and structures tables of one mutation.
func Tables(id Identity, f *Frames) (agg, structs *Table) {
	agg = &Table{Kind: AggregateTable, Columns: f.Columns}
	agg.Records = append(agg.Records, Record{
		Identity:    id,
		NStructures: len(f.DDG),
		State:       DDG,
		Values:      Mean(f.DDG),
	})

	structs = &Table{Kind: StructuresTable, Columns: f.Columns}
	for i := range f.DDG {
		for _, e := range []struct {
			state State
			en    Energies
		}{{WildType, f.WT[i]}, {Mutant, f.Mut[i]}, {DDG, f.DDG[i]}} {
			structs.Records = append(structs.Records, Record{
				Identity:  id,
				Structure: e.en.Structure,
				State:     e.state,
				Values:    slices.Clone(e.en.Values),
			})
		}
	}
	return agg, structs
}

// Append adds the records of other, which must have the same layout.
func (t *Table) Append(other *Table) error {
	if other.Kind != t.Kind || !slices.Equal(other.Columns, t.Columns) {
		return fmt.Errorf("cannot concatenate tables with different columns")
	}
	t.Records = append(t.Records, other.Records...)
	return nil
}

// Rescaler converts energy columns into other units.
type Rescaler struct {
	Factor float64
	// Columns are the columns to rescale; others keep their raw values.
	Columns []string
}

// Apply rescales t in place.
func (r Rescaler) Apply(t *Table) {
	var idx []int
	for i, c := range t.Columns {
		if slices.Contains(r.Columns, c) {
			idx = append(idx, i)
		}
	}
	for ri := range t.Records {
		for _, i := range idx {
			t.Records[ri].Values[i] *= r.Factor
		}
	}
}

// Header returns the column names of t.
func (t *Table) Header() []string {
	h := []string{"mutation", "mutation_label", "position_label", "scoring_function"}
	if t.Kind == AggregateTable {
		h = append(h, "n_structures")
	} else {
		h = append(h, "structure", "state")
	}
	return append(h, t.Columns...)
}

// Write writes t as delimited text with a header row.
func (t *Table) Write(w io.Writer, opts config.TableOptions) error {
	cw := csv.NewWriter(w)
	cw.Comma = opts.Separator()
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	for _, r := range t.Records {
		row := []string{r.Mutation, r.MutationLabel, r.PositionLabel, r.ScoringFunction}
		if t.Kind == AggregateTable {
			row = append(row, strconv.Itoa(r.NStructures))
		} else {
			row = append(row, strconv.Itoa(r.Structure), string(r.State))
		}
		for _, v := range r.Values {
			row = append(row, formatFloat(v, opts.FloatFormat))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes t to path.
func (t *Table) WriteFile(path string, opts config.TableOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if err := t.Write(f, opts); err != nil {
		f.Close()
		return fmt.Errorf("write table %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64, format string) string {
	if format == "" {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprintf(format, v)
}
