package aggregate

import (
	"fmt"
	"slices"
	"strings"
)

// State is the kind of energy a row holds.
type State string

// States of the structures table, in output order.
const (
	WildType State = "wt"
	Mutant   State = "mut"
	DDG      State = "ddg"
)

// Row is the parsed scores of one structure in one state.
type Row struct {
	Structure int
	State     State
	// Step is the trajectory step the scores were taken at (flexddg only).
	Step   int
	Scores map[string]float64
}

// Energies are the values of the frame columns for one structure.
type Energies struct {
	Structure int
	Values    []float64
}

// Frames are the wild-type, mutant and ΔΔG energies of one mutation,
// aligned by structure in ascending structure order.
type Frames struct {
	Columns []string
	WT      []Energies
	Mut     []Energies
	DDG     []Energies
}

// Columns returns the energy columns of the output tables: the total score
// followed by the energy contributions, without repeating total_score.
func Columns(contributions []string) []string {
	cols := []string{TotalScore}
	for _, c := range contributions {
		if c != TotalScore && !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Reduce splits rows into wild-type, mutant and ΔΔG frames. Every
// structure needs exactly one wild-type and one mutant row, and every row
// must carry every column; anything else is a ReductionError.
func Reduce(mutation string, rows []Row, columns []string) (*Frames, error) {
	if len(rows) == 0 {
		return nil, &ReductionError{Mutation: mutation, Reason: "no structures to reduce"}
	}

	type pair struct{ wt, mut *Row }
	byStructure := make(map[int]*pair)
	for i := range rows {
		r := &rows[i]
		p := byStructure[r.Structure]
		if p == nil {
			p = &pair{}
			byStructure[r.Structure] = p
		}
		var slot **Row
		switch r.State {
		case WildType:
			slot = &p.wt
		case Mutant:
			slot = &p.mut
		default:
			return nil, &ReductionError{Mutation: mutation, Reason: fmt.Sprintf("structure %d: unexpected state %q", r.Structure, r.State)}
		}
		if *slot != nil {
			return nil, &ReductionError{Mutation: mutation, Reason: fmt.Sprintf("structure %d: duplicate %s scores", r.Structure, r.State)}
		}
		*slot = r
	}

	structures := make([]int, 0, len(byStructure))
	for s := range byStructure {
		structures = append(structures, s)
	}
	slices.Sort(structures)

	f := &Frames{Columns: columns}
	for _, s := range structures {
		p := byStructure[s]
		if p.wt == nil || p.mut == nil {
			missing := WildType
			if p.mut == nil {
				missing = Mutant
			}
			return nil, &ReductionError{Mutation: mutation, Reason: fmt.Sprintf("structure %d has no %s scores", s, missing)}
		}
		wt, err := values(p.wt, columns)
		if err != nil {
			return nil, &ReductionError{Mutation: mutation, Reason: err.Error()}
		}
		mut, err := values(p.mut, columns)
		if err != nil {
			return nil, &ReductionError{Mutation: mutation, Reason: err.Error()}
		}
		ddg := make([]float64, len(columns))
		for i := range columns {
			ddg[i] = mut[i] - wt[i]
		}
		f.WT = append(f.WT, Energies{Structure: s, Values: wt})
		f.Mut = append(f.Mut, Energies{Structure: s, Values: mut})
		f.DDG = append(f.DDG, Energies{Structure: s, Values: ddg})
	}
	return f, nil
}

func values(r *Row, columns []string) ([]float64, error) {
	out := make([]float64, len(columns))
	var missing []string
	for i, c := range columns {
		v, ok := r.Scores[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		out[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("structure %d (%s): missing score terms %s", r.Structure, r.State, strings.Join(missing, ", "))
	}
	return out, nil
}

// Mean returns the column-wise mean of energies.
func Mean(energies []Energies) []float64 {
	if len(energies) == 0 {
		return nil
	}
	out := make([]float64, len(energies[0].Values))
	for _, e := range energies {
		for i, v := range e.Values {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(energies))
	}
	return out
}
