// Package ledger persists the mapping from the mutations a user asked for to
// the directories their calculations ran in and the labels used in every
// downstream table.
//
// The ledger is a header-less CSV file with four columns:
//
//	mutationName,directoryName,mutationLabel,positionLabel
//
// mutationName is the original list encoding (before any renumbering).
// Labels omit chain ids unless requested and never carry the engine's
// non-canonical residue wrapping. Multiple substitutions are joined with
// mutation.MultiSep in the name and both labels.
package ledger

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jlingford/ddg-rosetta/internal/mutation"
)

// Record is one ledger row.
type Record struct {
	MutationName  string `json:"mutation_name"`
	DirName       string `json:"dir_name"`
	MutationLabel string `json:"mutation_label"`
	PositionLabel string `json:"position_label"`
}

// Options controls label rendering.
type Options struct {
	// ChainInLabels prefixes labels with the chain id ("A:C151Y").
	// Every substitution must then have a chain id, so a run never mixes
	// both label forms.
	ChainInLabels bool
}

// LabelChainSep separates the chain id from the label when chain ids are
// kept in labels.
const LabelChainSep = ":"

// Records builds the ledger rows for units in the original numbering: one
// row per distinct directory name, in enumeration order. Units sharing a
// directory (replicates) contribute a single row.
func Records(units []mutation.Unit, opts Options) ([]Record, error) {
	seen := make(map[string]struct{})
	var out []Record
	for _, u := range units {
		name := mutation.DirName(u.Mutation)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		rec, err := recordFor(u.Mutation, name, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordFor(m mutation.Mutation, dir string, opts Options) (Record, error) {
	labels := make([]string, len(m.Substitutions))
	positions := make([]string, len(m.Substitutions))
	for i, s := range m.Substitutions {
		labels[i], positions[i] = s.Label(), s.PositionLabel()
		if opts.ChainInLabels {
			if !s.HasChain() {
				return Record{}, fmt.Errorf("mutation %s: substitution without chain id cannot be labelled with chains; labels would mix forms",
					m.Encode())
			}
			labels[i] = s.Chain + LabelChainSep + labels[i]
			positions[i] = s.Chain + LabelChainSep + positions[i]
		}
	}
	return Record{
		MutationName:  m.Encode(),
		DirName:       dir,
		MutationLabel: strings.Join(labels, mutation.MultiSep),
		PositionLabel: strings.Join(positions, mutation.MultiSep),
	}, nil
}

// Write writes the ledger for units (original numbering) to w.
func Write(w io.Writer, units []mutation.Unit, opts Options) error {
	records, err := Records(units, opts)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	for _, r := range records {
		if err := cw.Write([]string{r.MutationName, r.DirName, r.MutationLabel, r.PositionLabel}); err != nil {
			return fmt.Errorf("write ledger row %s: %w", r.DirName, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the ledger to path, creating parent directories.
func WriteFile(path string, units []mutation.Unit, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := Write(bw, units, opts); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	return f.Close()
}

// ReadFile reads the ledger at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	return Read(f, path)
}

// Read parses a ledger and returns one record per row, sorted by chain id,
// then numeric position, then wild-type residue of the first substitution.
// Rows comparing equal keep their file order.
func Read(r io.Reader, name string) ([]Record, error) {
	rows, err := decode(r, name)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(rows, func(a, b keyed) int {
		if c := strings.Compare(a.chain, b.chain); c != 0 {
			return c
		}
		if c := a.pos.compare(b.pos); c != 0 {
			return c
		}
		return strings.Compare(a.wt, b.wt)
	})

	out := make([]Record, len(rows))
	for i, k := range rows {
		out[i] = k.rec
	}
	return out, nil
}

// ReadFileInOrder reads the ledger at path keeping the file order, which is
// the order the mutations were enumerated in.
func ReadFileInOrder(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	rows, err := decode(f, path)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, k := range rows {
		out[i] = k.rec
	}
	return out, nil
}

// keyed is a record with its presentation sort keys.
type keyed struct {
	rec   Record
	chain string
	pos   position
	wt    string
}

func decode(r io.Reader, name string) ([]keyed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.ReuseRecord = true

	var rows []keyed
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &mutation.ParseError{File: name, Line: line, Reason: err.Error()}
		}
		line, _ := cr.FieldPos(0)

		rec := Record{
			MutationName:  norm.NFC.String(fields[0]),
			DirName:       fields[1],
			MutationLabel: fields[2],
			PositionLabel: fields[3],
		}
		first, _, _ := strings.Cut(rec.MutationName, mutation.MultiSep)
		parts := strings.Split(first, mutation.CompSep)
		if len(parts) != 4 {
			return nil, &mutation.ParseError{File: name, Line: line, Text: rec.MutationName,
				Reason: "mutation name is not chain.wildtype.position.mutant"}
		}
		rows = append(rows, keyed{rec: rec, chain: parts[0], pos: parsePosition(parts[2]), wt: parts[1]})
	}
	return rows, nil
}

// Relabel rebuilds the labels of records from their mutation names, so a
// ledger written with one label form can be rendered in the other.
func Relabel(records []Record, opts Options) ([]Record, error) {
	out := make([]Record, len(records))
	for i, r := range records {
		m, err := parseName(r)
		if err != nil {
			return nil, err
		}
		rec, err := recordFor(m, r.DirName, opts)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

// Mutations re-parses the mutation names of records, in record order. Each
// mutation must name the directory its record points at.
func Mutations(records []Record) ([]mutation.Mutation, error) {
	out := make([]mutation.Mutation, len(records))
	for i, r := range records {
		m, err := parseName(r)
		if err != nil {
			return nil, err
		}
		if dir := mutation.DirName(m); dir != r.DirName {
			return nil, fmt.Errorf("ledger row %s: mutation %s runs in directory %s", r.DirName, r.MutationName, dir)
		}
		out[i] = m
	}
	return out, nil
}

func parseName(r Record) (mutation.Mutation, error) {
	l, err := mutation.ParseList(strings.NewReader(r.MutationName), r.DirName)
	if err != nil {
		return mutation.Mutation{}, err
	}
	if l.Len() != 1 {
		return mutation.Mutation{}, fmt.Errorf("ledger row %s: mutation name %q is not a single mutation", r.DirName, r.MutationName)
	}
	return l.Mutations()[0], nil
}

// Index maps records by directory name.
func Index(records []Record) map[string]Record {
	idx := make(map[string]Record, len(records))
	for _, r := range records {
		idx[r.DirName] = r
	}
	return idx
}

// position orders residue positions numerically, with insertion codes
// breaking ties ("52" < "52A" < "53"). Non-numeric positions sort after
// numeric ones, lexically.
type position struct {
	numeric bool
	n       int
	rest    string
}

func parsePosition(s string) position {
	i := 0
	if i < len(s) && s[i] == '-' {
		i++
	}
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return position{rest: s}
	}
	return position{numeric: true, n: n, rest: s[i:]}
}

func (p position) compare(o position) int {
	switch {
	case p.numeric && !o.numeric:
		return -1
	case !p.numeric && o.numeric:
		return 1
	case p.n != o.n:
		if p.n < o.n {
			return -1
		}
		return 1
	}
	return strings.Compare(p.rest, o.rest)
}
