package mutation

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Entry is one parsed line of a mutation list.
type Entry struct {
	Mutation Mutation

	// Line is the 1-based source line (0 for entries created by expansion).
	Line int
}

// List is a fully materialized, deduplicated mutation list in file order.
type List struct {
	// File names the source the list was parsed from.
	File string

	entries  []Entry
	warnings []Warning
}

// NewList builds a List from mutations, in order. Duplicates are kept; use
// ParseList for deduplicating input.
func NewList(file string, mutations ...Mutation) *List {
	l := &List{File: file}
	for _, m := range mutations {
		l.entries = append(l.entries, Entry{Mutation: m})
	}
	return l
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the list entries.
func (l *List) Entries() []Entry {
	return slices.Clone(l.entries)
}

// Mutations returns the mutations in list order.
func (l *List) Mutations() []Mutation {
	out := make([]Mutation, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Mutation
	}
	return out
}

// Warnings returns the recoverable problems found while parsing.
func (l *List) Warnings() []Warning {
	return slices.Clone(l.warnings)
}

// All iterates over (mutation, extra tokens) pairs in list order.
// The sequence can be ranged over any number of times.
func (l *List) All() iter.Seq2[Mutation, []string] {
	return func(yield func(Mutation, []string) bool) {
		for _, e := range l.entries {
			if !yield(e.Mutation, e.Mutation.ExtraTokens) {
				return
			}
		}
	}
}

// BindExtra returns a copy of the list where each mutation's extra tokens are
// assigned, positionally, to keys. Tokens beyond len(keys) stay unnamed;
// keys beyond the available tokens are left unset.
func (l *List) BindExtra(keys []string) *List {
	out := &List{File: l.File, warnings: slices.Clone(l.warnings)}
	for _, e := range l.entries {
		m := e.Mutation.Clone()
		if len(keys) > 0 {
			m.Extra = make(map[string]string, len(keys))
			for i, k := range keys {
				if i < len(m.ExtraTokens) {
					m.Extra[k] = m.ExtraTokens[i]
				}
			}
		}
		out.entries = append(out.entries, Entry{Mutation: m, Line: e.Line})
	}
	return out
}

// ReadList parses the mutation list file at path.
func ReadList(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mutation list: %w", err)
	}
	defer f.Close()
	return ParseList(f, path)
}

// ReadPositions parses the saturation-scan position list file at path.
func ReadPositions(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open position list: %w", err)
	}
	defer f.Close()
	return ParsePositions(f, path)
}

// ParseList parses a mutation list. name identifies the input in errors
// and warnings.
//
// Blank lines are skipped. An entry identical to an earlier one (same
// substitutions and same extra tokens) is dropped and recorded as a
// warning. Malformed lines fail with a *ParseError.
func ParseList(r io.Reader, name string) (*List, error) {
	return parse(r, name, substitutionFields)
}

// ParsePositions parses a saturation-scan position list, whose entries
// are chain.wildtype.position with no mutant residue. Deduplication and
// error reporting follow ParseList.
func ParsePositions(r io.Reader, name string) (*List, error) {
	return parse(r, name, positionFields)
}

const (
	substitutionFields = 4
	positionFields     = 3
)

func parse(r io.Reader, name string, arity int) (*List, error) {
	l := &List{File: name}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := norm.NFC.String(sc.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}

		m, err := parseLine(line, arity)
		if err != nil {
			return nil, &ParseError{File: name, Line: lineNo, Text: line, Reason: err.Error()}
		}

		if prev, dup := l.find(m); dup {
			l.warnings = append(l.warnings, Warning{
				File: name,
				Line: lineNo,
				Message: fmt.Sprintf("mutation %q is defined more than once (first at line %d); it will be performed only once",
					strings.TrimSpace(m.Encode()+" "+joinTokens(m.ExtraTokens)), prev.Line),
			})
			continue
		}
		l.entries = append(l.entries, Entry{Mutation: m, Line: lineNo})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return l, nil
}

func (l *List) find(m Mutation) (Entry, bool) {
	for _, e := range l.entries {
		if sameEntry(e.Mutation, m) {
			return e, true
		}
	}
	return Entry{}, false
}

// parseLine parses one non-blank mutation list line.
func parseLine(line string, arity int) (Mutation, error) {
	fields := strings.Fields(line)
	spec, extra := fields[0], fields[1:]

	var m Mutation
	for _, raw := range strings.Split(spec, MultiSep) {
		s, err := parseSubstitution(raw, arity)
		if err != nil {
			return Mutation{}, err
		}
		m.Substitutions = append(m.Substitutions, s)
	}
	if len(extra) > 0 {
		m.ExtraTokens = slices.Clone(extra)
	}
	return m, nil
}

func parseSubstitution(raw string, arity int) (Substitution, error) {
	parts := strings.Split(raw, CompSep)
	if len(parts) != arity {
		return Substitution{}, fmt.Errorf("%q has %d fields separated by %q, want %d",
			raw, len(parts), CompSep, arity)
	}
	for i, p := range parts {
		if p == "" {
			return Substitution{}, fmt.Errorf("substitution %q has an empty field %d", raw, i+1)
		}
	}
	s := Substitution{
		Chain:    parts[0],
		WildType: UnwrapResidue(parts[1]),
		Position: parts[2],
	}
	if arity == substitutionFields {
		s.Mutant = UnwrapResidue(parts[3])
	}
	return s, nil
}
