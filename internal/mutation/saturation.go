package mutation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ReadResidueTypes reads a residue-type list file: one residue code per
// non-blank line, order preserved.
func ReadResidueTypes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open residue-type list: %w", err)
	}
	defer f.Close()
	return ParseResidueTypes(f, path)
}

// ParseResidueTypes parses a residue-type list.
func ParseResidueTypes(r io.Reader, name string) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		code := strings.TrimSpace(norm.NFC.String(sc.Text()))
		if code == "" {
			continue
		}
		if strings.ContainsAny(code, " \t"+CompSep+MultiSep) {
			return nil, &ParseError{File: name, Line: lineNo, Text: code, Reason: "residue type must be a single code"}
		}
		out = append(out, UnwrapResidue(code))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(out) == 0 {
		return nil, &ParseError{File: name, Reason: "residue-type list is empty"}
	}
	return out, nil
}

// Saturate expands a position list into a saturation scan: for every
// position, one single-site mutation per residue type, in residue-type
// order. Any mutant already set on a position entry is replaced; extra tokens
// are copied unchanged onto every expanded entry.
//
// A position entry holding more than one substitution fails with an
// *InvalidScanError.
func Saturate(positions *List, residues []string) (*List, error) {
	out := &List{File: positions.File, warnings: slices.Clone(positions.warnings)}
	for _, e := range positions.entries {
		if len(e.Mutation.Substitutions) != 1 {
			return nil, &InvalidScanError{File: positions.File, Line: e.Line, Entry: e.Mutation.Encode()}
		}
	}
	for _, e := range positions.entries {
		site := e.Mutation.Substitutions[0]
		for _, res := range residues {
			m := e.Mutation.Clone()
			m.Substitutions[0] = Substitution{
				Chain:    site.Chain,
				WildType: site.WildType,
				Position: site.Position,
				Mutant:   res,
			}
			out.entries = append(out.entries, Entry{Mutation: m, Line: e.Line})
		}
	}
	return out, nil
}
