// Package numbering converts residue positions from structure-file
// numbering (chain id + author residue number and insertion code) into the
// engine's sequential pose numbering.
//
// Pose numbering is 1-based and runs across the whole structure in
// chain-then-residue document order; chain boundaries do not reset it.
package numbering

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jlingford/ddg-rosetta/internal/mutation"
)

// Scheme names the numbering a protocol expects positions in.
type Scheme string

const (
	// Pose is the contiguous 1-based engine numbering.
	Pose Scheme = "pose"

	// PDB keeps the structure-file numbering unchanged.
	PDB Scheme = "pdb"
)

// ParseScheme validates a numbering scheme name.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case Pose, PDB:
		return Scheme(s), nil
	default:
		return "", fmt.Errorf("residue numbering must be either %q or %q, got %q", Pose, PDB, s)
	}
}

// ResidueID identifies a residue within a chain in structure-file numbering.
type ResidueID struct {
	Number        int
	InsertionCode string
}

// String renders the residue as it appears in mutation lists (e.g. "100A").
func (r ResidueID) String() string {
	return strconv.Itoa(r.Number) + strings.TrimSpace(r.InsertionCode)
}

// Chain is an ordered run of residues sharing a chain id.
type Chain struct {
	// ID is the chain id; mutation.NoChain for structures without ids.
	ID       string
	Residues []ResidueID
}

// Structure is the parsed structure the conversion walks. Chains and their
// residues must be returned in document order.
type Structure interface {
	Chains() []Chain
}

// UnknownResidueError reports a substitution naming a chain/residue pair
// the structure does not contain.
type UnknownResidueError struct {
	Chain   string
	Residue string

	// Mutation is the encoded mutation holding the substitution, if known.
	Mutation string
}

func (e *UnknownResidueError) Error() string {
	if e.Mutation != "" {
		return fmt.Sprintf("mutation %s: residue %s not found in chain %s of the structure", e.Mutation, e.Residue, e.Chain)
	}
	return fmt.Sprintf("residue %s not found in chain %s of the structure", e.Residue, e.Chain)
}

// IsUnknownResidue reports whether err (or anything it wraps) is an
// UnknownResidueError.
func IsUnknownResidue(err error) bool {
	var ue *UnknownResidueError
	return errors.As(err, &ue)
}

type key struct {
	chain   string
	residue string
}

// Map is the structure-to-pose numbering table.
type Map struct {
	index map[key]int
	size  int
}

// NewMap builds the numbering table for s.
func NewMap(s Structure) *Map {
	m := &Map{index: make(map[key]int)}
	for _, c := range s.Chains() {
		chain := normalizeChain(c.ID)
		for _, r := range c.Residues {
			m.size++
			k := key{chain: chain, residue: r.String()}
			if _, seen := m.index[k]; !seen {
				m.index[k] = m.size
			}
		}
	}
	return m
}

// Len returns the number of residues in the structure.
func (m *Map) Len() int {
	return m.size
}

// Lookup returns the pose index of residue (e.g. "151" or "100A") in chain.
func (m *Map) Lookup(chain, residue string) (int, error) {
	idx, ok := m.index[key{chain: normalizeChain(chain), residue: strings.TrimSpace(residue)}]
	if !ok {
		return 0, &UnknownResidueError{Chain: chain, Residue: residue}
	}
	return idx, nil
}

// Convert returns a copy of l whose positions are replaced by pose indices.
// Chain, residue codes and extra data are left untouched.
func (m *Map) Convert(l *mutation.List) (*mutation.List, error) {
	converted := make([]mutation.Mutation, 0, l.Len())
	for mut := range l.All() {
		c := mut.Clone()
		for i, s := range c.Substitutions {
			idx, err := m.Lookup(s.Chain, s.Position)
			if err != nil {
				var ue *UnknownResidueError
				if errors.As(err, &ue) {
					ue.Mutation = mut.Encode()
				}
				return nil, err
			}
			c.Substitutions[i].Position = strconv.Itoa(idx)
		}
		converted = append(converted, c)
	}
	return mutation.NewList(l.File, converted...), nil
}

// Converter returns the renumbering step for scheme: the structure map for
// Pose, nil (positions pass through) for PDB.
func Converter(scheme Scheme, s Structure) (mutation.Renumberer, error) {
	switch scheme {
	case Pose:
		if s == nil {
			return nil, fmt.Errorf("pose numbering requires a structure")
		}
		return NewMap(s), nil
	case PDB:
		return nil, nil
	default:
		_, err := ParseScheme(string(scheme))
		return nil, err
	}
}

func normalizeChain(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return mutation.NoChain
	}
	return id
}
