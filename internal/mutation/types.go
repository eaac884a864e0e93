package mutation

import (
	"slices"
	"strings"
)

// Separators used by the text formats and directory names.
const (
	// CompSep joins the fields of one substitution in a mutation list.
	CompSep = "."

	// MultiSep joins the substitutions of a multiple mutation in a
	// mutation list, the provenance ledger and display labels. It is not
	// "_", which marks a missing chain id.
	MultiSep = "+"

	// ChainSep separates the chain id from the rest of a substitution in
	// directory names.
	ChainSep = "-"

	// DirMultiSep joins the substitutions of a multiple mutation in
	// directory names.
	DirMultiSep = "_"

	// NoChain marks a substitution on a structure without chain ids.
	NoChain = "_"
)

// Substitution is a single wild-type to mutant residue change.
//
// Position is opaque at this level: it holds whatever numbering the list
// was written in, or the pose index once converted.
type Substitution struct {
	Chain    string `json:"chain"`
	WildType string `json:"wildtype"`
	Position string `json:"position"`
	Mutant   string `json:"mutant"`
}

// HasChain reports whether the substitution names a chain.
func (s Substitution) HasChain() bool {
	return s.Chain != "" && s.Chain != NoChain
}

// Encode renders the substitution in mutation-list form (chain.wt.pos.mut).
// Residue codes are written unwrapped.
func (s Substitution) Encode() string {
	return strings.Join([]string{
		s.Chain,
		UnwrapResidue(s.WildType),
		s.Position,
		UnwrapResidue(s.Mutant),
	}, CompSep)
}

// Label is the display form without chain id (e.g. "C151Y").
func (s Substitution) Label() string {
	return UnwrapResidue(s.WildType) + s.Position + UnwrapResidue(s.Mutant)
}

// PositionLabel is the display form of the position only (e.g. "C151").
func (s Substitution) PositionLabel() string {
	return UnwrapResidue(s.WildType) + s.Position
}

// Engine returns a copy whose residue codes use the engine's wrapping
// convention for non-canonical residues.
func (s Substitution) Engine() Substitution {
	s.WildType = WrapResidue(s.WildType)
	s.Mutant = WrapResidue(s.Mutant)
	return s
}

// Mutation is one or more substitutions applied together as one
// calculation unit. Substitution order is part of its identity.
type Mutation struct {
	Substitutions []Substitution `json:"substitutions"`

	// ExtraTokens are the trailing whitespace-separated tokens of the list
	// line, in order.
	ExtraTokens []string `json:"extra_tokens,omitempty"`

	// Extra maps configured field names onto ExtraTokens.
	Extra map[string]string `json:"extra,omitempty"`
}

// Encode renders the mutation in mutation-list form, without extra tokens.
func (m Mutation) Encode() string {
	parts := make([]string, len(m.Substitutions))
	for i, s := range m.Substitutions {
		parts[i] = s.Encode()
	}
	return strings.Join(parts, MultiSep)
}

// Clone returns a deep copy of m.
func (m Mutation) Clone() Mutation {
	out := Mutation{
		Substitutions: slices.Clone(m.Substitutions),
		ExtraTokens:   slices.Clone(m.ExtraTokens),
	}
	if m.Extra != nil {
		out.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// sameEntry reports whether two mutations are the same requested entry:
// identical substitutions and identical extra tokens.
func sameEntry(a, b Mutation) bool {
	return slices.Equal(a.Substitutions, b.Substitutions) &&
		slices.Equal(a.ExtraTokens, b.ExtraTokens)
}

// Unit is one mutation bound to one structure replicate.
// Replicate 0 means the protocol produces a single structure and the unit
// has no replicate subdirectory.
type Unit struct {
	Mutation  Mutation `json:"mutation"`
	Replicate int      `json:"replicate,omitempty"`
}

// Paths returns the unit directory path and the mutation-level directory
// name.
func (u Unit) Paths() (path, name string) {
	return DirPath(u), DirName(u.Mutation)
}

// WrapResidue marks non-canonical residue codes (longer than one
// character) as X[CODE]. Codes already wrapped are returned unchanged.
func WrapResidue(code string) string {
	if len(code) <= 1 || isWrapped(code) {
		return code
	}
	return "X[" + code + "]"
}

// UnwrapResidue removes the X[...] marker added by WrapResidue.
func UnwrapResidue(code string) string {
	if isWrapped(code) {
		return code[2 : len(code)-1]
	}
	return code
}

func isWrapped(code string) bool {
	return len(code) > 3 && strings.HasPrefix(code, "X[") && strings.HasSuffix(code, "]")
}
