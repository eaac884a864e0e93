package mutation

import (
	"path"
	"strconv"
	"strings"
)

// DirName returns the directory name for a mutation.
//
// Each substitution is rendered as chain-WTposMUT (or WTposMUT without a
// chain id) with non-canonical wrapping removed, and the substitutions are
// joined in their original order. No sorting takes place: the same
// substitutions in a different order name a different directory.
func DirName(m Mutation) string {
	parts := make([]string, len(m.Substitutions))
	for i, s := range m.Substitutions {
		body := UnwrapResidue(s.WildType) + s.Position + UnwrapResidue(s.Mutant)
		if s.HasChain() {
			parts[i] = s.Chain + ChainSep + body
		} else {
			parts[i] = body
		}
	}
	return strings.Join(parts, DirMultiSep)
}

// DirPath returns the unit directory path relative to the step working
// directory: the mutation directory name, plus a replicate subdirectory
// when the unit has one. Paths always use forward slashes.
func DirPath(u Unit) string {
	name := DirName(u.Mutation)
	if u.Replicate > 0 {
		return path.Join(name, strconv.Itoa(u.Replicate))
	}
	return name
}
