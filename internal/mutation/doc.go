// Package mutation provides the value types and pure enumeration logic used
// to turn a user-supplied mutation list into calculation units.
//
// The package owns:
//   - Substitution, Mutation and Unit value types
//   - List parsing (mutation lists and residue-type lists)
//   - Saturation scan expansion
//   - Directory naming for units
//   - Plan building (parse → saturate → renumber → expand)
//
// Everything here is deterministic and free of I/O side effects other than
// reading the input files. Directory names are recomputed from mutations
// wherever they are needed, never read back from disk.
//
// # Text formats
//
// A mutation list line holds one or more substitutions joined by MultiSep,
// each substitution being chain.wildtype.position.mutant, optionally
// followed by whitespace-separated extra tokens:
//
//	A.C.151.Y+A.S.154.N  destabilizing
//
// Chain NoChain ("_") marks a structure without chain identifiers.
package mutation
