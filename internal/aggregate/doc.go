// Package aggregate turns the raw outputs of a ΔΔG protocol run into
// tables.
//
// Each mutation directory is processed on its own:
//
//	parse   raw outputs -> rows (structure, state, scores)
//	reduce  rows -> wild-type, mutant and ΔΔG frames
//	tables  frames -> aggregate table (mean ΔΔG) and structures table
//	rescale energy contributions -> kcal/mol (optional)
//
// cartddg runs leave one text file per mutation; flexddg runs leave one
// SQLite score database per structure replicate. An output that is missing
// or unparsable is skipped with a warning. A mutation whose outputs parse
// but cannot be reduced, including a flexddg mutation left with no usable
// replicate, aborts the whole aggregation.
//
// Per-mutation tables are written as they complete; the combined tables
// are written once every mutation has been processed, in directory order.
package aggregate
