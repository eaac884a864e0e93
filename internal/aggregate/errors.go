package aggregate

import (
	"errors"
	"fmt"
)

// MissingOutputError reports an engine output that is absent or cannot be
// parsed. It is not fatal: the affected mutation or replicate is skipped.
type MissingOutputError struct {
	Mutation string
	Path     string
	Err      error
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("mutation %s: unusable output %s: %v", e.Mutation, e.Path, e.Err)
}

func (e *MissingOutputError) Unwrap() error {
	return e.Err
}

// ReductionError reports parsed outputs that cannot be turned into
// wild-type, mutant and ΔΔG frames. It aborts the aggregation.
type ReductionError struct {
	Mutation string
	Reason   string
}

func (e *ReductionError) Error() string {
	return fmt.Sprintf("mutation %s: cannot reduce scores: %s", e.Mutation, e.Reason)
}

// IsMissingOutput reports whether err is a MissingOutputError.
func IsMissingOutput(err error) bool {
	var e *MissingOutputError
	return errors.As(err, &e)
}

// IsReductionError reports whether err is a ReductionError.
func IsReductionError(err error) bool {
	var e *ReductionError
	return errors.As(err, &e)
}
