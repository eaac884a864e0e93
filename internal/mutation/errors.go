package mutation

import (
	"errors"
	"fmt"
	"strings"
)

// ParseError reports a malformed line in an input file.
type ParseError struct {
	// File is the name or path of the input.
	File string

	// Line is the 1-based line number (0 when not line-specific).
	Line int

	// Text is the offending line content.
	Text string

	// Reason describes what is wrong with the line.
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %q", e.File, e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// InvalidScanError reports a saturation scan position entry that holds more
// than one substitution.
type InvalidScanError struct {
	File  string
	Line  int
	Entry string
}

func (e *InvalidScanError) Error() string {
	return fmt.Sprintf("%s:%d: saturation scan position %q has multiple substitutions; scans are single-site",
		e.File, e.Line, e.Entry)
}

// Warning is a recoverable problem found while parsing.
type Warning struct {
	File    string
	Line    int
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d: %s", w.File, w.Line, w.Message)
}

// IsParseError reports whether err (or anything it wraps) is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsInvalidScanError reports whether err (or anything it wraps) is an
// InvalidScanError.
func IsInvalidScanError(err error) bool {
	var se *InvalidScanError
	return errors.As(err, &se)
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}
