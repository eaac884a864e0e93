package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// Schema definitions for the configuration files.
const (
	defRun       = "#Run"
	defAggregate = "#Aggregate"
	defSettings  = "#Settings"
)

// SchemaError reports configuration values rejected by the schema.
type SchemaError struct {
	File   string
	Issues []SchemaIssue
}

// SchemaIssue is one schema violation.
type SchemaIssue struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (i SchemaIssue) String() string {
	if i.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", i.Pos.Filename(), i.Pos.Line(), i.Pos.Column(), i.Path, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

func (e *SchemaError) Error() string {
	lines := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		lines[i] = is.String()
	}
	return fmt.Sprintf("%s: invalid configuration:\n  %s", e.File, strings.Join(lines, "\n  "))
}

// validate checks a YAML document against one schema definition.
func validate(def, filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile configuration schema: %w", err)
	}

	f, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	doc := ctx.BuildFile(f)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath(def)).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return schemaError(filename, err)
	}
	return nil
}

// schemaError converts CUE errors, preferring positions inside the
// configuration file over positions inside the schema.
func schemaError(filename string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	se := &SchemaError{File: filename}
	for _, e := range errs {
		format, args := e.Msg()
		issue := SchemaIssue{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		for _, p := range cueerrors.Positions(e) {
			if p.Filename() == filename {
				issue.Pos = p
				break
			}
		}
		se.Issues = append(se.Issues, issue)
	}
	return se
}
