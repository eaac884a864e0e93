package mutation

import "fmt"

// Renumberer converts the positions of a list into another numbering
// space. It must not change anything but Substitution.Position.
type Renumberer interface {
	Convert(l *List) (*List, error)
}

// PlanInput describes how to build the work list for a run.
type PlanInput struct {
	// List is the mutation list, or the position list for a saturation scan.
	List *List

	// ResidueTypes switches to a saturation scan when non-empty.
	ResidueTypes []string

	// Renumber converts positions to the engine numbering. Nil keeps
	// positions as written.
	Renumber Renumberer

	// ExtraKeys names the extra tokens of each line, positionally.
	ExtraKeys []string

	// NStruct is the number of structure replicates per mutation
	// (0 for protocols producing a single structure).
	NStruct int
}

// Plan is the complete, validated work list of a run.
type Plan struct {
	// Original holds the mutations as the user wrote them (after saturation
	// expansion). Labels and the provenance ledger are built from it.
	Original *List

	// Converted holds the same mutations in engine numbering.
	Converted *List

	// Units are the calculation units, in engine numbering.
	Units []Unit

	// OriginalUnits mirror Units in the original numbering.
	OriginalUnits []Unit
}

// BuildPlan expands in into a Plan. Any error aborts the whole plan: no
// partial work list is ever returned.
func BuildPlan(in PlanInput) (*Plan, error) {
	if in.List == nil {
		return nil, fmt.Errorf("build plan: no mutation list")
	}
	if in.NStruct < 0 {
		return nil, fmt.Errorf("build plan: negative number of structures %d", in.NStruct)
	}

	list := in.List
	if len(in.ResidueTypes) > 0 {
		sat, err := Saturate(list, in.ResidueTypes)
		if err != nil {
			return nil, err
		}
		list = sat
	} else {
		for _, e := range list.entries {
			for _, s := range e.Mutation.Substitutions {
				if s.Mutant == "" {
					return nil, &ParseError{File: list.File, Line: e.Line, Text: e.Mutation.Encode(),
						Reason: "mutation has no mutant residue (position lists need a residue-type list)"}
				}
			}
		}
	}
	if len(in.ExtraKeys) > 0 {
		list = list.BindExtra(in.ExtraKeys)
	}

	converted := list
	if in.Renumber != nil {
		c, err := in.Renumber.Convert(list)
		if err != nil {
			return nil, err
		}
		converted = c
	}
	if converted.Len() != list.Len() {
		return nil, fmt.Errorf("build plan: renumbering changed the list length (%d != %d)", converted.Len(), list.Len())
	}

	return &Plan{
		Original:      list,
		Converted:     converted,
		Units:         Expand(converted, in.NStruct),
		OriginalUnits: Expand(list, in.NStruct),
	}, nil
}

// Job pairs a unit in engine numbering with the directory it runs in.
// Directories are always named from the original numbering so they stay
// traceable to the user's list.
type Job struct {
	Engine   Unit
	Original Unit
	Path     string
	Name     string
}

// Jobs returns one Job per unit, in enumeration order.
func (p *Plan) Jobs() []Job {
	jobs := make([]Job, len(p.Units))
	for i, u := range p.Units {
		orig := p.OriginalUnits[i]
		path, name := orig.Paths()
		jobs[i] = Job{Engine: u, Original: orig, Path: path, Name: name}
	}
	return jobs
}

// Expand binds every mutation of l to its structure replicates. With a
// positive nstruct, each mutation yields replicates 1..nstruct; otherwise
// each mutation yields a single unit without a replicate.
func Expand(l *List, nstruct int) []Unit {
	var units []Unit
	for m := range l.All() {
		if nstruct <= 0 {
			units = append(units, Unit{Mutation: m})
			continue
		}
		for r := 1; r <= nstruct; r++ {
			units = append(units, Unit{Mutation: m, Replicate: r})
		}
	}
	return units
}
