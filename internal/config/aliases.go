package config

import (
	"fmt"
	"slices"
	"strings"
)

// Logical names an engine option independently of how it is spelled.
type Logical string

// Logical options read by the tool.
const (
	InPDBFile         Logical = "in_pdb_file"
	Protocol          Logical = "protocol"
	ScriptVars        Logical = "script_vars"
	MutFile           Logical = "mut_file"
	DDGOut            Logical = "ddg_out"
	ScoreFunction     Logical = "scfname"
	DDGDBFile         Logical = "ddgdbfile"
	BackrubNTrials    Logical = "backrub_ntrials"
	BackrubTrajStride Logical = "backrub_trajstride"
	ResFile           Logical = "resfile"
	OutPrefix         Logical = "out_prefix"
	OutSuffix         Logical = "out_suffix"
	NStruct           Logical = "nstruct"
)

// Aliases lists the accepted spellings of every logical option, highest
// priority first. The most explicit spelling of an option comes first.
var Aliases = map[Logical][]string{
	InPDBFile:         {"-in:file:s", "-in::file::s", "-s"},
	Protocol:          {"-parser:protocol", "-parser::protocol", "-protocol"},
	ScriptVars:        {"-parser:script_vars", "-parser::script_vars", "-script_vars"},
	MutFile:           {"-ddg:mut_file", "-ddg::mut_file", "-mut_file"},
	DDGOut:            {"-ddg:out", "-ddg::out"},
	ScoreFunction:     {"-score:weights", "-score::weights", "-weights", "scfname", "scorefxn"},
	DDGDBFile:         {"ddgdbfile"},
	BackrubNTrials:    {"backrubntrials", "backrub_ntrials"},
	BackrubTrajStride: {"backrubtrajstride", "backrub_trajstride"},
	ResFile:           {"resfile"},
	OutPrefix:         {"-out:prefix", "-out::prefix", "-prefix"},
	OutSuffix:         {"-out:suffix", "-out::suffix", "-suffix"},
	NStruct:           {"-out:nstruct", "-out::nstruct", "-nstruct"},
}

// Resolution is the outcome of resolving the logical options of one set of
// keys (engine options or script variables).
type Resolution struct {
	keys     map[Logical]string
	Warnings []string
}

// Key returns the spelling chosen for name.
func (r Resolution) Key(name Logical) (string, bool) {
	k, ok := r.keys[name]
	return k, ok
}

// Resolve picks, for every logical option, the highest-priority spelling
// present in keys. When several spellings of one option are present the
// choice is recorded as a warning.
func Resolve(keys []string) Resolution {
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}
	res := Resolution{keys: make(map[Logical]string)}
	for name, spellings := range Aliases {
		var found []string
		for _, s := range spellings {
			if present[s] {
				found = append(found, s)
			}
		}
		if len(found) == 0 {
			continue
		}
		res.keys[name] = found[0]
		if len(found) > 1 {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"multiple equivalent options found (%s); %s will be used",
				strings.Join(found, ", "), found[0]))
		}
	}
	slices.Sort(res.Warnings)
	return res
}

// Canonical returns the preferred spelling of name.
func Canonical(name Logical) string {
	return Aliases[name][0]
}
