// Package rosetta writes the input files of Rosetta protocol steps and
// launches the engine executables.
package rosetta

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/mutation"
)

// File names written in every unit directory.
const (
	FlagsFile   = "flags.txt"
	MutfileName = "mutfile.txt"
	ResfileName = "resfile.txt"
	LogFile     = "rosetta.log"
)

// WriteFlags writes opts as an engine flags file: one "key value" line per
// option, in order. Variable maps are rendered as space-separated
// var=value pairs.
func WriteFlags(w io.Writer, opts config.Options) error {
	bw := bufio.NewWriter(w)
	for _, opt := range opts {
		var val string
		switch opt.Value.Kind {
		case config.Vars:
			pairs := make([]string, len(opt.Value.Vars))
			for i, v := range opt.Value.Vars {
				pairs[i] = v.Name + "=" + v.Value.Text
			}
			val = strings.Join(pairs, " ")
		default:
			val = opt.Value.Text
		}
		fmt.Fprintf(bw, "%s %s\n", opt.Key, val)
	}
	return bw.Flush()
}

// WriteMutfile writes m as a cartesian_ddg mutation file. The header
// declares the number of substitutions, followed by one "wt pos mut" line
// per substitution with non-canonical residues wrapped.
func WriteMutfile(w io.Writer, m mutation.Mutation) error {
	n := strconv.Itoa(len(m.Substitutions))
	var b strings.Builder
	b.WriteString("total " + n + "\n" + n)
	for _, s := range m.Substitutions {
		e := s.Engine()
		fmt.Fprintf(&b, "\n%s %s %s", e.WildType, e.Position, e.Mutant)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteResfile writes m as a packer resfile restricting each mutated
// position to its mutant residue and keeping every other residue native.
func WriteResfile(w io.Writer, m mutation.Mutation) error {
	var b strings.Builder
	b.WriteString("NATAA\nstart")
	for _, s := range m.Substitutions {
		e := s.Engine()
		fmt.Fprintf(&b, "\n%s %s PIKAA %s", e.Position, e.Chain, e.Mutant)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// writeFile creates path and its parent directories and fills it with fn.
func writeFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", filepath.Base(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteFlagsFile writes a flags file at path.
func WriteFlagsFile(path string, opts config.Options) error {
	return writeFile(path, func(w io.Writer) error { return WriteFlags(w, opts) })
}

// WriteMutfileFile writes a mutation file at path.
func WriteMutfileFile(path string, m mutation.Mutation) error {
	return writeFile(path, func(w io.Writer) error { return WriteMutfile(w, m) })
}

// WriteResfileFile writes a resfile at path.
func WriteResfileFile(path string, m mutation.Mutation) error {
	return writeFile(path, func(w io.Writer) error { return WriteResfile(w, m) })
}

// ReadFlags reads a flags file written by WriteFlags into a key to value
// map. Blank lines and lines starting with '#' are ignored.
func ReadFlags(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	flags := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, _ := strings.Cut(line, " ")
		flags[key] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return flags, nil
}

// InputStructure returns the input structure bound in the flags file of
// dir.
func InputStructure(dir string) (string, error) {
	flags, err := ReadFlags(filepath.Join(dir, FlagsFile))
	if err != nil {
		return "", err
	}
	pdb, ok := flags[config.Canonical(config.InPDBFile)]
	if !ok || pdb == "" {
		return "", fmt.Errorf("%s: no input structure", filepath.Join(dir, FlagsFile))
	}
	return pdb, nil
}
