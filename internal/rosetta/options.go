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
)

// Bindings are the per-unit values bound into a step's options.
type Bindings struct {
	// PDB is the input structure.
	PDB string

	// ScriptsDir resolves protocol scripts given as bare file names.
	ScriptsDir string

	// MutFile is the mutation file passed to the engine, if any.
	MutFile string

	// Attrs maps attribute names to values. A script variable whose
	// configured value names an attribute receives the attribute's value.
	Attrs map[string]string
}

// BindOptions returns the options of step with the input structure,
// protocol script path, mutation file and script variables bound for one
// unit. The step's options are not modified.
func BindOptions(step config.Step, b Bindings) (config.Options, error) {
	opts := step.Options.Clone()

	opts = replace(opts, step.Keys, config.InPDBFile, b.PDB)

	if key, ok := step.Keys.Key(config.Protocol); ok {
		opt, _ := opts.Get(key)
		script := opt.Value.Text
		if filepath.Base(script) == script {
			if b.ScriptsDir == "" {
				return nil, fmt.Errorf("protocol script %q given without directory and no scripts directory configured", script)
			}
			script = filepath.Join(b.ScriptsDir, script)
		} else if abs, err := filepath.Abs(script); err == nil {
			script = abs
		}
		opts = opts.Set(key, config.StringValue(script))
	}

	if b.MutFile != "" {
		opts = replace(opts, step.Keys, config.MutFile, b.MutFile)
	}

	if key, ok := step.Keys.Key(config.ScriptVars); ok && len(b.Attrs) > 0 {
		opt, _ := opts.Get(key)
		v := opt.Value
		for i, vr := range v.Vars {
			if val, ok := b.Attrs[vr.Value.Text]; ok {
				v.Vars[i].Value = config.StringValue(val)
			}
		}
		opts = opts.Set(key, v)
	}
	return opts, nil
}

// replace sets a logical option under its canonical spelling, dropping
// whichever spelling the configuration used.
func replace(opts config.Options, keys config.Resolution, name config.Logical, value string) config.Options {
	canonical := config.Canonical(name)
	if key, ok := keys.Key(name); ok && key != canonical {
		kept := make(config.Options, 0, len(opts))
		for _, o := range opts {
			if o.Key != key {
				kept = append(kept, o)
			}
		}
		opts = kept
	}
	return opts.Set(canonical, config.StringValue(value))
}

// OutputStructureName returns the file name the engine gives to structure
// n (1-based) generated from pdb, honoring output prefix and suffix
// options. n <= 0 means the engine writes a single unnumbered structure.
func OutputStructureName(step config.Step, pdb string, n int) string {
	name := strings.TrimSuffix(filepath.Base(pdb), ".pdb")
	prefix, _ := step.Option(config.OutPrefix)
	suffix, _ := step.Option(config.OutSuffix)
	if n > 0 {
		return fmt.Sprintf("%s%s%s_%04d.pdb", prefix, name, suffix, n)
	}
	return prefix + name + suffix + ".pdb"
}

// Score is the total score of one generated structure.
type Score struct {
	Structure int     `json:"structure"`
	Total     float64 `json:"total_score"`
}

// ParseScorefile reads a text scorefile. Rows after the
// "SCORE: total_score" header are numbered from 1 in file order.
func ParseScorefile(r io.Reader, name string) ([]Score, error) {
	var scores []Score
	sc := bufio.NewScanner(r)
	header := false
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.HasPrefix(text, "SCORE: total_score") {
			header = true
			continue
		}
		if !header {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			continue
		}
		total, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid total score %q", name, line, fields[1])
		}
		scores = append(scores, Score{Structure: len(scores) + 1, Total: total})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("%s: no scores found", name)
	}
	return scores, nil
}

// BestStructure returns the lowest-scoring structure in a scorefile.
// Ties go to the earliest structure.
func BestStructure(path string) (Score, error) {
	f, err := os.Open(path)
	if err != nil {
		return Score{}, fmt.Errorf("open scorefile: %w", err)
	}
	defer f.Close()
	scores, err := ParseScorefile(f, path)
	if err != nil {
		return Score{}, err
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Total < best.Total {
			best = s
		}
	}
	return best, nil
}
