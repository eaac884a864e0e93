package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const cartddgConf = `version: 1
family: cartddg
mutations:
  numbering: pose
steps:
  relax:
    wd: relax
    options:
      -s: null
      -nstruct: 2
      -out:prefix: relaxed_
  cartesian:
    wd: cartesian
    options:
      -in:file:s: null
      -ddg:mut_file: mutfile.txt
      -ddg:iterations: 1
      -ddg:out: mutation.ddg
      -score:weights: ref2015_cart
`

const aggregateConf = `version: 1
out_tables:
  options:
    sep: ","
  rescale: false
  names:
    aggregate: ddg_aggregate.csv
    structures: ddg_structures.csv
    aggregate_suffix: _aggregate.csv
    structures_suffix: _structures.csv
energy_contributions:
  ref2015_cart: [fa_atr, fa_rep]
conversion_factors:
  ref2015_cart: 0.298
`

const settingsConf = `version: 1
rosetta:
  suffix: .linuxgccrelease
`

// workspace is a temporary directory holding configurations and inputs.
type workspace struct {
	dir string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	w := &workspace{dir: t.TempDir()}
	w.write(t, "configs/cartddg.yaml", cartddgConf)
	w.write(t, "configs/aggregate.yaml", aggregateConf)
	w.write(t, "configs/settings.yaml", settingsConf)
	w.write(t, "input.pdb", pdbText([]string{"MET", "CYS", "GLY"}, 10))
	w.write(t, "mutations.txt", "A.C.11.Y\nA.G.12.A\n")
	return w
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, filepath.FromSlash(name))
}

func (w *workspace) write(t *testing.T, name, content string) {
	t.Helper()
	path := w.path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// pdbText renders a single-chain structure with one atom per residue,
// numbered from first.
func pdbText(residues []string, first int) string {
	var b strings.Builder
	for i, res := range residues {
		fmt.Fprintf(&b, "%-6s%5d %-4s %3s %1s%4d%1s   %8.3f%8.3f%8.3f  1.00  0.00\n",
			"ATOM", i+1, "CA", res, "A", first+i, "", 1.0, 2.0, 3.0)
	}
	b.WriteString("END\n")
	return b.String()
}

// fakeRosetta installs shell scripts standing in for the engine
// executables. The cartesian_ddg stand-in crashes in directories whose
// path contains crashIn, when set.
func (w *workspace) fakeRosetta(t *testing.T, crashIn string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	bin := w.path("bin")
	relax := `#!/bin/sh
printf 'SEQUENCE: \nSCORE: total_score description\nSCORE: -10.0 relaxed_input_0001\nSCORE: -12.5 relaxed_input_0002\n' > score.sc
echo ATOM > relaxed_input_0001.pdb
echo ATOM > relaxed_input_0002.pdb
`
	cartesian := `#!/bin/sh
case "$PWD" in
  *CRASH_IN*) echo crashed > ROSETTA_CRASH.log; exit 1 ;;
esac
printf 'COMPLEX:   Round1: WT_:  -100  fa_atr: -50  fa_rep: 10\n' > mutation.ddg
printf 'COMPLEX:   Round1: MUT_2TYR:  -98  fa_atr: -49  fa_rep: 11\n' >> mutation.ddg
printf 'COMPLEX:   Round2: WT_:  -101  fa_atr: -51  fa_rep: 10\n' >> mutation.ddg
printf 'COMPLEX:   Round2: MUT_2TYR:  -97  fa_atr: -48  fa_rep: 12\n' >> mutation.ddg
`
	if crashIn == "" {
		crashIn = "/nowhere/"
	}
	cartesian = strings.ReplaceAll(cartesian, "CRASH_IN", crashIn)
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "relax.linuxgccrelease"), []byte(relax), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "cartesian_ddg.linuxgccrelease"), []byte(cartesian), 0o755))
	return bin
}

// execute runs cmd with args and returns its standard output.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func (w *workspace) prepare(t *testing.T, extra ...string) string {
	t.Helper()
	out := w.path("run")
	args := append([]string{
		"--config-dir", w.path("configs"), "-r", "cartddg",
		"--pdb", w.path("input.pdb"), "-l", w.path("mutations.txt"), "-d", out,
	}, extra...)
	_, err := execute(NewPrepareCommand(&RootOptions{Format: "text"}), args...)
	require.NoError(t, err)
	return out
}
