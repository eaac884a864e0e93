package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlingford/ddg-rosetta/internal/rosetta"
)

func TestPrepare_CartDDG(t *testing.T) {
	w := newWorkspace(t)
	out := w.prepare(t)

	ledgerText, err := os.ReadFile(filepath.Join(out, LedgerFile))
	require.NoError(t, err)
	assert.Equal(t, "A.C.11.Y,A-C11Y,C11Y,C11\nA.G.12.A,A-G12A,G12A,G12\n", string(ledgerText))

	// relax runs on the input structure
	pdb, err := rosetta.InputStructure(filepath.Join(out, "relax"))
	require.NoError(t, err)
	assert.Equal(t, w.path("input.pdb"), pdb)

	// cartesian runs on the relaxed structure, in pose numbering
	unit := filepath.Join(out, "cartesian", "A-C11Y")
	mutfile, err := os.ReadFile(filepath.Join(unit, rosetta.MutfileName))
	require.NoError(t, err)
	assert.Equal(t, "total 1\n1\nC 2 Y", string(mutfile))

	pdb, err = rosetta.InputStructure(unit)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "relax", rosetta.BestStructureFile), pdb)
}

func TestPrepare_JSON(t *testing.T) {
	w := newWorkspace(t)
	cmd := NewPrepareCommand(&RootOptions{Format: "json"})
	output, err := execute(cmd,
		"--config-dir", w.path("configs"), "-r", "cartddg",
		"--pdb", w.path("input.pdb"), "-l", w.path("mutations.txt"), "-d", w.path("run"))
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   PrepareResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Mutations)
	require.Len(t, resp.Data.Steps, 2)
	assert.Equal(t, PreparedStep{Name: "relax", Dir: w.path("run/relax"), Units: 1}, resp.Data.Steps[0])
	assert.Equal(t, 2, resp.Data.Steps[1].Units)
}

func TestPrepare_SaturationScan(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "positions.txt", "A.C.11\n")
	w.write(t, "residues.txt", "A\nY\n")

	out := w.path("run")
	_, err := execute(NewPrepareCommand(&RootOptions{Format: "text"}),
		"--config-dir", w.path("configs"), "-r", "cartddg",
		"--pdb", w.path("input.pdb"), "-l", w.path("positions.txt"), "-t", w.path("residues.txt"), "-d", out)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(out, "cartesian"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "A-C11A")
	assert.Contains(t, names, "A-C11Y")
}

func TestPrepare_LabelChainsFromAggregateConfig(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "configs/aggregate.yaml", aggregateConf+"label_chains: true\n")
	out := w.prepare(t, "-a", "aggregate")

	ledgerText, err := os.ReadFile(filepath.Join(out, LedgerFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(ledgerText), "A.C.11.Y,A-C11Y,A:C11Y,A:C11\n"))
}

func TestPrepare_UnknownResidue(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "mutations.txt", "A.C.11.Y\nA.W.99.A\n")

	cmd := NewPrepareCommand(&RootOptions{Format: "text"})
	output, err := execute(cmd,
		"--config-dir", w.path("configs"), "-r", "cartddg",
		"--pdb", w.path("input.pdb"), "-l", w.path("mutations.txt"), "-d", w.path("run"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, ErrCodeMutationList)

	// nothing is written for a rejected list
	_, statErr := os.Stat(w.path("run"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPrepare_MultiChainRejected(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "input.pdb", strings.TrimSuffix(pdbText([]string{"MET", "CYS"}, 10), "END\n")+
		"ATOM      9  CA  GLY B   1       1.000   2.000   3.000  1.00  0.00\nEND\n")

	output, err := execute(NewPrepareCommand(&RootOptions{Format: "text"}),
		"--config-dir", w.path("configs"), "-r", "cartddg",
		"--pdb", w.path("input.pdb"), "-l", w.path("mutations.txt"), "-d", w.path("run"))
	require.Error(t, err)
	assert.Contains(t, output, ErrCodeStructure)
}

func TestPrepare_MissingFlags(t *testing.T) {
	_, err := execute(NewPrepareCommand(&RootOptions{Format: "text"}), "-r", "cartddg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
