package rosetta

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlingford/ddg-rosetta/internal/config"
	"github.com/jlingford/ddg-rosetta/internal/mutation"
)

const cartddgRun = `version: 1
family: cartddg
steps:
  relax:
    wd: relax
    options:
      -s: input.pdb
      -nstruct: 20
      -out:prefix: relaxed_
  cartesian:
    wd: cartesian
    options:
      -in:file:s: null
      -ddg:mut_file: mutfile.txt
      -ddg:iterations: 3
      -ddg:out: mutation.ddg
      -score:weights: ref2015_cart
      -ddg:legacy: False
`

const flexddgRun = `version: 1
family: flexddg
mutations:
  nstruct: 3
steps:
  flexddg:
    wd: flexddg
    options:
      -in:file:s:
      -parser:protocol: flexddg.xml
      -parser:script_vars:
        resfile: resfile
        ddgdbfile: ddg.db3
        scorefxn: talaris2014
        backrubntrials: 35000
        backrubtrajstride: 7000
        struct: struct
      -restore_talaris_behavior: true
      -nstruct: 1
`

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func mustMutation(t *testing.T, line string) mutation.Mutation {
	t.Helper()
	l, err := mutation.ParseList(strings.NewReader(line+"\n"), "list.txt")
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
	return l.Mutations()[0]
}

func loadRun(t *testing.T, doc string) *config.Run {
	t.Helper()
	run, err := config.ParseRun([]byte(doc), "run.yaml")
	require.NoError(t, err)
	return run
}

func TestWriteMutfile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMutfile(&buf, mustMutation(t, "A.C.151.Y+A.DAL.154.N")))
	newGoldie(t).Assert(t, "mutfile_multi", buf.Bytes())
}

func TestWriteResfile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResfile(&buf, mustMutation(t, "A.C.151.Y+A.S.154.DAL")))
	newGoldie(t).Assert(t, "resfile_multi", buf.Bytes())
}

func TestWriteFlags_Cartesian(t *testing.T) {
	run := loadRun(t, cartddgRun)
	step, _ := run.DDGStep()

	opts, err := BindOptions(step, Bindings{PDB: "/data/best.pdb", MutFile: MutfileName})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFlags(&buf, opts))
	newGoldie(t).Assert(t, "flags_cartesian", buf.Bytes())
}

func TestWriteFlags_FlexDDG(t *testing.T) {
	run := loadRun(t, flexddgRun)
	step, _ := run.DDGStep()

	job := mutation.Job{Engine: mutation.Unit{Mutation: mustMutation(t, "A.C.151.Y"), Replicate: 3}}
	b := unitBindings(Bindings{PDB: "/data/in.pdb", ScriptsDir: "/opt/scripts"}, &job)
	opts, err := BindOptions(step, b)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFlags(&buf, opts))
	newGoldie(t).Assert(t, "flags_flexddg", buf.Bytes())

	// binding leaves the configured options untouched
	vars, _ := step.ScriptVars()
	v, _ := vars.Value.Var("resfile")
	assert.Equal(t, "resfile", v)
}

func TestBindOptions_ReplacesAliasedInput(t *testing.T) {
	run := loadRun(t, cartddgRun)
	relax := run.Steps["relax"]

	opts, err := BindOptions(relax, Bindings{PDB: "/data/in.pdb"})
	require.NoError(t, err)

	_, ok := opts.Get("-s")
	assert.False(t, ok)
	in, ok := opts.Get("-in:file:s")
	require.True(t, ok)
	assert.Equal(t, "/data/in.pdb", in.Value.Text)
}

func TestBindOptions_BareProtocolNeedsScriptsDir(t *testing.T) {
	run := loadRun(t, flexddgRun)
	step, _ := run.DDGStep()
	_, err := BindOptions(step, Bindings{PDB: "/data/in.pdb"})
	assert.ErrorContains(t, err, "flexddg.xml")
}

func TestPrepareStep(t *testing.T) {
	root := t.TempDir()
	run := loadRun(t, flexddgRun)
	step, spec := run.DDGStep()

	l, err := mutation.ParseList(strings.NewReader("A.C.151.Y\nA.C.151.Y+B.DAL.3.G\n"), "list.txt")
	require.NoError(t, err)
	plan, err := mutation.BuildPlan(mutation.PlanInput{List: l, NStruct: run.Mutations.NStruct})
	require.NoError(t, err)

	units, err := PrepareStep(root, spec, step, plan.Jobs(), Bindings{PDB: "/data/in.pdb", ScriptsDir: "/opt/scripts"})
	require.NoError(t, err)
	require.Len(t, units, 6)

	last := units[5]
	assert.Equal(t, filepath.Join(root, "flexddg", "A-C151Y_B-DAL3G", "3"), last.Dir)
	res, err := os.ReadFile(filepath.Join(last.Dir, ResfileName))
	require.NoError(t, err)
	assert.Equal(t, "NATAA\nstart\n151 A PIKAA Y\n3 B PIKAA G", string(res))

	flags, err := os.ReadFile(filepath.Join(last.Dir, FlagsFile))
	require.NoError(t, err)
	assert.Contains(t, string(flags), "struct=3")
}

func TestPrepareStep_NoMutation(t *testing.T) {
	root := t.TempDir()
	run := loadRun(t, cartddgRun)
	spec, _ := run.Family.Step("relax")

	units, err := PrepareStep(root, spec, run.Steps["relax"], nil, Bindings{PDB: "/data/in.pdb"})
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Nil(t, units[0].Job)
	assert.FileExists(t, filepath.Join(root, "relax", FlagsFile))
}

func TestInputStructure(t *testing.T) {
	root := t.TempDir()
	run := loadRun(t, cartddgRun)
	spec, _ := run.Family.Step("relax")

	_, err := PrepareStep(root, spec, run.Steps["relax"], nil, Bindings{PDB: "/data/in.pdb"})
	require.NoError(t, err)

	pdb, err := InputStructure(filepath.Join(root, "relax"))
	require.NoError(t, err)
	assert.Equal(t, "/data/in.pdb", pdb)

	flags, err := ReadFlags(filepath.Join(root, "relax", FlagsFile))
	require.NoError(t, err)
	assert.Equal(t, "20", flags["-nstruct"])

	_, err = InputStructure(t.TempDir())
	assert.Error(t, err)
}

func TestOutputStructureName(t *testing.T) {
	run := loadRun(t, cartddgRun)
	relax := run.Steps["relax"]
	assert.Equal(t, "relaxed_input_0007.pdb", OutputStructureName(relax, "/data/input.pdb", 7))
	assert.Equal(t, "relaxed_input.pdb", OutputStructureName(relax, "input.pdb", 0))
}

func TestParseScorefile(t *testing.T) {
	sc := "SEQUENCE: \n" +
		"SCORE: total_score       fa_atr description\n" +
		"SCORE:     -100.5     -300.0 relaxed_input_0001\n" +
		"SCORE:     -120.25    -310.0 relaxed_input_0002\n" +
		"SCORE:     -120.25    -305.0 relaxed_input_0003\n"
	scores, err := ParseScorefile(strings.NewReader(sc), "score.sc")
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, Score{Structure: 2, Total: -120.25}, scores[1])

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Scorefile), []byte(sc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relaxed_input_0002.pdb"), []byte("ATOM\n"), 0o644))

	run := loadRun(t, cartddgRun)
	best, err := SelectBest(dir, run.Steps["relax"], "input.pdb")
	require.NoError(t, err)
	assert.Equal(t, 2, best.Structure)
	assert.FileExists(t, filepath.Join(dir, BestStructureFile))

	_, err = ParseScorefile(strings.NewReader("SCORE: total_score\n"), "empty.sc")
	assert.Error(t, err)
}

func TestFindExecutable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cartesian_ddg.linuxgccrelease"), nil, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relax.linuxgccrelease"), nil, 0o755))

	path, err := FindExecutable(dir, "cartesian_ddg", ".linuxgccrelease")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cartesian_ddg.linuxgccrelease"), path)

	_, err = FindExecutable(dir, "rosetta_scripts", ".linuxgccrelease")
	assert.ErrorContains(t, err, "no executable found")
}

func TestRunner_Command(t *testing.T) {
	r := &Runner{MPI: &MPI{Exec: "mpirun", NProc: 4, Args: []string{"--oversubscribe"}}}
	assert.Equal(t,
		[]string{"mpirun", "-n", "4", "--oversubscribe", "/opt/relax", "@", "flags.txt"},
		r.Command(Invocation{Executable: "/opt/relax", Flags: "flags.txt"}))

	assert.Equal(t, []string{"/opt/relax", "@", "flags.txt"},
		(&Runner{}).Command(Invocation{Executable: "/opt/relax", Flags: "flags.txt"}))
}

func TestRunner_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script executable")
	}
	bin := filepath.Join(t.TempDir(), "fake_engine")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho \"$@\"\nexit 3\n"), 0o755))

	dir := filepath.Join(t.TempDir(), "unit")
	res, err := (&Runner{}).Run(context.Background(), Invocation{Executable: bin, Dir: dir, Flags: FlagsFile})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)

	out, err := os.ReadFile(filepath.Join(dir, LogFile))
	require.NoError(t, err)
	assert.Equal(t, "@ flags.txt\n", string(out))
}

func TestCrashed(t *testing.T) {
	ok, bad := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(bad, CrashLog), []byte("boom"), 0o644))

	crashed, err := Crashed([]string{ok, bad})
	require.NoError(t, err)
	assert.Equal(t, []string{bad}, crashed)
}
