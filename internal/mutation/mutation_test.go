package mutation

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) *List {
	t.Helper()
	l, err := ParseList(strings.NewReader(text), "mutations.txt")
	require.NoError(t, err)
	return l
}

func TestParseList_Basic(t *testing.T) {
	l := mustParse(t, "A.C.151.Y\n\n  \nA.C.151.Y+A.S.154.N exp1 0.5\n_.G.12.DAL\n")

	require.Equal(t, 3, l.Len())
	assert.Empty(t, l.Warnings())

	got := l.Mutations()
	want := []Mutation{
		{Substitutions: []Substitution{{Chain: "A", WildType: "C", Position: "151", Mutant: "Y"}}},
		{
			Substitutions: []Substitution{
				{Chain: "A", WildType: "C", Position: "151", Mutant: "Y"},
				{Chain: "A", WildType: "S", Position: "154", Mutant: "N"},
			},
			ExtraTokens: []string{"exp1", "0.5"},
		},
		{Substitutions: []Substitution{{Chain: "_", WildType: "G", Position: "12", Mutant: "DAL"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parsed mutations mismatch (-want +got):\n%s", diff)
	}

	entries := l.Entries()
	assert.Equal(t, 1, entries[0].Line)
	assert.Equal(t, 4, entries[1].Line)
	assert.Equal(t, 5, entries[2].Line)
}

func TestParseList_DuplicatesCollapseWithWarning(t *testing.T) {
	l := mustParse(t, "A.C.151.Y x\nA.C.151.Y y\nA.C.151.Y x\n")

	require.Equal(t, 2, l.Len())
	warnings := l.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, 3, warnings[0].Line)
	assert.Contains(t, warnings[0].Message, "first at line 1")
}

func TestParseList_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"too few fields", "A.C.151.Y\nA.C.151\n", 2},
		{"too many fields", "A.C.151.Y.Z\n", 1},
		{"empty field", "A..151.Y\n", 1},
		{"bad second substitution", "A.C.151.Y+A.S.154\n", 1},
		{"directory separator between substitutions", "A.C.151.Y\nA.C.151.Y_A.S.154.N\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseList(strings.NewReader(tt.text), "bad.txt")
			require.Error(t, err)
			assert.True(t, IsParseError(err))

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.line, pe.Line)
			assert.Contains(t, err.Error(), "bad.txt")
		})
	}
}

func TestListAll_Restartable(t *testing.T) {
	l := mustParse(t, "A.C.151.Y e1\nB.S.10.N\n")

	var first, second []string
	for m, extra := range l.All() {
		first = append(first, m.Encode()+"|"+strings.Join(extra, ","))
	}
	for m, extra := range l.All() {
		second = append(second, m.Encode()+"|"+strings.Join(extra, ","))
	}
	assert.Equal(t, []string{"A.C.151.Y|e1", "B.S.10.N|"}, first)
	assert.Equal(t, first, second)
}

func TestBindExtra(t *testing.T) {
	l := mustParse(t, "A.C.151.Y label1 1.2\nA.C.152.Y label2\n").BindExtra([]string{"label", "exp", "unused"})

	ms := l.Mutations()
	assert.Equal(t, map[string]string{"label": "label1", "exp": "1.2"}, ms[0].Extra)
	assert.Equal(t, map[string]string{"label": "label2"}, ms[1].Extra)
}

func TestWrapResidue(t *testing.T) {
	assert.Equal(t, "A", WrapResidue("A"))
	assert.Equal(t, "X[DAL]", WrapResidue("DAL"))
	assert.Equal(t, "X[DAL]", WrapResidue("X[DAL]"))
	assert.Equal(t, "DAL", UnwrapResidue(WrapResidue("DAL")))
	assert.Equal(t, "Y", UnwrapResidue("Y"))
}

func TestDirName(t *testing.T) {
	tests := []struct {
		name string
		subs []Substitution
		want string
	}{
		{"chain", []Substitution{{"A", "C", "151", "Y"}}, "A-C151Y"},
		{"no chain", []Substitution{{"_", "C", "151", "Y"}}, "C151Y"},
		{"non-canonical", []Substitution{{"A", "X[DAL]", "12", "X[NLE]"}}, "A-DAL12NLE"},
		{"multiple", []Substitution{{"A", "C", "151", "Y"}, {"B", "S", "154", "N"}}, "A-C151Y_B-S154N"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DirName(Mutation{Substitutions: tt.subs}))
		})
	}
}

func TestDirName_OrderSensitive(t *testing.T) {
	a := mustParse(t, "A.A.151.Y+A.A.154.N\nA.A.154.N+A.A.151.Y\n").Mutations()

	require.Len(t, a, 2)
	assert.NotEqual(t, DirName(a[0]), DirName(a[1]))
}

func TestDirName_Idempotent(t *testing.T) {
	l := mustParse(t, "A.C.151.Y+B.S.10A.N tag\n_.DAL.3.G\n")
	for m := range l.All() {
		assert.Equal(t, DirName(m), DirName(m.Clone()))
		assert.Equal(t, DirName(m), DirName(m))
	}
}

func TestDirPath_Replicates(t *testing.T) {
	m := mustParse(t, "A.C.151.Y\n").Mutations()[0]

	path, name := Unit{Mutation: m, Replicate: 3}.Paths()
	assert.Equal(t, "A-C151Y/3", path)
	assert.Equal(t, "A-C151Y", name)

	path, name = Unit{Mutation: m}.Paths()
	assert.Equal(t, "A-C151Y", path)
	assert.Equal(t, "A-C151Y", name)
}

func TestSaturate(t *testing.T) {
	positions, err := ParsePositions(strings.NewReader("A.C.151 site1\nB.S.10\n"), "positions.txt")
	require.NoError(t, err)
	residues := []string{"W", "A", "DAL", "*"}

	sat, err := Saturate(positions, residues)
	require.NoError(t, err)
	require.Equal(t, 2*len(residues), sat.Len())

	ms := sat.Mutations()
	for i, m := range ms {
		require.Len(t, m.Substitutions, 1)
		assert.Equal(t, residues[i%len(residues)], m.Substitutions[0].Mutant)
	}
	for _, m := range ms[:4] {
		assert.Equal(t, "151", m.Substitutions[0].Position)
		assert.Equal(t, []string{"site1"}, m.ExtraTokens)
	}
	for _, m := range ms[4:] {
		assert.Equal(t, "B", m.Substitutions[0].Chain)
		assert.Empty(t, m.ExtraTokens)
	}
}

func TestSaturate_MultiSiteRejected(t *testing.T) {
	positions, err := ParsePositions(strings.NewReader("A.C.151\nA.C.151+A.S.154\n"), "positions.txt")
	require.NoError(t, err)

	_, err = Saturate(positions, []string{"A"})
	require.Error(t, err)
	assert.True(t, IsInvalidScanError(err))
	assert.Contains(t, err.Error(), "positions.txt:2")
}

func TestParseResidueTypes(t *testing.T) {
	got, err := ParseResidueTypes(strings.NewReader("W\n\nA\nX[DAL]\n  G  \n"), "residues.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"W", "A", "DAL", "G"}, got)

	_, err = ParseResidueTypes(strings.NewReader("\n\n"), "empty.txt")
	assert.True(t, IsParseError(err))
}

type prefixPositions struct{}

func (prefixPositions) Convert(l *List) (*List, error) {
	var out []Mutation
	for m := range l.All() {
		c := m.Clone()
		for i := range c.Substitutions {
			c.Substitutions[i].Position = "p" + c.Substitutions[i].Position
		}
		out = append(out, c)
	}
	return NewList(l.File, out...), nil
}

func TestBuildPlan(t *testing.T) {
	l := mustParse(t, "A.C.151.Y\nA.C.151.Y+A.S.154.N\n")

	plan, err := BuildPlan(PlanInput{List: l, Renumber: prefixPositions{}, NStruct: 2})
	require.NoError(t, err)

	require.Len(t, plan.Units, 4)
	assert.Equal(t, "p151", plan.Units[0].Mutation.Substitutions[0].Position)
	assert.Equal(t, "151", plan.OriginalUnits[0].Mutation.Substitutions[0].Position)

	var paths []string
	for _, job := range plan.Jobs() {
		paths = append(paths, job.Path)
	}
	assert.Equal(t, []string{"A-C151Y/1", "A-C151Y/2", "A-C151Y_A-S154N/1", "A-C151Y_A-S154N/2"}, paths)
}

func TestBuildPlan_SaturationNeedsNoMutant(t *testing.T) {
	positions, err := ParsePositions(strings.NewReader("A.C.151\n"), "positions.txt")
	require.NoError(t, err)

	_, err = BuildPlan(PlanInput{List: positions})
	assert.True(t, IsParseError(err))

	plan, err := BuildPlan(PlanInput{List: positions, ResidueTypes: []string{"A", "G"}})
	require.NoError(t, err)
	names := make([]string, 0, len(plan.Units))
	for _, u := range plan.Units {
		names = append(names, DirName(u.Mutation))
	}
	assert.True(t, slices.Equal([]string{"A-C151A", "A-C151G"}, names))
}
