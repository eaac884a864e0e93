package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlingford/ddg-rosetta/internal/ledger"
)

func TestLedger_Text(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "mutinfo.txt", "B.S.10.N,B-S10N,S10N,S10\nA.G.12.A,A-G12A,G12A,G12\nA.C.11.Y,A-C11Y,C11Y,C11\n")

	output, err := execute(NewLedgerCommand(&RootOptions{Format: "text"}), w.path("mutinfo.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"MUTATION\tDIRECTORY\tLABEL\tPOSITION\n"+
			"A.C.11.Y\tA-C11Y\tC11Y\tC11\n"+
			"A.G.12.A\tA-G12A\tG12A\tG12\n"+
			"B.S.10.N\tB-S10N\tS10N\tS10\n",
		output)
}

func TestLedger_JSONWithChains(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "mutinfo.txt", "A.C.11.Y+A.G.12.A,A-C11Y_A-G12A,C11Y+G12A,C11+G12\n")

	output, err := execute(NewLedgerCommand(&RootOptions{Format: "json"}), w.path("mutinfo.txt"), "--label-chains")
	require.NoError(t, err)

	var resp struct {
		Data LedgerListing `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, []ledger.Record{{
		MutationName:  "A.C.11.Y+A.G.12.A",
		DirName:       "A-C11Y_A-G12A",
		MutationLabel: "A:C11Y+A:G12A",
		PositionLabel: "A:C11+A:G12",
	}}, resp.Data.Records)
}

func TestLedger_Malformed(t *testing.T) {
	w := newWorkspace(t)
	w.write(t, "mutinfo.txt", "only,three,fields\n")

	output, err := execute(NewLedgerCommand(&RootOptions{Format: "text"}), w.path("mutinfo.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "Error [")
}

func TestLedger_MissingFile(t *testing.T) {
	output, err := execute(NewLedgerCommand(&RootOptions{Format: "text"}), "/no/such/mutinfo.txt")
	require.Error(t, err)
	assert.Contains(t, output, ErrCodeNotFound)
}
