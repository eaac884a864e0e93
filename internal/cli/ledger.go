package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jlingford/ddg-rosetta/internal/ledger"
)

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	*RootOptions
	LabelChains bool
}

// LedgerListing is the sorted content of a ledger.
type LedgerListing struct {
	Records []ledger.Record `json:"records"`
}

func (l LedgerListing) String() string {
	var b strings.Builder
	b.WriteString("MUTATION\tDIRECTORY\tLABEL\tPOSITION")
	for _, r := range l.Records {
		fmt.Fprintf(&b, "\n%s\t%s\t%s\t%s", r.MutationName, r.DirName, r.MutationLabel, r.PositionLabel)
	}
	return b.String()
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger <file>",
		Short: "Print the provenance ledger of a run",
		Long: `Print the provenance ledger of a run: for every mutation, the name it was
requested under, the directory it ran in and its labels. Records are sorted
by chain, position and wild-type residue.

Example:
  rosettaddg ledger ./run/mutinfo.txt
  rosettaddg ledger ./run/mutinfo.txt --label-chains --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.LabelChains, "label-chains", false, "render labels with chain ids")

	return cmd
}

func runLedger(opts *LedgerOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	records, err := ledger.ReadFile(path)
	if err != nil {
		return formatter.fail(ExitCommandError, err)
	}
	if opts.LabelChains {
		if records, err = ledger.Relabel(records, ledger.Options{ChainInLabels: true}); err != nil {
			return formatter.fail(ExitCommandError, err)
		}
	}
	formatter.VerboseLog("Read %d record(s) from %s", len(records), path)
	return formatter.Success(LedgerListing{Records: records})
}
