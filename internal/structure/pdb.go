// Package structure reads the residue layout of PDB-format structure files:
// which chains exist and which residues each chain holds, in document order.
// Coordinates are not kept.
package structure

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jlingford/ddg-rosetta/internal/mutation"
	"github.com/jlingford/ddg-rosetta/internal/numbering"
)

// Residue is one residue of a chain.
type Residue struct {
	Name          string
	Number        int
	InsertionCode string
	Hetero        bool
}

// Chain is a chain of the first model.
type Chain struct {
	// ID is the chain identifier, mutation.NoChain when blank in the file.
	ID       string
	Residues []Residue
}

// Structure is the residue layout of the first model of a PDB file.
type Structure struct {
	Name string

	// Models is the number of models found in the file.
	Models int

	chains []*Chain
}

// Chains implements numbering.Structure.
func (s *Structure) Chains() []numbering.Chain {
	out := make([]numbering.Chain, len(s.chains))
	for i, c := range s.chains {
		ids := make([]numbering.ResidueID, len(c.Residues))
		for j, r := range c.Residues {
			ids[j] = numbering.ResidueID{Number: r.Number, InsertionCode: r.InsertionCode}
		}
		out[i] = numbering.Chain{ID: c.ID, Residues: ids}
	}
	return out
}

// Chain returns the chain with the given id, or nil.
func (s *Structure) Chain(id string) *Chain {
	for _, c := range s.chains {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// NumChains returns the number of chains in the first model.
func (s *Structure) NumChains() int {
	return len(s.chains)
}

// ReadPDB reads the PDB file at path.
func ReadPDB(path string) (*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open structure: %w", err)
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads ATOM and HETATM records of the first model. Consecutive
// records sharing chain, residue number and insertion code form one
// residue; chains appear in the order they are first seen.
func Parse(r io.Reader, name string) (*Structure, error) {
	s := &Structure{Name: name}
	byID := make(map[string]*Chain)

	type resKey struct {
		chain  string
		number int
		icode  string
	}
	var last resKey
	haveLast := false
	inFirstModel := true

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		record := strings.TrimSpace(field(line, 0, 6))

		switch record {
		case "MODEL":
			s.Models++
			inFirstModel = s.Models == 1
			continue
		case "ATOM", "HETATM":
		default:
			continue
		}
		if !inFirstModel {
			continue
		}
		if len(line) < 26 {
			return nil, &mutation.ParseError{File: name, Line: lineNo, Text: line, Reason: "truncated coordinate record"}
		}

		chainID := strings.TrimSpace(field(line, 21, 22))
		if chainID == "" {
			chainID = mutation.NoChain
		}
		num, err := strconv.Atoi(strings.TrimSpace(field(line, 22, 26)))
		if err != nil {
			return nil, &mutation.ParseError{File: name, Line: lineNo, Text: line, Reason: "invalid residue number"}
		}
		k := resKey{chain: chainID, number: num, icode: strings.TrimSpace(field(line, 26, 27))}
		if haveLast && k == last {
			continue
		}
		last, haveLast = k, true

		c, ok := byID[chainID]
		if !ok {
			c = &Chain{ID: chainID}
			byID[chainID] = c
			s.chains = append(s.chains, c)
		}
		c.Residues = append(c.Residues, Residue{
			Name:          strings.TrimSpace(field(line, 17, 20)),
			Number:        num,
			InsertionCode: k.icode,
			Hetero:        record == "HETATM",
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if s.Models == 0 {
		s.Models = 1
	}
	if len(s.chains) == 0 {
		return nil, &mutation.ParseError{File: name, Reason: "no ATOM or HETATM records"}
	}
	return s, nil
}

// CheckOptions controls which structures Check accepts.
type CheckOptions struct {
	AllowMultiChain bool
	AllowNoChainIDs bool
}

// Check validates a structure before it is handed to the engine:
// multi-model files are rejected, and multi-chain structures or missing
// chain ids unless allowed.
func Check(s *Structure, opts CheckOptions) error {
	if s.Models > 1 {
		return fmt.Errorf("%s: multi-model structures are not allowed (%d models)", s.Name, s.Models)
	}
	if !opts.AllowMultiChain && len(s.chains) > 1 {
		return fmt.Errorf("%s: multi-chain structures are not allowed (%d chains)", s.Name, len(s.chains))
	}
	if !opts.AllowNoChainIDs {
		for _, c := range s.chains {
			if c.ID == mutation.NoChain {
				return fmt.Errorf("%s: all chains must have a chain id", s.Name)
			}
		}
	}
	return nil
}

// field returns line[from:to], clipped to the line length.
func field(line string, from, to int) string {
	if from >= len(line) {
		return ""
	}
	if to > len(line) {
		to = len(line)
	}
	return line[from:to]
}
