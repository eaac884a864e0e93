package aggregate

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// TotalScore is the column holding the total energy of a structure.
const TotalScore = "total_score"

const (
	complexTag = "COMPLEX:"
	wtPrefix   = "WT_"
	mutPrefix  = "MUT_"
	roundTag   = "Round"
)

// ParseCartesian reads a cartesian_ddg output file. Each COMPLEX line
// holds the total score and the per-term scores of one round for the
// wild-type or the mutant; the round number identifies the structure.
// Other lines are ignored.
func ParseCartesian(r io.Reader, name string) ([]Row, error) {
	var rows []Row
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || fields[0] != complexTag {
			continue
		}
		row, err := parseCartesianLine(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no %s lines", name, strings.TrimSuffix(complexTag, ":"))
	}
	return rows, nil
}

// parseCartesianLine parses "RoundN: TAG: total term: value ...".
func parseCartesianLine(fields []string) (Row, error) {
	if len(fields) < 3 {
		return Row{}, fmt.Errorf("truncated line")
	}
	round, ok := strings.CutPrefix(strings.TrimSuffix(fields[0], ":"), roundTag)
	if !ok {
		return Row{}, fmt.Errorf("expected %sN:, found %q", roundTag, fields[0])
	}
	n, err := strconv.Atoi(round)
	if err != nil || n < 1 {
		return Row{}, fmt.Errorf("invalid round %q", fields[0])
	}

	var state State
	tag := strings.TrimSuffix(fields[1], ":")
	switch {
	case tag == wtPrefix:
		state = WildType
	case strings.HasPrefix(tag, mutPrefix):
		state = Mutant
	default:
		return Row{}, fmt.Errorf("unknown structure tag %q", tag)
	}

	total, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Row{}, fmt.Errorf("invalid total score %q", fields[2])
	}
	scores := map[string]float64{TotalScore: total}

	terms := fields[3:]
	if len(terms)%2 != 0 {
		return Row{}, fmt.Errorf("unpaired score term %q", terms[len(terms)-1])
	}
	for i := 0; i < len(terms); i += 2 {
		term, ok := strings.CutSuffix(terms[i], ":")
		if !ok {
			return Row{}, fmt.Errorf("expected term name, found %q", terms[i])
		}
		v, err := strconv.ParseFloat(terms[i+1], 64)
		if err != nil {
			return Row{}, fmt.Errorf("term %s: invalid score %q", term, terms[i+1])
		}
		scores[term] = v
	}
	return Row{Structure: n, State: state, Scores: scores}, nil
}

func readCartesian(mutation, path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &MissingOutputError{Mutation: mutation, Path: path, Err: err}
	}
	defer f.Close()
	rows, err := ParseCartesian(f, path)
	if err != nil {
		return nil, &MissingOutputError{Mutation: mutation, Path: path, Err: err}
	}
	return rows, nil
}
