// Package resultparse extracts structured grading lines from simulator output.
//
// The convention is the only wire format the grader understands:
//
//	RESULT: <test-name> <PASS|FAIL> [key=value ...]
//
// FAIL lines conventionally carry expected=<v> got=<v> pairs. Anything not
// starting with the marker (banners, $display noise, timing messages) is
// ignored. A line that carries the marker but no recognizable status token is
// recorded as a FAIL flagged Malformed, never silently dropped, so buggy
// testbenches cannot inflate a pass rate.
package resultparse

import (
	"bufio"
	"strings"

	"hdlgrade/internal/grader/model"
)

// DefaultMarker is the line prefix grading testbenches must emit.
const DefaultMarker = "RESULT:"

// Parser scans run output for structured grading lines.
type Parser struct {
	marker string
}

// New creates a parser for the given marker token (empty selects the default).
func New(marker string) *Parser {
	if marker == "" {
		marker = DefaultMarker
	}
	return &Parser{marker: marker}
}

// Parse performs a single linear scan over the output. The returned sequence
// preserves emission order and is not deduplicated; an empty sequence means no
// structured lines were observed at all.
func (p *Parser) Parse(output string) []model.TestOutcome {
	var outcomes []model.TestOutcome

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, p.marker) {
			continue
		}
		outcomes = append(outcomes, p.parseLine(line))
	}
	return outcomes
}

func (p *Parser) parseLine(line string) model.TestOutcome {
	rest := strings.TrimSpace(strings.TrimPrefix(line, p.marker))
	fields := strings.Fields(rest)

	outcome := model.TestOutcome{Raw: line, Status: model.OutcomeFail}
	if len(fields) == 0 {
		outcome.Name = "(unparseable)"
		outcome.Malformed = true
		return outcome
	}
	outcome.Name = fields[0]
	if len(fields) < 2 {
		outcome.Malformed = true
		return outcome
	}

	switch fields[1] {
	case string(model.OutcomePass):
		outcome.Status = model.OutcomePass
	case string(model.OutcomeFail):
		outcome.Status = model.OutcomeFail
	default:
		outcome.Malformed = true
		return outcome
	}

	for _, field := range fields[2:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "expected":
			outcome.Expected = value
		case "got":
			outcome.Got = value
		}
	}
	return outcome
}

// CountMalformed returns how many outcomes were flagged malformed.
func CountMalformed(outcomes []model.TestOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Malformed {
			n++
		}
	}
	return n
}
