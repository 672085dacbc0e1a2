// Package summary turns the raw output of a compiler driver run into a
// structured result.
package summary

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Outcome int

const (
	// OutcomeUnknown indicates the output contained no completion marker,
	// e.g. the driver was killed.
	OutcomeUnknown Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

var outcomes = []string{"Unknown", "Succeeded", "Failed"}

func (o Outcome) String() string {
	if int(o) < 0 || int(o) >= len(outcomes) {
		return outcomes[0]
	}

	return outcomes[o]
}

// Summary is the structured result of a driver run.
type Summary struct {
	Lines    int
	Errors   []string
	Warnings []string
	Outcome  Outcome
	Elapsed  time.Duration
}

var (
	errorLine   = regexp.MustCompile(`(?i)(^\s*error\s*:|:\s*error\b|\berror!)`)
	warningLine = regexp.MustCompile(`(?i)(^\s*warning\s*:|:\s*warning\b)`)
	failedLine  = regexp.MustCompile(`^\s*FAILED:`)
	elapsedLine = regexp.MustCompile(
		`(?i)elapsed time\s+(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`,
	)
)

const completeMarker = "Igor complete."

// Parse summarises driver output. It never fails; unrecognised output
// yields a Summary with OutcomeUnknown.
func Parse(text string) Summary {
	var s Summary

	if text == "" {
		return s
	}

	for line := range strings.Lines(text) {
		line = strings.TrimRight(line, "\n")
		s.Lines++

		switch {
		case failedLine.MatchString(line):
			s.Outcome = OutcomeFailed
		case strings.Contains(line, completeMarker):
			if s.Outcome != OutcomeFailed {
				s.Outcome = OutcomeSucceeded
			}
		case errorLine.MatchString(line):
			s.Errors = append(s.Errors, strings.TrimSpace(line))
		case warningLine.MatchString(line):
			s.Warnings = append(s.Warnings, strings.TrimSpace(line))
		}

		if m := elapsedLine.FindStringSubmatch(line); m != nil {
			s.Elapsed = parseElapsed(m[1], m[2], m[3])
		}
	}

	return s
}

func parseElapsed(hours, minutes, seconds string) time.Duration {
	h, _ := strconv.Atoi(hours)
	m, _ := strconv.Atoi(minutes)
	sec, _ := strconv.ParseFloat(seconds, 64)

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second))
}
