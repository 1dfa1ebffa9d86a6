// Package diff compares two code texts line by line.
//
// Positional is the default engine: lines at the same index are compared
// directly and surplus lines on either side are reported as insertions or
// deletions. It does not realign after an inserted or deleted line, so every
// following line shows up as Modified. Aligned is the drop-in alternative
// with the same output shape when a minimal alignment is wanted.
package diff

import (
	"fmt"
	"strings"
)

// Kind classifies one compared line.
type Kind string

const (
	Added     Kind = "added"
	Removed   Kind = "removed"
	Modified  Kind = "modified"
	Unchanged Kind = "unchanged"
)

// Line is one diff record. From is nil for Added lines and To is nil for
// Removed lines; both are set for Modified and Unchanged.
type Line struct {
	Number int     `json:"number"`
	Kind   Kind    `json:"kind"`
	From   *string `json:"from,omitempty"`
	To     *string `json:"to,omitempty"`
}

// Func computes the line records between two texts. Implementations must be
// pure: no I/O, no shared state.
type Func func(from, to string) []Line

// Stats counts records per kind.
type Stats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Strategy names a diff engine in configuration.
type Strategy string

const (
	StrategyPositional Strategy = "positional"
	StrategyAligned    Strategy = "aligned"
)

// ForStrategy returns the engine for a configured strategy name. The empty
// name selects Positional.
func ForStrategy(s Strategy) (Func, error) {
	switch s {
	case "", StrategyPositional:
		return Positional, nil
	case StrategyAligned:
		return Aligned, nil
	default:
		return nil, fmt.Errorf("diff: unknown strategy %q", s)
	}
}

// Positional compares from and to index by index. The result has exactly
// max(lines(from), lines(to)) records, numbered 1..n.
func Positional(from, to string) []Line {
	a, b := splitLines(from), splitLines(to)

	n := max(len(a), len(b))
	out := make([]Line, 0, n)
	for i := 0; i < n; i++ {
		line := Line{Number: i + 1}
		switch {
		case i >= len(a):
			line.Kind = Added
			line.To = &b[i]
		case i >= len(b):
			line.Kind = Removed
			line.From = &a[i]
		case a[i] == b[i]:
			line.Kind = Unchanged
			line.From, line.To = &a[i], &b[i]
		default:
			line.Kind = Modified
			line.From, line.To = &a[i], &b[i]
		}
		out = append(out, line)
	}
	return out
}

// Summarize counts the records of each kind.
func Summarize(lines []Line) Stats {
	var s Stats
	for _, l := range lines {
		switch l.Kind {
		case Added:
			s.Added++
		case Removed:
			s.Removed++
		case Modified:
			s.Modified++
		case Unchanged:
			s.Unchanged++
		}
	}
	return s
}

// Changed reports whether any record differs between the two sides.
func (s Stats) Changed() bool {
	return s.Added+s.Removed+s.Modified > 0
}

// splitLines splits on "\n". The empty text has no lines; a trailing newline
// yields a final empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
