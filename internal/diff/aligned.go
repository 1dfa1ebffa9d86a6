package diff

import "github.com/pmezard/go-difflib/difflib"

// Aligned matches lines with difflib's longest-matching-block algorithm before
// classifying them, so a single inserted line is reported as one Added record
// instead of shifting everything after it. Replaced runs are paired up as
// Modified records; the surplus of the longer side becomes Removed or Added.
// Numbers are 1-based positions in the output.
//
// Unlike Positional, the output is not always max(lines(from), lines(to))
// long: a line dropped in one place and another added elsewhere are two
// records, so the length ranges from that maximum up to their sum. Every line
// of from appears exactly once as a From, every line of to once as a To.
func Aligned(from, to string) []Line {
	a, b := splitLines(from), splitLines(to)
	if len(a) == 0 || len(b) == 0 {
		return Positional(from, to)
	}

	out := make([]Line, 0, max(len(a), len(b)))
	emit := func(kind Kind, fromLine, toLine *string) {
		out = append(out, Line{Number: len(out) + 1, Kind: kind, From: fromLine, To: toLine})
	}

	m := difflib.NewMatcher(a, b)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for i, j := op.I1, op.J1; i < op.I2; i, j = i+1, j+1 {
				emit(Unchanged, &a[i], &b[j])
			}
		case 'r':
			i, j := op.I1, op.J1
			for ; i < op.I2 && j < op.J2; i, j = i+1, j+1 {
				emit(Modified, &a[i], &b[j])
			}
			for ; i < op.I2; i++ {
				emit(Removed, &a[i], nil)
			}
			for ; j < op.J2; j++ {
				emit(Added, nil, &b[j])
			}
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				emit(Removed, &a[i], nil)
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				emit(Added, nil, &b[j])
			}
		}
	}
	return out
}
