package versioning

import "github.com/pmezard/go-difflib/difflib"

// diffChanges expresses the line-level difference between old and new
// content as a flat change list.
func diffChanges(oldContent, newContent string) []Change {
	aLines := difflib.SplitLines(oldContent)
	bLines := difflib.SplitLines(newContent)
	matcher := difflib.NewMatcher(aLines, bLines)
	var out []Change
	for _, op := range matcher.GetOpCodes() {
		a := aLines[op.I1:op.I2]
		b := bLines[op.J1:op.J2]
		switch op.Tag {
		case 'e':
			for _, l := range a {
				out = append(out, Change{Op: "equal", Text: l})
			}
		case 'd':
			for _, l := range a {
				out = append(out, Change{Op: "delete", Text: l})
			}
		case 'i':
			for _, l := range b {
				out = append(out, Change{Op: "insert", Text: l})
			}
		case 'r':
			for _, l := range a {
				out = append(out, Change{Op: "delete", Text: l})
			}
			for _, l := range b {
				out = append(out, Change{Op: "insert", Text: l})
			}
		}
	}
	return out
}
