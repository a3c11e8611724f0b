package versioning

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// computeDelta returns a unified diff transforming oldContent into
// newContent.
func computeDelta(oldContent, newContent string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: "base",
		ToFile:   "new",
		Context:  0,
	}
	return difflib.GetUnifiedDiffString(diff)
}

// applyDelta reconstructs content by applying a unified diff produced by
// computeDelta to base. go-difflib only produces diffs; it has no patch
// applier, so this is a small hand-rolled one grounded in the standard
// unified-diff hunk format ("@@ -l,s +l,s @@").
func applyDelta(base, delta string) (string, error) {
	baseLines := difflib.SplitLines(base)
	var out []string
	cursor := 0 // 0-indexed position in baseLines already emitted

	scanner := bufio.NewScanner(strings.NewReader(delta))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") {
			i++
			continue
		}
		if strings.HasPrefix(line, "@@") {
			oldStart, oldLen, err := parseHunkHeader(line)
			if err != nil {
				return "", err
			}
			// Copy unchanged lines up to the hunk start. A zero-length
			// old range ("-N,0") names the line BEFORE a pure insertion,
			// not the first affected line.
			target := oldStart - 1
			if oldLen == 0 {
				target = oldStart
			}
			for cursor < target && cursor < len(baseLines) {
				out = append(out, baseLines[cursor])
				cursor++
			}
			i++
			for i < len(lines) && !strings.HasPrefix(lines[i], "@@") {
				hl := lines[i]
				switch {
				case strings.HasPrefix(hl, "-"):
					cursor++
				case strings.HasPrefix(hl, "+"):
					out = append(out, strings.TrimPrefix(hl, "+")+"\n")
				case strings.HasPrefix(hl, " "):
					out = append(out, strings.TrimPrefix(hl, " ")+"\n")
					cursor++
				}
				i++
			}
			continue
		}
		i++
	}
	for cursor < len(baseLines) {
		out = append(out, baseLines[cursor])
		cursor++
	}

	// SplitLines appends one artificial trailing newline to both sides of
	// the diff, so a faithful reconstruction always carries exactly one
	// extra "\n".
	result := strings.Join(out, "")
	return strings.TrimSuffix(result, "\n"), nil
}

// parseHunkHeader parses "@@ -oldStart,oldLen +newStart,newLen @@" and
// returns oldStart (1-indexed) and oldLen (1 when the header omits it).
func parseHunkHeader(header string) (oldStart, oldLen int, err error) {
	parts := strings.Fields(header)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("malformed hunk header: %q", header)
	}
	oldSpec := strings.TrimPrefix(parts[1], "-")
	nums := strings.SplitN(oldSpec, ",", 2)
	oldStart, err = strconv.Atoi(nums[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed hunk header %q: %w", header, err)
	}
	if len(nums) > 1 {
		oldLen, _ = strconv.Atoi(nums[1])
	} else {
		oldLen = 1
	}
	return oldStart, oldLen, nil
}
