// Package sourcemap slices raw rules text into lines and remembers where
// each top-level YAML document item begins, so later stages can attach
// human-readable context to errors.
package sourcemap

import "strings"

// Map is the source map for one rules document.
type Map struct {
	// Lines holds every non-empty line of the input, in order, with
	// trailing newlines stripped.
	Lines []string

	// Indices holds the 1-based line index (into Lines) at which each
	// top-level document item begins, plus a sentinel final entry equal to
	// len(Lines)+1.
	Indices []int
}

// Build scans raw and produces its Map.
func Build(raw string) Map {
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimRight(l, "\r")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}

	var indices []int
	for i, l := range lines {
		if strings.HasPrefix(l, "---") {
			continue
		}
		if len(l) > 0 && l[0] == '-' {
			indices = append(indices, i+1)
		}
	}
	indices = append(indices, len(lines)+1)

	return Map{Lines: lines, Indices: indices}
}

// Slice reconstructs the original YAML text for the item starting at the
// 1-based line index r: lines[r-1:] up to (but excluding) the next line that
// is empty or starts a new item, with a trailing blank line appended.
func (m Map) Slice(r int) string {
	if r < 1 || r > len(m.Lines) {
		return "\n"
	}
	var b strings.Builder
	for i := r - 1; i < len(m.Lines); i++ {
		l := m.Lines[i]
		if i > r-1 && (l == "" || (len(l) > 0 && l[0] == '-')) {
			break
		}
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// FormatError renders the spec's standard error shape:
// "<message>\n---\n<slice>---".
func FormatError(message, slice string) string {
	return message + "\n---\n" + slice + "---"
}
