package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)`)

// Hunk is a contiguous region of change within one file's diff.
type Hunk struct {
	Header   string
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []string
}

// ChangeUnit is the parsed diff for one file. Immutable once produced.
type ChangeUnit struct {
	Path        string
	ContentType string
	Hunks       []Hunk
	IsBinary    bool
	IsNew       bool
	IsDeleted   bool
}

// LineCount returns the total diff lines across all hunks.
func (u *ChangeUnit) LineCount() int {
	n := 0
	for _, h := range u.Hunks {
		n += h.LineCount()
	}
	return n
}

// MalformedDiffError reports a diff that cannot be parsed. It is terminal
// for the run: the orchestrator routes straight to the degraded path.
type MalformedDiffError struct {
	Reason string
}

func (e *MalformedDiffError) Error() string {
	return "malformed diff: " + e.Reason
}

// IsMalformedDiff reports whether err is a MalformedDiffError.
func IsMalformedDiff(err error) bool {
	var m *MalformedDiffError
	return errors.As(err, &m)
}

// Parse splits a raw unified diff into per-file ChangeUnits. Empty input
// yields an empty slice; non-empty input without a recognizable file
// header, or with an inconsistent hunk, is malformed.
func Parse(raw string) ([]ChangeUnit, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var units []ChangeUnit
	var current *ChangeUnit
	var hunk *Hunk

	flushHunk := func() {
		if current != nil && hunk != nil {
			current.Hunks = append(current.Hunks, *hunk)
		}
		hunk = nil
	}

	for lineNo, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git"):
			flushHunk()
			path := pathFromHeader(line)
			if path == "" {
				return nil, &MalformedDiffError{
					Reason: fmt.Sprintf("unparseable file header at line %d", lineNo+1),
				}
			}
			units = append(units, ChangeUnit{Path: path})
			current = &units[len(units)-1]

		case current == nil:
			// preamble before the first file header is tolerated

		case strings.HasPrefix(line, "Binary files"):
			current.IsBinary = true

		case strings.HasPrefix(line, "new file mode"):
			current.IsNew = true

		case strings.HasPrefix(line, "deleted file mode"):
			current.IsDeleted = true

		case strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ "):
			// file markers carry no information beyond the header

		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				return nil, &MalformedDiffError{
					Reason: fmt.Sprintf("bad hunk header at line %d: %q", lineNo+1, line),
				}
			}
			flushHunk()
			hunk = &Hunk{
				Header:   line,
				OldStart: atoiDefault(m[1], 0),
				OldCount: atoiDefault(m[2], 1),
				NewStart: atoiDefault(m[3], 0),
				NewCount: atoiDefault(m[4], 1),
			}

		case hunk != nil:
			hunk.Lines = append(hunk.Lines, line)
		}
	}
	flushHunk()

	if len(units) == 0 {
		return nil, &MalformedDiffError{Reason: "no file headers found"}
	}
	return units, nil
}

func pathFromHeader(line string) string {
	// "diff --git a/path b/path": take the b/ side so renames resolve
	// to the current name.
	idx := strings.Index(line, " b/")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+3:])
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// NewLineNumbers maps each added or context line in h to its line number
// in the new file. Removed lines and "\ No newline at end of file" markers
// carry no new-file number.
func (h *Hunk) NewLineNumbers() map[int]int {
	// index into h.Lines -> new-file line number
	nums := make(map[int]int)
	n := h.NewStart
	for i, line := range h.Lines {
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, `\`) {
			continue
		}
		nums[i] = n
		n++
	}
	return nums
}

// LineCount returns the number of added, removed, and context lines in the
// hunk. Marker lines like "\ No newline at end of file" are not counted.
func (h *Hunk) LineCount() int {
	n := 0
	for _, line := range h.Lines {
		if strings.HasPrefix(line, `\`) {
			continue
		}
		n++
	}
	return n
}

// ContainsLine reports whether a new-file line number falls inside the
// hunk's new range.
func (h *Hunk) ContainsLine(line int) bool {
	return line >= h.NewStart && line < h.NewStart+h.NewCount
}
