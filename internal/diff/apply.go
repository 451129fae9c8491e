package diff

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyError provides structured details for a patch that failed to apply.
// The Reason is human-readable and safe to surface to clients verbatim.
type ApplyError struct {
	Hunk   int // 1-indexed hunk number, 0 when the patch itself is malformed
	Reason string
}

func (e *ApplyError) Error() string {
	if e.Hunk == 0 {
		return e.Reason
	}
	return fmt.Sprintf("hunk %d: %s", e.Hunk, e.Reason)
}

// hunk is one parsed @@ block of a unified diff.
type hunk struct {
	oldStart int      // 1-indexed first line in the base text, 0 for pure insertion at top
	oldCount int
	lines    []string // raw body lines including their leading marker
}

// ApplyPatch applies a normalized unified diff against the base text and
// returns the transformed text. The diff is expected in the form produced by
// Normalize: no fences, no file header pairs, hunk headers at column zero.
// Failures return a *ApplyError carrying the mismatch reason.
func ApplyPatch(base, patch string) (string, error) {
	hunks, err := parseHunks(patch)
	if err != nil {
		return "", err
	}
	if len(hunks) == 0 {
		return "", &ApplyError{Reason: "no hunks found in diff"}
	}

	srcLines, hadTrailing := splitLines(base)

	var out []string
	cursor := 0 // next unconsumed line of srcLines

	for i, h := range hunks {
		oldBody := oldLines(h)

		var pos int
		if len(oldBody) == 0 {
			// Pure insertion: -l,0 inserts after line l of the base.
			pos = h.oldStart
			if pos < cursor {
				pos = cursor
			}
			if pos > len(srcLines) {
				return "", &ApplyError{Hunk: i + 1, Reason: fmt.Sprintf("insertion point %d beyond end of file (%d lines)", h.oldStart, len(srcLines))}
			}
		} else {
			pos, err = locateHunk(srcLines, oldBody, h.oldStart-1, cursor, i+1)
			if err != nil {
				return "", err
			}
		}

		out = append(out, srcLines[cursor:pos]...)
		for _, line := range h.lines {
			switch {
			case strings.HasPrefix(line, "+"):
				out = append(out, line[1:])
			case strings.HasPrefix(line, "-"):
				// dropped
			default:
				// context line; the leading space marker was consumed by oldLines
				out = append(out, contextText(line))
			}
		}
		cursor = pos + len(oldBody)
	}

	out = append(out, srcLines[cursor:]...)

	result := strings.Join(out, "\n")
	if hadTrailing {
		result += "\n"
	}
	return result, nil
}

// parseHunks splits the patch into hunks, validating headers as it goes.
func parseHunks(patch string) ([]hunk, error) {
	var hunks []hunk
	var current *hunk

	lines := strings.Split(strings.TrimSuffix(patch, "\n"), "\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "@@"):
			oldStart, oldCount, err := parseHunkHeader(line)
			if err != nil {
				return nil, &ApplyError{Hunk: len(hunks) + 1, Reason: err.Error()}
			}
			hunks = append(hunks, hunk{oldStart: oldStart, oldCount: oldCount})
			current = &hunks[len(hunks)-1]
		case strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ "):
			// stray file header left by the generator; ignore
		case current != nil:
			current.lines = append(current.lines, line)
		case strings.TrimSpace(line) == "":
			// leading blank line before the first hunk
		default:
			return nil, &ApplyError{Reason: fmt.Sprintf("unexpected content before first hunk header: %q", line)}
		}
	}

	for i := range hunks {
		// Trailing blank lines in the diff are not part of the hunk body.
		for len(hunks[i].lines) > 0 && hunks[i].lines[len(hunks[i].lines)-1] == "" {
			hunks[i].lines = hunks[i].lines[:len(hunks[i].lines)-1]
		}
	}
	return hunks, nil
}

// parseHunkHeader parses `@@ -l[,c] +l[,c] @@` and returns the old-side
// start line and count.
func parseHunkHeader(line string) (start, count int, err error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || !strings.HasPrefix(fields[1], "-") {
		return 0, 0, fmt.Errorf("malformed hunk header %q", line)
	}
	spec := strings.TrimPrefix(fields[1], "-")
	count = 1
	if idx := strings.Index(spec, ","); idx >= 0 {
		count, err = strconv.Atoi(spec[idx+1:])
		if err != nil {
			return 0, 0, fmt.Errorf("malformed hunk header %q", line)
		}
		spec = spec[:idx]
	}
	start, err = strconv.Atoi(spec)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed hunk header %q", line)
	}
	return start, count, nil
}

// oldLines extracts the base-side body of a hunk: context lines (leading
// space stripped) and removals.
func oldLines(h hunk) []string {
	var old []string
	for _, line := range h.lines {
		switch {
		case strings.HasPrefix(line, "+"):
		case strings.HasPrefix(line, "-"):
			old = append(old, line[1:])
		default:
			old = append(old, contextText(line))
		}
	}
	return old
}

// contextText strips the single leading space marker from a context line.
// An entirely empty line stands for an empty context line.
func contextText(line string) string {
	if strings.HasPrefix(line, " ") {
		return line[1:]
	}
	return line
}

// locateHunk finds where the hunk's base-side lines occur in the source.
// The position hinted by the hunk header is tried first, then a forward
// search from the first unconsumed line.
func locateHunk(srcLines, oldBody []string, hint, cursor, hunkNum int) (int, error) {
	if hint >= cursor && matchesAt(srcLines, oldBody, hint) {
		return hint, nil
	}
	for pos := cursor; pos+len(oldBody) <= len(srcLines); pos++ {
		if matchesAt(srcLines, oldBody, pos) {
			return pos, nil
		}
	}
	return 0, &ApplyError{
		Hunk:   hunkNum,
		Reason: fmt.Sprintf("context mismatch: could not find %q in the current file", oldBody[0]),
	}
}

func matchesAt(srcLines, oldBody []string, pos int) bool {
	if pos < 0 || pos+len(oldBody) > len(srcLines) {
		return false
	}
	for i, want := range oldBody {
		if srcLines[pos+i] != want {
			return false
		}
	}
	return true
}

// splitLines splits text into lines, reporting whether a trailing newline was
// present so it can be restored after patching.
func splitLines(text string) ([]string, bool) {
	if text == "" {
		return nil, false
	}
	hadTrailing := strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n"), hadTrailing
}
