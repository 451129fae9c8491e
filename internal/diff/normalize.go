// Package diff provides unified diff cleanup and application for LLM-produced
// patches.
package diff

import "strings"

// Normalize cleans a raw LLM-produced diff into strict patch-ready form. It
// removes markdown code fences, drops `--- file` / `+++ file` header pairs,
// and left-trims hunk metadata lines while leaving content lines untouched
// (a single leading space there marks an unchanged line). Normalize is pure
// and idempotent, and preserves a trailing newline iff the input had one.
func Normalize(raw string) string {
	lines := strings.Split(raw, "\n")

	// Pass 1: drop fence delimiter lines wherever they occur.
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), "```") {
			continue
		}
		kept = append(kept, line)
	}

	// Pass 2: drop adjacent `--- path` / `+++ path` file header pairs. The
	// match is on the left-trimmed forms so a pair survives at most one pass.
	processed := make([]string, 0, len(kept))
	for i := 0; i < len(kept); i++ {
		if i+1 < len(kept) && isRemoveFileHeader(kept[i]) && isAddFileHeader(kept[i+1]) {
			i++
			continue
		}
		processed = append(processed, kept[i])
	}

	// Pass 3: left-trim hunk metadata lines; content lines keep their
	// original spacing verbatim.
	for i, line := range processed {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "---") || strings.HasPrefix(trimmed, "+++") || strings.HasPrefix(trimmed, "@@") {
			processed[i] = trimmed
		}
	}

	cleaned := strings.Join(processed, "\n")
	if strings.HasSuffix(raw, "\n") && !strings.HasSuffix(cleaned, "\n") {
		cleaned += "\n"
	}
	if !strings.HasSuffix(raw, "\n") {
		cleaned = strings.TrimSuffix(cleaned, "\n")
	}
	return cleaned
}

// isRemoveFileHeader reports whether the left-trimmed line is a `--- <path>`
// file header (path or /dev/null, no embedded spaces in the first token).
func isRemoveFileHeader(line string) bool {
	return headerPath(strings.TrimLeft(line, " \t"), "--- ")
}

// isAddFileHeader reports whether the left-trimmed line is a `+++ <path>`
// file header.
func isAddFileHeader(line string) bool {
	return headerPath(strings.TrimLeft(line, " \t"), "+++ ")
}

func headerPath(line, marker string) bool {
	if !strings.HasPrefix(line, marker) {
		return false
	}
	rest := line[len(marker):]
	if rest == "" {
		return false
	}
	// The header must name a path-like token right after the marker.
	return rest[0] != ' ' && rest[0] != '\t'
}
