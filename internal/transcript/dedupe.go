package transcript

import "strings"

// JoinSegments concatenates segment texts in order, dropping any segment that
// is textually identical (after trimming surrounding whitespace) to the
// immediately preceding kept segment. Speech engines re-emit the same segment
// verbatim across chunk boundaries; collapsing those runs here operates on
// the engine's own segment boundaries, unlike the free-form repetition rules
// of [Normalizer].
//
// Survivors are joined with no separator — the engine is responsible for
// natural spacing within each segment.
func JoinSegments(texts []string) string {
	var b strings.Builder
	prev := ""
	kept := false
	for _, t := range texts {
		trimmed := strings.TrimSpace(t)
		if kept && trimmed == prev {
			continue
		}
		b.WriteString(trimmed)
		prev = trimmed
		kept = true
	}
	return b.String()
}
