// Package safety scans free-text input for PII-shaped spans and
// manipulation-indicative wording. Detection is a single pass over a fixed
// table of compiled patterns; no I/O, deterministic for a given input.
package safety

import (
	"regexp"

	"github.com/fairyhunter13/rehearsal-coach/internal/domain"
)

// RedactionMarker replaces every PII match in the sanitized text.
const RedactionMarker = "[마스킹됨]"

// maxInputRunes bounds both matching cost and output size. Applied before
// any pattern runs.
const maxInputRunes = 1200

// piiPatterns run in order; each match is fully replaced by RedactionMarker.
var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`),
	regexp.MustCompile(`\b01[0-9][-\s]?\d{3,4}[-\s]?\d{4}\b`),
	regexp.MustCompile(`\b\d{2,3}[-\s]?\d{3,4}[-\s]?\d{4}\b`),
	regexp.MustCompile(`(?i)(실명|학교|연락처|주소|카카오톡|인스타|instagram)`),
}

// manipulationPattern only flags; it never redacts.
var manipulationPattern = regexp.MustCompile(`가스라이팅|복수|협박|조종|기만`)

// Sanitize truncates text to 1200 characters, masks every PII-shaped match,
// and tags the result. Flags are deduplicated. The marker is longer than
// some of the spans it replaces, so the bound is re-applied after redaction;
// the output is never longer than 1200 runes either.
func Sanitize(text string) domain.SanitizedMessage {
	text = clamp(text)

	var flags []string
	for _, p := range piiPatterns {
		if p.MatchString(text) {
			flags = appendFlag(flags, domain.FlagPossiblePII)
			text = p.ReplaceAllString(text, RedactionMarker)
		}
	}
	text = clamp(text)
	if manipulationPattern.MatchString(text) {
		flags = appendFlag(flags, domain.FlagManipulationRisk)
	}

	return domain.SanitizedMessage{Text: text, Flags: flags}
}

func clamp(text string) string {
	if r := []rune(text); len(r) > maxInputRunes {
		return string(r[:maxInputRunes])
	}
	return text
}

func appendFlag(flags []string, f string) []string {
	for _, have := range flags {
		if have == f {
			return flags
		}
	}
	return append(flags, f)
}
