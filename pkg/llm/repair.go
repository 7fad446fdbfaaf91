package llm

import (
	"regexp"
	"strings"
)

var trailingGarbage = regexp.MustCompile(`[,}]\s*[^{}\[\],]*$`)

// RepairJSON applies best-effort fixes for JSON the provider truncated
// or garbled under load. Steps, in order:
//
//  1. append a closing brace when the text does not end with one
//  2. replace trailing garbage after the last "," or "}" with "}"
//  3. truncate everything after the last "}"
//  4. drop lines without a ":" (truncated key/value lines), then
//     truncate after the last "}" again
//
// The caller revalidates once; this is a salvage, not a guarantee.
func RepairJSON(text string) string {
	if !strings.HasSuffix(strings.TrimSpace(text), "}") {
		text += "}"
	}

	text = trailingGarbage.ReplaceAllString(text, "}")

	if i := strings.LastIndex(text, "}"); i > 0 {
		text = text[:i+1]
	}

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, ":") {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")
	if i := strings.LastIndex(text, "}"); i > 0 {
		text = text[:i+1]
	}
	return text
}
