package orchestrator

import "strings"

const sourcesPrefix = "[sources:"

// extractSources parses and strips the trailing citation marker
// "[sources: a; b]" from a reply. An absent or malformed marker leaves
// the reply untouched with no sources. Entries are deduplicated with
// order preserved.
func extractSources(reply string) (string, []string) {
	trimmed := strings.TrimRight(reply, " \t\r\n")
	if !strings.HasSuffix(trimmed, "]") {
		return reply, nil
	}
	start := strings.LastIndex(trimmed, "[")
	if start == -1 {
		return reply, nil
	}

	marker := trimmed[start:]
	if !strings.HasPrefix(strings.ToLower(marker), sourcesPrefix) {
		return reply, nil
	}

	inner := marker[len(sourcesPrefix) : len(marker)-1]
	var sources []string
	seen := make(map[string]bool)
	for _, entry := range strings.Split(inner, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" || seen[entry] {
			continue
		}
		seen[entry] = true
		sources = append(sources, entry)
	}

	stripped := strings.TrimRight(trimmed[:start], " \t\r\n")
	return stripped, sources
}
