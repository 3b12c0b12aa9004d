package chat

import "strings"

// StripMarkup removes markdown noise the model tends to emit despite being
// told not to: bold/italic markers, heading prefixes, and code fences. Inline
// structure such as lists is left alone.
func StripMarkup(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))

	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}

		// Heading prefixes.
		for strings.HasPrefix(trimmed, "#") {
			trimmed = strings.TrimPrefix(trimmed, "#")
		}
		trimmed = strings.TrimLeft(trimmed, " ")

		trimmed = strings.ReplaceAll(trimmed, "**", "")
		trimmed = strings.ReplaceAll(trimmed, "__", "")

		out = append(out, trimmed)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
