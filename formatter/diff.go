package formatter

import "strings"

// Colorize highlights a unified diff for terminal output. Headers and hunk
// markers are styled before the +/- body lines they resemble.
func Colorize(diff string) string {
	if diff == "" {
		return ""
	}
	lines := strings.SplitAfter(diff, "\n")
	var b strings.Builder
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			b.WriteString(fileStyle.Sprint(line))
		case strings.HasPrefix(line, "@@"):
			b.WriteString(hunkStyle.Sprint(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString(addStyle.Sprint(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(delStyle.Sprint(line))
		default:
			b.WriteString(line)
		}
	}
	return b.String()
}
