package strutil

import "strings"

// NormalizeLower trims surrounding whitespace and converts to lower case.
// Use for subcommands and other tokens where case is not significant.
func NormalizeLower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// TrimLine strips the spaces and line terminators the game wraps around each
// line. Tabs and other whitespace inside the line are preserved.
func TrimLine(raw string) string {
	return strings.Trim(raw, " \r\n")
}

// LeadingSpaces counts the indentation of a raw line. Line terminators left
// over from the previous read are skipped first; a tab counts as one column.
func LeadingSpaces(raw string) int {
	raw = strings.TrimLeft(raw, "\r\n")
	n := 0
	for n < len(raw) && (raw[n] == ' ' || raw[n] == '\t') {
		n++
	}
	return n
}

// After returns the text following the first sep in s, trimmed. When sep is
// absent the whole of s is returned trimmed.
func After(s, sep string) string {
	idx := strings.Index(s, sep)
	if idx < 0 {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[idx+len(sep):])
}
