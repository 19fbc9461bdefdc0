package parsers

import "strings"

// stripLineBOM removes a UTF-8 byte order mark at the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// isBlank reports whether the line holds only whitespace.
func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
