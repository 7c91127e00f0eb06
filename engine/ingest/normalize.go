package ingest

import (
	"regexp"
	"strings"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(` +`)
)

// Normalize collapses runs of 3+ newlines to exactly 2 (keeping paragraph
// boundaries), trims whitespace around every line, collapses space runs to a
// single space, and trims the whole text. Pure function.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = multiNewline.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")

	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
