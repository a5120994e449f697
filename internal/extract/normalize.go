package extract

import (
	"regexp"
	"strings"
)

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reNoise      = regexp.MustCompile(`[^\w\s.\-/]`)
)

// Normalize cleans raw OCR output for field matching: collapse whitespace
// runs to single spaces, strip characters that never appear in identity
// document fields, and trim.
func Normalize(raw string) string {
	s := reNoise.ReplaceAllString(raw, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
