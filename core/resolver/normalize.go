package resolver

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9\s]`)
	siteNoise     = regexp.MustCompile(`^\d+\s+|\s*\(.*?\)| France`)
)

// foldDiacritics maps "Bézier" to "Bezier".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName lowercases name and drops diacritics, parenthetical suffixes
// and punctuation, collapsing runs of whitespace.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(foldDiacritics(name)))
	if n == "" {
		return ""
	}
	n = parenthetical.ReplaceAllString(n, "")
	n = nonAlnum.ReplaceAllString(n, " ")
	return strings.Join(strings.Fields(n), " ")
}

// CleanSiteName strips the numeric prefix, parenthetical suffix and country
// noise the maintenance platform adds to site names.
func CleanSiteName(name string) string {
	return strings.TrimSpace(siteNoise.ReplaceAllString(name, ""))
}
