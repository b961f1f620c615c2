package export

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackSlug = "hackathon"

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases title, folds accents, collapses everything outside
// [a-z0-9] into single dashes and trims them from the ends.
func Slug(title string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, title)
	if err != nil {
		folded = title
	}
	return strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(folded), "-"), "-")
}

// Filename is the attachment name for an event's export.
func Filename(title string) string {
	slug := Slug(title)
	if slug == "" {
		slug = fallbackSlug
	}
	return "results-" + slug + ".csv"
}
