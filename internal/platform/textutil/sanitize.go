package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
)

// PlainText strips all markup and trims surrounding whitespace. Used for names and titles.
func PlainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
}

// RichText keeps safe formatting markup and removes scripts, handlers and unsafe links.
func RichText(value string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(value))
}

// Fold returns the case-folded form of value for case-insensitive comparisons.
func Fold(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}

// ContainsFold reports whether needle appears in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	needle = Fold(needle)
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), needle)
}
