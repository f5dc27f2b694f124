// Package matcher implements keyword matching for Reddit posts.
package matcher

import "strings"

// Normalize produces the lower-cased concatenation of a post's title
// and body, the form every keyword check runs against.
func Normalize(title, body string) string {
	return strings.ToLower(title + " " + body)
}

// Match returns the subset of keywords that occur as case-insensitive
// substrings of text, preserving the configured keyword order. An
// empty result means the post is of no interest.
func Match(text string, keywords []string) []string {
	text = strings.ToLower(text)

	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}
