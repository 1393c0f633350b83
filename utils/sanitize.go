package utils

import "github.com/microcosm-cc/bluemonday"

var (
	sanitizer       = bluemonday.UGCPolicy()
	strictSanitizer = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// SanitizeStrict strips every tag. Used for plain text fields such as titles
// and contact form input.
func SanitizeStrict(input string) string {
	return strictSanitizer.Sanitize(input)
}
