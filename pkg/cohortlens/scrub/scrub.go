// Package scrub removes detectable PII patterns from extracted text.
package scrub

import "regexp"

var (
	emailRE = regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w+\b`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\-\s()]{7,}\d`)
	urlRE   = regexp.MustCompile(`\bhttps?://\S+\b`)
)

// Placeholders substituted for matched PII.
const (
	EmailPlaceholder = "[EMAIL]"
	PhonePlaceholder = "[PHONE]"
	URLPlaceholder   = "[URL]"
)

// PII replaces email addresses, phone-number-like digit runs and http(s) URLs
// with literal placeholders. Email is matched first so the phone pattern cannot
// claim the digit run inside an email-like token.
func PII(text string) string {
	t := emailRE.ReplaceAllString(text, EmailPlaceholder)
	t = phoneRE.ReplaceAllString(t, PhonePlaceholder)
	t = urlRE.ReplaceAllString(t, URLPlaceholder)
	return t
}
