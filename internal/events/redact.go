package events

import "regexp"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// Redact replaces email addresses with [EMAIL] and phone numbers with [PHONE].
// Provider errors can echo request text, so free-form reasons pass through
// here before they leave the process.
func Redact(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	return phoneRe.ReplaceAllString(text, "[PHONE]")
}
