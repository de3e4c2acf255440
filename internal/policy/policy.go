// Package policy validates and sanitizes message content. The same policy is
// applied to outbound text before the local write and to inbound remote text
// before admission, so a compromised peer or transport cannot smuggle
// markup past the store.
package policy

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageChars is the message content limit in characters.
const MaxMessageChars = 1000

// ValidationError reports user-correctable bad input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var (
	scriptTagRegexp  = regexp.MustCompile(`(?i)</?script[^>]*>`)
	controlRegexp    = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
	whitespaceRegexp = regexp.MustCompile(`\s+`)
)

// Sanitize strips script tags and control characters, collapses internal
// whitespace and trims. Sanitize(Sanitize(x)) == Sanitize(x) for all x.
func Sanitize(raw string) string {
	s := raw
	// Removing a tag can splice surrounding text into a new tag, so strip
	// to a fixed point.
	for {
		next := scriptTagRegexp.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	s = controlRegexp.ReplaceAllString(s, "")
	s = whitespaceRegexp.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Enforce validates raw message text and returns its sanitized form.
// Empty-after-trim and over-limit content fail with a ValidationError.
func Enforce(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Reason: "message cannot be empty"}
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageChars {
		return "", &ValidationError{Reason: fmt.Sprintf("message must be %d characters or less", MaxMessageChars)}
	}
	sanitized := Sanitize(trimmed)
	if sanitized == "" {
		return "", &ValidationError{Reason: "message cannot be empty"}
	}
	return sanitized, nil
}
