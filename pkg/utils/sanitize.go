package utils

import (
	"errors"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Message length limit. Anything longer is rejected, not truncated, so the
// client knows the message was not stored.
const MaxMessageLength = 2000

// Dangerous patterns for XSS prevention
var (
	scriptTagRegex = regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`)
	onEventRegex   = regexp.MustCompile(`(?i)\s+on\w+\s*=`)
)

// SanitizeMessageContent cleans and validates message text.
// Returns the sanitized content or an error if nothing usable remains.
func SanitizeMessageContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.New("message cannot be empty")
	}

	if utf8.RuneCountInString(content) > MaxMessageLength {
		return "", errors.New("message exceeds maximum length")
	}

	// Remove script tags
	content = scriptTagRegex.ReplaceAllString(content, "")

	// Remove inline event handlers (onclick, onload, etc.)
	content = onEventRegex.ReplaceAllString(content, " ")

	// Escape HTML entities to prevent XSS
	content = html.EscapeString(content)

	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("message cannot be empty after sanitization")
	}

	return content, nil
}

// EscapeSQLWildcards escapes SQL LIKE/ILIKE wildcard characters so user input
// can be embedded in pattern queries.
func EscapeSQLWildcards(input string) string {
	input = strings.ReplaceAll(input, "\\", "\\\\")
	input = strings.ReplaceAll(input, "%", "\\%")
	input = strings.ReplaceAll(input, "_", "\\_")
	return input
}

// SanitizeSearchQuery prepares a search string for safe ILIKE usage
func SanitizeSearchQuery(input string) string {
	input = strings.TrimSpace(input)
	if len(input) > 100 {
		input = input[:100]
	}
	input = EscapeSQLWildcards(input)
	return "%" + input + "%"
}

// SanitizeProfileField escapes HTML in short profile text (name, bio) and
// caps it at maxLen runes.
func SanitizeProfileField(input string, maxLen int) string {
	input = strings.TrimSpace(input)
	if utf8.RuneCountInString(input) > maxLen {
		runes := []rune(input)
		input = string(runes[:maxLen])
	}
	return html.EscapeString(input)
}
