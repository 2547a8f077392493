package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMessageContent(t *testing.T) {
	out, err := SanitizeMessageContent("hello")
	assert.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestSanitizeMessageContentStripsScripts(t *testing.T) {
	out, err := SanitizeMessageContent(`hey <script>alert("xss")</script> there`)
	assert.NoError(t, err)
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "alert")
}

func TestSanitizeMessageContentEscapesHTML(t *testing.T) {
	out, err := SanitizeMessageContent(`<b onclick=steal()>hi</b>`)
	assert.NoError(t, err)
	assert.NotContains(t, out, "<b")
	assert.NotContains(t, out, "onclick=")
}

func TestSanitizeMessageContentRejectsEmpty(t *testing.T) {
	_, err := SanitizeMessageContent("   ")
	assert.Error(t, err)

	// Nothing usable left after stripping
	_, err = SanitizeMessageContent("<script>evil()</script>")
	assert.Error(t, err)
}

func TestSanitizeMessageContentRejectsOverlong(t *testing.T) {
	_, err := SanitizeMessageContent(strings.Repeat("a", MaxMessageLength+1))
	assert.Error(t, err)

	out, err := SanitizeMessageContent(strings.Repeat("a", MaxMessageLength))
	assert.NoError(t, err)
	assert.Len(t, out, MaxMessageLength)
}

func TestEscapeSQLWildcards(t *testing.T) {
	assert.Equal(t, "100\\%", EscapeSQLWildcards("100%"))
	assert.Equal(t, "a\\_b", EscapeSQLWildcards("a_b"))
}

func TestSanitizeProfileFieldCapsLength(t *testing.T) {
	out := SanitizeProfileField(strings.Repeat("x", 100), 10)
	assert.Equal(t, strings.Repeat("x", 10), out)
}
