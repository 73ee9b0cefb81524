package security_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcoderx/corpusctl/pkg/collector/security"
)

func TestMaxLength(t *testing.T) {
	require.NoError(t, security.MaxLength("title", "short", 10))
	err := security.MaxLength("title", strings.Repeat("x", 20), 10)
	require.Error(t, err)
}

func TestIsEmailAndIsDomain(t *testing.T) {
	assert.True(t, security.IsEmail("user@example.com"))
	assert.False(t, security.IsEmail("not-an-email"))

	assert.True(t, security.IsDomain("example.com"))
	assert.False(t, security.IsDomain("not a domain"))
}

func TestSanitizeForFrontmatterEscapesQuotesAndNewlines(t *testing.T) {
	out := security.SanitizeForFrontmatter("he said \"hi\"\nnext line")
	assert.NotContains(t, out, "\n")
	assert.Contains(t, out, `\"`)
}
