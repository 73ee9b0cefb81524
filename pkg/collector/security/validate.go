package security

import (
	"regexp"
	"strings"

	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
)

var (
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
)

// MaxLength returns an InputValidationError if s exceeds max runes.
func MaxLength(field, s string, max int) error {
	if len([]rune(s)) > max {
		return cerrors.InputValidation(field+" exceeds maximum length", nil).
			WithContext("field", field, "max", max)
	}
	return nil
}

// IsEmail reports whether s has the shape of an email address. This
// is a shape check, not a deliverability check.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsDomain reports whether s has the shape of a DNS domain name.
func IsDomain(s string) bool {
	return domainPattern.MatchString(s)
}

// frontmatterEscaper quotes characters that would otherwise break a
// YAML scalar or let Markdown content leak out of the frontmatter
// block it's embedded in.
var frontmatterEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", "",
)

// SanitizeForFrontmatter escapes a string for safe embedding as a
// double-quoted YAML scalar in a frontmatter block.
func SanitizeForFrontmatter(s string) string {
	return frontmatterEscaper.Replace(s)
}
