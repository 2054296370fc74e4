package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail trims, NFKC-normalizes and lowercases an email address so the
// same account is not addressed by visually identical but different strings.
func NormalizeEmail(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}
