package ratelimit

import (
	"regexp"
	"strings"
)

const maxIdentifierLength = 255

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9._@:-]+$`)

// ValidateIdentifier reports whether a caller identifier is safe to use as a
// store key. Rejected identifiers must be treated as a denied request, never
// passed through. The character allowlist plus the explicit comment-sequence
// check keep crafted identifiers out of the store script's keyspace.
func ValidateIdentifier(identifier string) bool {
	if identifier == "" || len(identifier) > maxIdentifierLength {
		return false
	}
	if strings.ContainsAny(identifier, "\r\n") {
		return false
	}
	// "--" starts a Lua comment; the allowlist permits single dashes.
	if strings.Contains(identifier, "--") {
		return false
	}
	return identifierPattern.MatchString(identifier)
}
