package domain

import (
	"regexp"
	"strings"

	dErrors "rxcred/pkg/domain-errors"
)

// DID is a decentralized identifier string (e.g. "did:web:clinic.example").
// Only syntactic validity is checked here; resolution and key material are the
// signing provider's concern.
type DID string

// didPattern follows the DID core syntax: did:<method>:<method-specific-id>.
// The method-specific id permits percent-encoding and ":" path separators.
var didPattern = regexp.MustCompile(`^did:[a-z0-9]+:[A-Za-z0-9._:%-]*[A-Za-z0-9._-]$`)

// ParseDID validates a DID string at a trust boundary.
func ParseDID(s string) (DID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "DID cannot be empty")
	}
	if len(s) > 512 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "DID is too long")
	}
	if !didPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "malformed DID: want did:<method>:<id>")
	}
	return DID(s), nil
}

func (d DID) String() string { return string(d) }
func (d DID) IsNil() bool    { return d == "" }

// KeyFragment returns a verification method reference for the DID's first
// signing key, e.g. "did:web:clinic.example#key-1".
func (d DID) KeyFragment() string {
	return string(d) + "#key-1"
}

// Method returns the DID method name, or "" for a malformed DID.
func (d DID) Method() string {
	parts := strings.SplitN(string(d), ":", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}
