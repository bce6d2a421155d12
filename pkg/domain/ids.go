// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "rxcred/pkg/domain-errors"
)

// PrescriptionID identifies a prescription record. The compiler prevents
// passing a PrescriptionID where a CredentialID is expected.
type PrescriptionID uuid.UUID

// NewPrescriptionID generates a random prescription ID.
func NewPrescriptionID() PrescriptionID {
	return PrescriptionID(uuid.New())
}

// ParsePrescriptionID validates a prescription ID string. Use at trust
// boundaries (handlers, API inputs).
func ParsePrescriptionID(s string) (PrescriptionID, error) {
	if s == "" {
		return PrescriptionID{}, dErrors.New(dErrors.CodeInvalidInput, "prescription ID cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return PrescriptionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid prescription ID format")
	}
	return PrescriptionID(id), nil
}

func (id PrescriptionID) String() string { return uuid.UUID(id).String() }
func (id PrescriptionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// CredentialID is the globally unique identifier minted when a credential is
// sealed. It is a URN so it can be embedded verbatim in the credential's `id`
// field and in URL-fallback QR payloads.
type CredentialID string

const credentialIDPrefix = "urn:uuid:"

// NewCredentialID mints a new credential ID.
func NewCredentialID() CredentialID {
	return CredentialID(credentialIDPrefix + uuid.NewString())
}

// ParseCredentialID validates and parses a credential ID string.
func ParseCredentialID(value string) (CredentialID, error) {
	if strings.TrimSpace(value) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential_id is required")
	}
	if !strings.HasPrefix(value, credentialIDPrefix) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential_id must be a urn:uuid URN")
	}
	if _, err := uuid.Parse(strings.TrimPrefix(value, credentialIDPrefix)); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid credential_id format")
	}
	return CredentialID(value), nil
}

func (id CredentialID) String() string { return string(id) }
func (id CredentialID) IsNil() bool    { return id == "" }
