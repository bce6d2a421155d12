package models

import (
	"time"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
)

// Audit event decisions
const (
	AuditDecisionCreated   = "created"
	AuditDecisionDispensed = "dispensed"
	AuditDecisionRevoked   = "revoked"
	AuditDecisionExpired   = "expired"
	AuditDecisionDenied    = "denied"
)

// MedicationLine is a single medication order within a prescription.
type MedicationLine struct {
	Name         string `json:"name" validate:"required,notblank"`
	Strength     string `json:"strength"`
	Quantity     int    `json:"quantity" validate:"gt=0"`
	Instructions string `json:"instructions"`
}

// Record is the clinical payload behind a prescription credential.
//
// # Sealing Invariant
//
// Once a record reaches StateSigned its clinical fields (medication lines,
// DIDs, dates, repeat data) are frozen. Editing a signed prescription means
// creating a new record; the store layer never updates clinical columns after
// signing. Version supports optimistic concurrency on the state column.
type Record struct {
	ID           id.PrescriptionID
	IssuerDID    id.DID
	SubjectDID   id.DID
	Medications  []MedicationLine
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RepeatCount  int
	IsRepeat     bool
	State        State
	CredentialID id.CredentialID
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewRecord creates a draft Record with domain invariant checks.
func NewRecord(rxID id.PrescriptionID, issuerDID, subjectDID id.DID, medications []MedicationLine, issuedAt, expiresAt time.Time, repeatCount int, isRepeat bool) (*Record, error) {
	if rxID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "prescription ID required")
	}
	if issuerDID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issuer DID required")
	}
	if subjectDID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject DID required")
	}
	if len(medications) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one medication line required")
	}
	if issuedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "issue time required")
	}
	if !expiresAt.After(issuedAt) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiry must be after issue time")
	}
	if repeatCount < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "repeat count must not be negative")
	}
	return &Record{
		ID:          rxID,
		IssuerDID:   issuerDID,
		SubjectDID:  subjectDID,
		Medications: medications,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		RepeatCount: repeatCount,
		IsRepeat:    isRepeat,
		State:       StateDraft,
	}, nil
}

// Sealed reports whether the record has been bound to a signed credential.
func (r Record) Sealed() bool {
	return r.State != StateDraft
}

// Expired reports whether the record's validity window has passed.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
