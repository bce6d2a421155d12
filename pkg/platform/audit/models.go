package audit

import (
	"context"
	"time"

	id "rxcred/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp      time.Time
	PrescriptionID id.PrescriptionID
	CredentialID   id.CredentialID
	Actor          string // DID of the acting party when known
	Subject        string
	Action         string
	Decision       string
	Reason         string
	RequestID      string
}

type AuditEvent string

const (
	EventPrescriptionCreated   AuditEvent = "prescription_created"
	EventCredentialSigned      AuditEvent = "credential_signed"
	EventCredentialVerified    AuditEvent = "credential_verified"
	EventCredentialRejected    AuditEvent = "credential_rejected"
	EventPrescriptionActive    AuditEvent = "prescription_activated"
	EventPrescriptionDispensed AuditEvent = "prescription_dispensed"
	EventPrescriptionRevoked   AuditEvent = "prescription_revoked"
	EventPrescriptionExpired   AuditEvent = "prescription_expired"
	EventQREncoded             AuditEvent = "qr_encoded"
)

// Store persists audit events. Implemented by store/memory and store/postgres.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPrescription(ctx context.Context, rxID id.PrescriptionID) ([]Event, error)
}
