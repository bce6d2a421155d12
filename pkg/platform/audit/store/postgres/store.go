package postgres

import (
	"context"
	"database/sql"
	"fmt"

	id "rxcred/pkg/domain"
	audit "rxcred/pkg/platform/audit"

	"github.com/google/uuid"
)

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event into the audit_events table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, timestamp, prescription_id, credential_id,
			actor, subject, action, decision, reason, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	eventID := uuid.New()
	var rxID *uuid.UUID
	if !event.PrescriptionID.IsNil() {
		pid := uuid.UUID(event.PrescriptionID)
		rxID = &pid
	}
	var credID *string
	if !event.CredentialID.IsNil() {
		c := event.CredentialID.String()
		credID = &c
	}

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		event.Timestamp,
		rxID,
		credID,
		event.Actor,
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByPrescription returns events for a specific prescription.
func (s *Store) ListByPrescription(ctx context.Context, rxID id.PrescriptionID) ([]audit.Event, error) {
	query := `
		SELECT timestamp, prescription_id, credential_id,
			   actor, subject, action, decision, reason, request_id
		FROM audit_events
		WHERE prescription_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(rxID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT timestamp, prescription_id, credential_id,
			   actor, subject, action, decision, reason, request_id
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// scanEvents scans multiple rows into audit.Event slice.
func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event          audit.Event
			rxIDNullable   *uuid.UUID
			credIDNullable *string
		)
		if err := rows.Scan(
			&event.Timestamp,
			&rxIDNullable,
			&credIDNullable,
			&event.Actor,
			&event.Subject,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if rxIDNullable != nil {
			event.PrescriptionID = id.PrescriptionID(*rxIDNullable)
		}
		if credIDNullable != nil {
			parsed, err := id.ParseCredentialID(*credIDNullable)
			if err == nil {
				event.CredentialID = parsed
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
