package store

import (
	"context"

	"rxcred/internal/prescription/models"
	id "rxcred/pkg/domain"
)

// Store defines persistence for prescription records.
//
// Error Contract:
//   - Find methods return sentinel.ErrNotFound when no record exists
//   - Save returns sentinel.ErrConflict when the ID already exists
//   - UpdateState returns sentinel.ErrConflict when the record's version is
//     stale, which rejects concurrent writers (optimistic locking)
//   - Other failures are wrapped infrastructure errors
type Store interface {
	Save(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, rxID id.PrescriptionID) (*models.Record, error)
	FindByCredentialID(ctx context.Context, credID id.CredentialID) (*models.Record, error)
	ListBySubject(ctx context.Context, subjectDID id.DID) ([]*models.Record, error)
	UpdateState(ctx context.Context, record *models.Record) error
}
