package store

import (
	"context"

	"rxcred/internal/credential/models"
	id "rxcred/pkg/domain"
)

// Store persists sealed credential artifacts.
//
// Error Contract:
// - FindByID returns sentinel.ErrNotFound when no credential exists
// - Save returns sentinel.ErrConflict on a duplicate credential ID
// - Delete of an absent credential is a no-op
// - Other failures are wrapped infrastructure errors
type Store interface {
	Save(ctx context.Context, cred *models.Credential) error
	FindByID(ctx context.Context, credID id.CredentialID) (*models.Credential, error)
	FindByPrescription(ctx context.Context, rxID id.PrescriptionID) (*models.Credential, error)
	Delete(ctx context.Context, credID id.CredentialID) error
}
