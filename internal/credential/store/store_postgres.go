package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rxcred/internal/credential/canonical"
	"rxcred/internal/credential/models"
	id "rxcred/pkg/domain"
	"rxcred/pkg/platform/sentinel"

	"github.com/google/uuid"
)

// PostgresStore persists sealed credentials in PostgreSQL. The canonical
// document is the artifact of record; indexed columns exist only for lookup.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred == nil {
		return fmt.Errorf("credential is required")
	}
	credID, err := cred.CredentialID()
	if err != nil {
		return err
	}
	data, err := canonical.Serialize(cred)
	if err != nil {
		return err
	}
	rxID, err := id.ParsePrescriptionID(cred.CredentialSubject.Prescription.PrescriptionID)
	if err != nil {
		return fmt.Errorf("credential carries an invalid prescription id: %w", err)
	}

	query := `
		INSERT INTO credentials (id, prescription_id, issuer_did, subject_did, document)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`
	var stored string
	err = s.db.QueryRowContext(ctx, query,
		credID.String(),
		uuid.UUID(rxID),
		cred.Issuer,
		cred.CredentialSubject.ID,
		data,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, credID id.CredentialID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE id = $1`,
		credID.String(),
	)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, credID id.CredentialID) (*models.Credential, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM credentials WHERE id = $1`,
		credID.String(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return canonical.Parse(data)
}

func (s *PostgresStore) FindByPrescription(ctx context.Context, rxID id.PrescriptionID) (*models.Credential, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM credentials WHERE prescription_id = $1`,
		uuid.UUID(rxID),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential by prescription: %w", err)
	}
	return canonical.Parse(data)
}
