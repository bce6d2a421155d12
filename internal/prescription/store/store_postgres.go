package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"rxcred/internal/prescription/models"
	id "rxcred/pkg/domain"
	"rxcred/pkg/platform/sentinel"

	"github.com/google/uuid"
)

// PostgresStore persists prescription records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed prescription store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("prescription record is required")
	}
	medications, err := json.Marshal(record.Medications)
	if err != nil {
		return fmt.Errorf("marshal medication lines: %w", err)
	}

	query := `
		INSERT INTO prescriptions (
			id, issuer_did, subject_did, medications,
			issued_at, expires_at, repeat_count, is_repeat,
			state, credential_id, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		ON CONFLICT (id) DO NOTHING
		RETURNING version
	`
	var version int
	err = s.db.QueryRowContext(ctx, query,
		uuid.UUID(record.ID),
		record.IssuerDID.String(),
		record.SubjectDID.String(),
		medications,
		record.IssuedAt,
		record.ExpiresAt,
		record.RepeatCount,
		record.IsRepeat,
		string(record.State),
		nullableCredentialID(record.CredentialID),
	).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save prescription: %w", err)
	}
	record.Version = version
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, rxID id.PrescriptionID) (*models.Record, error) {
	query := selectColumns + ` WHERE id = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, uuid.UUID(rxID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find prescription: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByCredentialID(ctx context.Context, credID id.CredentialID) (*models.Record, error) {
	if credID.IsNil() {
		return nil, sentinel.ErrNotFound
	}
	query := selectColumns + ` WHERE credential_id = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, credID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find prescription by credential: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectDID id.DID) ([]*models.Record, error) {
	query := selectColumns + ` WHERE subject_did = $1 ORDER BY issued_at DESC`
	rows, err := s.db.QueryContext(ctx, query, subjectDID.String())
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prescriptions: %w", err)
	}
	return records, nil
}

// UpdateState persists state and credential binding guarded by the version
// column. Concurrent writers race on the WHERE clause; the loser gets
// ErrConflict. Clinical columns are deliberately never touched here.
func (s *PostgresStore) UpdateState(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("prescription record is required")
	}
	query := `
		UPDATE prescriptions
		SET state = $1, credential_id = $2, version = version + 1, updated_at = now()
		WHERE id = $3 AND version = $4
		RETURNING version
	`
	var version int
	err := s.db.QueryRowContext(ctx, query,
		string(record.State),
		nullableCredentialID(record.CredentialID),
		uuid.UUID(record.ID),
		record.Version,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.classifyUpdateMiss(ctx, record.ID)
		}
		return fmt.Errorf("update prescription state: %w", err)
	}
	record.Version = version
	return nil
}

// classifyUpdateMiss distinguishes a missing row from a stale version.
func (s *PostgresStore) classifyUpdateMiss(ctx context.Context, rxID id.PrescriptionID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM prescriptions WHERE id = $1)`,
		uuid.UUID(rxID),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("classify update miss: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

const selectColumns = `
	SELECT id, issuer_did, subject_did, medications,
		   issued_at, expires_at, repeat_count, is_repeat,
		   state, credential_id, version, created_at, updated_at
	FROM prescriptions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		record      models.Record
		rxID        uuid.UUID
		issuerDID   string
		subjectDID  string
		medications []byte
		state       string
		credID      sql.NullString
	)
	if err := row.Scan(
		&rxID,
		&issuerDID,
		&subjectDID,
		&medications,
		&record.IssuedAt,
		&record.ExpiresAt,
		&record.RepeatCount,
		&record.IsRepeat,
		&state,
		&credID,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}

	record.ID = id.PrescriptionID(rxID)
	record.IssuerDID = id.DID(issuerDID)
	record.SubjectDID = id.DID(subjectDID)
	record.State = models.State(state)
	if err := json.Unmarshal(medications, &record.Medications); err != nil {
		return nil, fmt.Errorf("unmarshal medication lines: %w", err)
	}
	if credID.Valid {
		parsed, err := id.ParseCredentialID(credID.String)
		if err != nil {
			return nil, fmt.Errorf("parse stored credential id: %w", err)
		}
		record.CredentialID = parsed
	}
	return &record, nil
}

func nullableCredentialID(credID id.CredentialID) *string {
	if credID.IsNil() {
		return nil
	}
	s := credID.String()
	return &s
}
