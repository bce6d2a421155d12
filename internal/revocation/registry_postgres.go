package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
)

// PostgresRegistry persists the revocation list in PostgreSQL. The table is
// append-only: rows are never updated or deleted.
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed revocation registry.
func NewPostgres(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Revoke appends an entry. ON CONFLICT DO NOTHING makes re-revocation a
// no-op that preserves the original entry.
func (r *PostgresRegistry) Revoke(ctx context.Context, entry Entry) error {
	if entry.CredentialID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "credential id is required")
	}

	query := `
		INSERT INTO revocations (credential_id, reason, revoked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (credential_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.CredentialID.String(),
		entry.Reason,
		entry.RevokedAt,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeRegistryUnavailable, "append revocation")
	}
	return nil
}

// IsRevoked reports whether the credential appears in the list. Errors are
// surfaced so the verifier can fail closed.
func (r *PostgresRegistry) IsRevoked(ctx context.Context, credID id.CredentialID) (bool, error) {
	var found string
	err := r.db.QueryRowContext(ctx,
		`SELECT credential_id FROM revocations WHERE credential_id = $1`,
		credID.String(),
	).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeRegistryUnavailable, fmt.Sprintf("check revocation for %s", credID))
	}
	return true, nil
}

var _ Registry = (*PostgresRegistry)(nil)
