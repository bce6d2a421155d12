// Package revocation is the append-only revocation registry. Once a
// credential ID lands here it never leaves: there is no unrevoke operation.
package revocation

import (
	"context"
	"time"

	id "rxcred/pkg/domain"
)

// Entry is a single revocation record.
type Entry struct {
	CredentialID id.CredentialID
	Reason       string
	RevokedAt    time.Time
}

// Registry is the append-only revocation list.
//
// Error Contract:
//   - Revoke is idempotent: appending an already-revoked credential succeeds
//   - IsRevoked errors indicate the registry could not be consulted; callers
//     must fail closed, never treat an error as "not revoked"
type Registry interface {
	Revoke(ctx context.Context, entry Entry) error
	IsRevoked(ctx context.Context, credID id.CredentialID) (bool, error)
}
