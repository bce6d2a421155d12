package revocation

import (
	"context"
	"testing"
	"time"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRegistry_RevokeAndCheck(t *testing.T) {
	registry := NewInMemory()
	ctx := context.Background()
	credID := id.NewCredentialID()

	revoked, err := registry.IsRevoked(ctx, credID)
	require.NoError(t, err)
	assert.False(t, revoked)

	err = registry.Revoke(ctx, Entry{
		CredentialID: credID,
		Reason:       "prescribing error",
		RevokedAt:    time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	revoked, err = registry.IsRevoked(ctx, credID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestInMemoryRegistry_RevokeIsIdempotent(t *testing.T) {
	registry := NewInMemory()
	ctx := context.Background()
	credID := id.NewCredentialID()
	first := Entry{
		CredentialID: credID,
		Reason:       "prescribing error",
		RevokedAt:    time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC),
	}

	require.NoError(t, registry.Revoke(ctx, first))
	require.NoError(t, registry.Revoke(ctx, Entry{
		CredentialID: credID,
		Reason:       "different reason",
		RevokedAt:    time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC),
	}))

	// The original entry wins.
	entries := registry.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, first.Reason, entries[0].Reason)
	assert.Equal(t, first.RevokedAt, entries[0].RevokedAt)
}

func TestInMemoryRegistry_NilCredentialID(t *testing.T) {
	registry := NewInMemory()

	err := registry.Revoke(context.Background(), Entry{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestInMemoryRegistry_ConcurrentRevokes(t *testing.T) {
	registry := NewInMemory()
	credID := id.NewCredentialID()

	result := testutil.RunConcurrent(10, func(_ int) error {
		return registry.Revoke(context.Background(), Entry{
			CredentialID: credID,
			Reason:       "prescribing error",
			RevokedAt:    time.Now(),
		})
	})

	assert.Equal(t, int32(10), result.Successes)
	assert.Equal(t, int32(0), result.Errors)
	assert.Len(t, registry.Entries(), 1)
}
