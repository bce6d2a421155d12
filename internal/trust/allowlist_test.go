package trust

import (
	"context"
	"testing"

	id "rxcred/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowlist_TrustsListedIssuers(t *testing.T) {
	list := NewAllowlist([]string{
		"did:web:hospital.example:dr-jones",
		"did:web:clinic.example:dr-smith",
	})
	ctx := context.Background()

	trusted, err := list.IsTrusted(ctx, id.DID("did:web:hospital.example:dr-jones"))
	require.NoError(t, err)
	assert.True(t, trusted)

	trusted, err = list.IsTrusted(ctx, id.DID("did:web:unknown.example:stranger"))
	require.NoError(t, err)
	assert.False(t, trusted)
}

func TestAllowlist_SkipsInvalidDIDs(t *testing.T) {
	list := NewAllowlist([]string{
		"did:web:hospital.example:dr-jones",
		"not-a-did",
		"",
	})

	assert.Equal(t, 1, list.Len())
}

func TestAllowlist_ReplaceSwapsAtomically(t *testing.T) {
	list := NewAllowlist([]string{"did:web:hospital.example:dr-jones"})
	ctx := context.Background()

	list.Replace([]string{"did:web:clinic.example:dr-smith"})

	trusted, err := list.IsTrusted(ctx, id.DID("did:web:hospital.example:dr-jones"))
	require.NoError(t, err)
	assert.False(t, trusted, "replaced issuers must lose trust")

	trusted, err = list.IsTrusted(ctx, id.DID("did:web:clinic.example:dr-smith"))
	require.NoError(t, err)
	assert.True(t, trusted)
}

func TestAllowlist_AddRemove(t *testing.T) {
	list := NewAllowlist(nil)
	ctx := context.Background()
	issuer := id.DID("did:web:hospital.example:dr-jones")

	list.Add(issuer)
	trusted, err := list.IsTrusted(ctx, issuer)
	require.NoError(t, err)
	assert.True(t, trusted)

	list.Remove(issuer)
	trusted, err = list.IsTrusted(ctx, issuer)
	require.NoError(t, err)
	assert.False(t, trusted)
}
