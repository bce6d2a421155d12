package agent

import (
	"context"
	"encoding/base64"
	"testing"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuerDID = id.DID("did:web:hospital.example:dr-jones")

func TestAgent_SignAndVerify(t *testing.T) {
	a := New()
	require.NoError(t, a.Register(issuerDID))

	payload := []byte(`{"issuer":"did:web:hospital.example:dr-jones"}`)
	sig, err := a.Sign(context.Background(), payload, issuerDID)
	require.NoError(t, err)

	proofValue := base64.StdEncoding.EncodeToString(sig)
	ok, err := a.VerifySignature(context.Background(), payload, issuerDID.KeyFragment(), proofValue)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAgent_VerifyRejectsTamperedPayload(t *testing.T) {
	a := New()
	require.NoError(t, a.Register(issuerDID))

	payload := []byte(`{"quantity":21}`)
	sig, err := a.Sign(context.Background(), payload, issuerDID)
	require.NoError(t, err)

	proofValue := base64.StdEncoding.EncodeToString(sig)
	ok, err := a.VerifySignature(context.Background(), []byte(`{"quantity":42}`), issuerDID.KeyFragment(), proofValue)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAgent_SignUnknownKey(t *testing.T) {
	a := New()
	_, err := a.Sign(context.Background(), []byte("payload"), issuerDID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSigningUnavailable))
}

func TestAgent_RegisterIdempotent(t *testing.T) {
	a := New()
	require.NoError(t, a.Register(issuerDID))
	before, ok := a.PublicKey(issuerDID)
	require.True(t, ok)

	require.NoError(t, a.Register(issuerDID))
	after, ok := a.PublicKey(issuerDID)
	require.True(t, ok)
	assert.Equal(t, before, after, "re-registering must keep the existing key")
}

func TestAgent_VerifyMalformedInputs(t *testing.T) {
	a := New()
	require.NoError(t, a.Register(issuerDID))
	payload := []byte("payload")

	cases := []struct {
		name               string
		verificationMethod string
		proofValue         string
	}{
		{"missing key fragment", string(issuerDID), "c2ln"},
		{"unknown did", "did:web:other.example#key-1", "c2ln"},
		{"not base64", issuerDID.KeyFragment(), "%%%"},
		{"wrong signature length", issuerDID.KeyFragment(), base64.StdEncoding.EncodeToString([]byte("short"))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := a.VerifySignature(context.Background(), payload, tc.verificationMethod, tc.proofValue)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
