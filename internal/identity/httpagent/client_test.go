package httpagent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyRef = id.DID("did:web:hospital.example:dr-jones")

func TestClient_Sign(t *testing.T) {
	proof := []byte("signature-bytes-from-agent")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sign", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))

		var req struct {
			Payload string `json:"payload"`
			KeyRef  string `json:"key_ref"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, keyRef.String(), req.KeyRef)

		_ = json.NewEncoder(w).Encode(map[string]string{
			"proof": base64.StdEncoding.EncodeToString(proof),
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "secret")
	got, err := client.Sign(context.Background(), []byte("canonical"), keyRef)
	require.NoError(t, err)
	assert.Equal(t, proof, got)
}

func TestClient_SignAgentDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused

	client := New(srv.URL, "")
	_, err := client.Sign(context.Background(), []byte("canonical"), keyRef)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSigningUnavailable))
	assert.True(t, dErrors.IsRetryable(err))
}

func TestClient_SignServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, "")
	_, err := client.Sign(context.Background(), []byte("canonical"), keyRef)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSigningUnavailable))
}

func TestClient_SignMalformedProof(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"proof": "not-base64 %%"})
	}))
	defer srv.Close()

	client := New(srv.URL, "")
	_, err := client.Sign(context.Background(), []byte("canonical"), keyRef)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))
	assert.False(t, dErrors.IsRetryable(err))
}

func TestClient_SignRejectedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := New(srv.URL, "")
	_, err := client.Sign(context.Background(), []byte("canonical"), keyRef)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))
}

func TestClient_VerifySignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]bool{"valid": true})
	}))
	defer srv.Close()

	client := New(srv.URL, "")
	ok, err := client.VerifySignature(context.Background(), []byte("canonical"), keyRef.KeyFragment(), "c2ln")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_VerifySignatureAgentDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	client := New(srv.URL, "")
	_, err := client.VerifySignature(context.Background(), []byte("canonical"), keyRef.KeyFragment(), "c2ln")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeSigningUnavailable))
}
