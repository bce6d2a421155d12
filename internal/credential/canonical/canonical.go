// Package canonical produces the deterministic byte serialization of
// credential documents. The proof covers the canonical form of the whole
// document minus the proof itself, so any post-signing mutation of payload
// fields invalidates the signature.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"rxcred/internal/credential/models"
)

// Serialize returns the canonical serialization of the full credential,
// including the proof when present. This is the form persisted, embedded in
// QR payloads, and hashed for URL fallback integrity.
func Serialize(cred *models.Credential) ([]byte, error) {
	if cred == nil {
		return nil, fmt.Errorf("credential is required")
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	return canonicalizeJSON(raw)
}

// SigningInput returns the canonical serialization of the credential with the
// proof stripped. This is the exact byte sequence the signing provider signs
// and the verifier checks against.
func SigningInput(cred *models.Credential) ([]byte, error) {
	if cred == nil {
		return nil, fmt.Errorf("credential is required")
	}
	unsigned := *cred
	unsigned.Proof = nil
	return Serialize(&unsigned)
}

// Digest returns the hex-encoded SHA-256 digest of a canonical serialization.
func Digest(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Parse decodes a canonical (or plain) JSON credential document.
func Parse(data []byte) (*models.Credential, error) {
	var cred models.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &cred, nil
}
