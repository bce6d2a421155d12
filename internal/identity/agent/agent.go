// Package agent is the in-process signing provider. It keeps an Ed25519
// keyring keyed by DID and is the default adapter for tests and single-node
// deployments where no remote signing service is available.
package agent

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
)

// Agent holds Ed25519 key pairs for registered DIDs.
type Agent struct {
	mu   sync.RWMutex
	keys map[id.DID]ed25519.PrivateKey
}

// New constructs an empty agent.
func New() *Agent {
	return &Agent{keys: make(map[id.DID]ed25519.PrivateKey)}
}

// Register generates a key pair for the DID. Registering an already known DID
// is idempotent and keeps the existing key so issued credentials stay valid.
func (a *Agent) Register(did id.DID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.keys[did]; ok {
		return nil
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key for %s: %w", did, err)
	}
	a.keys[did] = priv
	return nil
}

// PublicKey returns the registered public key for a DID.
func (a *Agent) PublicKey(did id.DID) (ed25519.PublicKey, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	priv, ok := a.keys[did]
	if !ok {
		return nil, false
	}
	return priv.Public().(ed25519.PublicKey), true
}

// Sign signs the canonical payload with the key behind keyRef.
func (a *Agent) Sign(_ context.Context, payload []byte, keyRef id.DID) ([]byte, error) {
	a.mu.RLock()
	priv, ok := a.keys[keyRef]
	a.mu.RUnlock()
	if !ok {
		return nil, dErrors.New(dErrors.CodeSigningUnavailable,
			fmt.Sprintf("no signing key registered for %s", keyRef))
	}
	if len(payload) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing payload is empty")
	}
	return ed25519.Sign(priv, payload), nil
}

// VerifySignature checks proofValue against the payload using the public key
// behind the verification method's DID. An unknown key or malformed proof is
// an invalid signature, not a provider failure.
func (a *Agent) VerifySignature(_ context.Context, payload []byte, verificationMethod string, proofValue string) (bool, error) {
	did, _, ok := strings.Cut(verificationMethod, "#")
	if !ok || did == "" {
		return false, nil
	}

	pub, registered := a.PublicKey(id.DID(did))
	if !registered {
		return false, nil
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, nil
	}

	sig, err := base64.StdEncoding.DecodeString(proofValue)
	if err != nil {
		return false, nil
	}
	if len(sig) != ed25519.SignatureSize {
		return false, nil
	}

	return ed25519.Verify(pub, payload, sig), nil
}
