// Package identity defines the port to the external Identity & Signing
// Provider. The core never touches key material directly: it hands canonical
// payload bytes to a provider and gets opaque proof bytes back. Adapters are
// swappable (in-process agent for tests and single-node runs, HTTP agent for
// a remote provider).
package identity

import (
	"context"

	id "rxcred/pkg/domain"
)

// SigningProvider is the narrow contract with the signing collaborator.
//
// Error Contract:
//   - Sign returns CodeSigningUnavailable when the provider cannot be reached
//     (retryable) and CodeInvalidProof for malformed provider responses
//   - VerifySignature returns (false, nil) for a cryptographically invalid
//     signature; the error return is reserved for provider failures
type SigningProvider interface {
	Sign(ctx context.Context, payload []byte, keyRef id.DID) ([]byte, error)
	VerifySignature(ctx context.Context, payload []byte, verificationMethod string, proofValue string) (bool, error)
}
