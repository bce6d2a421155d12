// Package trust answers whether an issuer DID is an authorized prescriber.
// Implementations satisfy the verification pipeline's TrustRegistry port and
// fail closed: no answer is never treated as trusted.
package trust

import (
	"context"
	"sync"

	id "rxcred/pkg/domain"
)

// Allowlist is a static in-memory trust registry. It backs single-node
// deployments and tests, and serves as the refreshable local mirror when the
// remote registry feed is polled.
type Allowlist struct {
	mu      sync.RWMutex
	issuers map[id.DID]struct{}
}

// NewAllowlist builds a registry trusting exactly the given issuer DIDs.
// Invalid DIDs are skipped rather than trusted by accident.
func NewAllowlist(issuers []string) *Allowlist {
	a := &Allowlist{issuers: make(map[id.DID]struct{})}
	a.Replace(issuers)
	return a
}

// IsTrusted reports whether the issuer is on the list.
func (a *Allowlist) IsTrusted(_ context.Context, issuer id.DID) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.issuers[issuer]
	return ok, nil
}

// Replace swaps the entire list atomically. Callers refreshing from an
// external feed use this so readers never observe a half-applied update.
func (a *Allowlist) Replace(issuers []string) {
	next := make(map[id.DID]struct{}, len(issuers))
	for _, raw := range issuers {
		did, err := id.ParseDID(raw)
		if err != nil {
			continue
		}
		next[did] = struct{}{}
	}

	a.mu.Lock()
	a.issuers = next
	a.mu.Unlock()
}

// Add trusts a single issuer.
func (a *Allowlist) Add(issuer id.DID) {
	a.mu.Lock()
	a.issuers[issuer] = struct{}{}
	a.mu.Unlock()
}

// Remove withdraws trust from a single issuer.
func (a *Allowlist) Remove(issuer id.DID) {
	a.mu.Lock()
	delete(a.issuers, issuer)
	a.mu.Unlock()
}

// Len reports the number of trusted issuers.
func (a *Allowlist) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.issuers)
}
