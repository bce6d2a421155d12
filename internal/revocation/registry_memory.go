package revocation

import (
	"context"
	"sync"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
)

// InMemoryRegistry is a thread-safe in-memory revocation list for tests and
// single-node runs.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	entries map[id.CredentialID]Entry
}

// NewInMemory creates an empty in-memory registry.
func NewInMemory() *InMemoryRegistry {
	return &InMemoryRegistry{
		entries: make(map[id.CredentialID]Entry),
	}
}

// Revoke appends an entry. Re-revoking keeps the original entry so the first
// revocation time and reason survive.
func (r *InMemoryRegistry) Revoke(_ context.Context, entry Entry) error {
	if entry.CredentialID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "credential id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.CredentialID]; exists {
		return nil
	}
	r.entries[entry.CredentialID] = entry
	return nil
}

// IsRevoked reports whether the credential appears in the list.
func (r *InMemoryRegistry) IsRevoked(_ context.Context, credID id.CredentialID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, revoked := r.entries[credID]
	return revoked, nil
}

// Entries returns a snapshot of the list, useful in tests.
func (r *InMemoryRegistry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

var _ Registry = (*InMemoryRegistry)(nil)
