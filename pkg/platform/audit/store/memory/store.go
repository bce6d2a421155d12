// Package memory provides an in-memory audit store for tests and
// single-node deployments.
package memory

import (
	"context"
	"sync"

	id "rxcred/pkg/domain"
	audit "rxcred/pkg/platform/audit"
)

// InMemoryStore keeps audit events in a slice guarded by a mutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append records an event. Events are append-only.
func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByPrescription returns events for a specific prescription in insertion order.
func (s *InMemoryStore) ListByPrescription(_ context.Context, rxID id.PrescriptionID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.events {
		if e.PrescriptionID == rxID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every recorded event.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}
