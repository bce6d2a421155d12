package store

import (
	"context"
	"sync"

	"rxcred/internal/prescription/models"
	id "rxcred/pkg/domain"
	"rxcred/pkg/platform/sentinel"
)

// InMemoryStore keeps prescription records in memory for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.PrescriptionID]*models.Record
}

// New constructs an empty in-memory prescription store.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.PrescriptionID]*models.Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	record.Version = 1
	copyRecord := cloneRecord(record)
	s.records[record.ID] = copyRecord
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, rxID id.PrescriptionID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[rxID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *InMemoryStore) FindByCredentialID(_ context.Context, credID id.CredentialID) (*models.Record, error) {
	if credID.IsNil() {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.CredentialID == credID {
			return cloneRecord(record), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectDID id.DID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, record := range s.records {
		if record.SubjectDID == subjectDID {
			out = append(out, cloneRecord(record))
		}
	}
	return out, nil
}

// UpdateState persists a state change using the record's version for
// optimistic concurrency. A stale version returns ErrConflict so concurrent
// writers lose cleanly instead of clobbering each other.
func (s *InMemoryStore) UpdateState(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != record.Version {
		return sentinel.ErrConflict
	}
	record.Version++
	copyRecord := cloneRecord(record)
	s.records[record.ID] = copyRecord
	return nil
}

// cloneRecord returns a deep copy so callers cannot mutate stored state.
func cloneRecord(record *models.Record) *models.Record {
	copyRecord := *record
	copyRecord.Medications = make([]models.MedicationLine, len(record.Medications))
	copy(copyRecord.Medications, record.Medications)
	return &copyRecord
}
