package store

import (
	"context"
	"sync"

	"rxcred/internal/credential/canonical"
	"rxcred/internal/credential/models"
	id "rxcred/pkg/domain"
	"rxcred/pkg/platform/sentinel"
)

// InMemoryStore keeps sealed credentials in memory for tests and local runs.
// Documents are stored as canonical bytes so reads cannot observe aliased
// mutations of the caller's struct.
type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[id.CredentialID][]byte
	byRecord  map[string]id.CredentialID
}

// New constructs an empty in-memory credential store.
func New() *InMemoryStore {
	return &InMemoryStore{
		documents: make(map[id.CredentialID][]byte),
		byRecord:  make(map[string]id.CredentialID),
	}
}

func (s *InMemoryStore) Save(_ context.Context, cred *models.Credential) error {
	credID, err := cred.CredentialID()
	if err != nil {
		return err
	}
	data, err := canonical.Serialize(cred)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[credID]; ok {
		return sentinel.ErrConflict
	}
	s.documents[credID] = data
	s.byRecord[cred.CredentialSubject.Prescription.PrescriptionID] = credID
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, credID id.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.documents[credID]
	if !ok {
		return nil
	}
	if cred, err := canonical.Parse(data); err == nil {
		delete(s.byRecord, cred.CredentialSubject.Prescription.PrescriptionID)
	}
	delete(s.documents, credID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, credID id.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	data, ok := s.documents[credID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return canonical.Parse(data)
}

func (s *InMemoryStore) FindByPrescription(_ context.Context, rxID id.PrescriptionID) (*models.Credential, error) {
	s.mu.RLock()
	credID, ok := s.byRecord[rxID.String()]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindByID(context.Background(), credID)
}
