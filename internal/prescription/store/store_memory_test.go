package store

import (
	"context"
	"testing"
	"time"

	"rxcred/internal/prescription/models"
	id "rxcred/pkg/domain"
	"rxcred/pkg/platform/sentinel"
	"rxcred/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecord(t *testing.T, s *InMemoryStore) *models.Record {
	t.Helper()
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	record, err := models.NewRecord(
		id.NewPrescriptionID(),
		id.DID("did:web:hospital.example:dr-jones"),
		id.DID("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH"),
		[]models.MedicationLine{{Name: "Amoxicillin", Strength: "500mg", Quantity: 21}},
		issued,
		issued.Add(30*24*time.Hour),
		0,
		false,
	)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), record))
	return record
}

func TestInMemoryStore_SaveAndFind(t *testing.T) {
	s := New()
	record := seedRecord(t, s)

	found, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
	assert.Equal(t, models.StateDraft, found.State)
	assert.Equal(t, 1, found.Version)
}

func TestInMemoryStore_SaveDuplicate(t *testing.T) {
	s := New()
	record := seedRecord(t, s)

	err := s.Save(context.Background(), record)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryStore_FindMissing(t *testing.T) {
	s := New()
	_, err := s.FindByID(context.Background(), id.NewPrescriptionID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_FindByCredentialID(t *testing.T) {
	s := New()
	record := seedRecord(t, s)

	_, err := s.FindByCredentialID(context.Background(), id.NewCredentialID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	record.CredentialID = id.NewCredentialID()
	require.NoError(t, record.Transition(models.StateSigned))
	require.NoError(t, s.UpdateState(context.Background(), record))

	found, err := s.FindByCredentialID(context.Background(), record.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
}

func TestInMemoryStore_FindByEmptyCredentialID(t *testing.T) {
	s := New()
	seedRecord(t, s)

	// Draft records carry no credential ID; an empty lookup must not match them.
	_, err := s.FindByCredentialID(context.Background(), id.CredentialID(""))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_UpdateStateBumpsVersion(t *testing.T) {
	s := New()
	record := seedRecord(t, s)

	require.NoError(t, record.Transition(models.StateSigned))
	require.NoError(t, s.UpdateState(context.Background(), record))
	assert.Equal(t, 2, record.Version)

	found, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSigned, found.State)
	assert.Equal(t, 2, found.Version)
}

func TestInMemoryStore_UpdateStateStaleVersion(t *testing.T) {
	s := New()
	record := seedRecord(t, s)

	stale := *record
	require.NoError(t, record.Transition(models.StateSigned))
	require.NoError(t, s.UpdateState(context.Background(), record))

	require.NoError(t, stale.Transition(models.StateRevoked))
	err := s.UpdateState(context.Background(), &stale)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryStore_ConcurrentUpdates(t *testing.T) {
	s := New()
	record := seedRecord(t, s)

	// All writers load the same version; exactly one wins.
	result := testutil.RunConcurrent(10, func(int) error {
		copyRecord := *record
		if err := copyRecord.Transition(models.StateSigned); err != nil {
			return err
		}
		return s.UpdateState(context.Background(), &copyRecord)
	})

	assert.Equal(t, int32(1), result.Successes)
	assert.Equal(t, int32(9), result.Conflicts)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := New()
	record := seedRecord(t, s)

	found, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	found.Medications[0].Name = "Tampered"
	found.State = models.StateRevoked

	again, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Amoxicillin", again.Medications[0].Name)
	assert.Equal(t, models.StateDraft, again.State)
}

func TestInMemoryStore_ListBySubject(t *testing.T) {
	s := New()
	record := seedRecord(t, s)
	seedRecord(t, s)

	records, err := s.ListBySubject(context.Background(), record.SubjectDID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	none, err := s.ListBySubject(context.Background(), id.DID("did:web:other.example"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
