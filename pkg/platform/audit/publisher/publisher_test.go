package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	id "rxcred/pkg/domain"
	audit "rxcred/pkg/platform/audit"
	"rxcred/pkg/platform/audit/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	err error
}

func (s *failingStore) Append(_ context.Context, _ audit.Event) error {
	return s.err
}

func (s *failingStore) ListByPrescription(_ context.Context, _ id.PrescriptionID) ([]audit.Event, error) {
	return nil, nil
}

func TestPublisher_EmitStoresEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	rxID := id.NewPrescriptionID()
	event := audit.Event{
		PrescriptionID: rxID,
		Action:         string(audit.EventCredentialSigned),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), rxID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventCredentialSigned), events[0].Action)
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	rxID := id.NewPrescriptionID()
	event := audit.Event{
		PrescriptionID: rxID,
		Action:         string(audit.EventPrescriptionCreated),
		// Timestamp not set
	}

	before := time.Now()
	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)
	after := time.Now()

	events, err := pub.List(context.Background(), rxID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.True(t, !events[0].Timestamp.Before(before), "timestamp should be >= before")
	assert.True(t, !events[0].Timestamp.After(after), "timestamp should be <= after")
}

func TestPublisher_SyncEmitPropagatesStoreError(t *testing.T) {
	wantErr := errors.New("disk full")
	pub := NewPublisher(&failingStore{err: wantErr})

	err := pub.Emit(context.Background(), audit.Event{Action: "prescription_created"})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestPublisher_AsyncEmitDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(8))

	rxID := id.NewPrescriptionID()
	for range 5 {
		err := pub.Emit(context.Background(), audit.Event{
			PrescriptionID: rxID,
			Action:         string(audit.EventCredentialVerified),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListByPrescription(context.Background(), rxID)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestPublisher_AsyncBufferFull(t *testing.T) {
	// Buffer of 1 with a store that never completes: fill it, then expect
	// a dropped-event error rather than a blocked caller.
	store := &blockingStore{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer close(store.release)

	// First event is picked up by the worker and blocks in Append;
	// second sits in the buffer; third must be rejected.
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: "a"}))
	<-store.entered
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: "b"}))

	err := pub.Emit(context.Background(), audit.Event{Action: "c"})
	require.Error(t, err)
}

type blockingStore struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Append(_ context.Context, _ audit.Event) error {
	s.entered <- struct{}{}
	<-s.release
	return nil
}

func (s *blockingStore) ListByPrescription(_ context.Context, _ id.PrescriptionID) ([]audit.Event, error) {
	return nil, nil
}
