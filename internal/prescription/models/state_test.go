package models

import (
	"testing"
	"time"

	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraftRecord(t *testing.T) *Record {
	t.Helper()
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	record, err := NewRecord(
		id.NewPrescriptionID(),
		id.DID("did:web:hospital.example:dr-jones"),
		id.DID("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH"),
		[]MedicationLine{{Name: "Amoxicillin", Strength: "500mg", Quantity: 21, Instructions: "one capsule three times daily"}},
		issued,
		issued.Add(30*24*time.Hour),
		0,
		false,
	)
	require.NoError(t, err)
	return record
}

func TestTransition_LegalEdges(t *testing.T) {
	cases := []struct {
		name string
		from State
		to   State
	}{
		{"draft to signed", StateDraft, StateSigned},
		{"draft to revoked", StateDraft, StateRevoked},
		{"signed to active", StateSigned, StateActive},
		{"signed to dispensed", StateSigned, StateDispensed},
		{"signed to expired", StateSigned, StateExpired},
		{"signed to revoked", StateSigned, StateRevoked},
		{"active to dispensed", StateActive, StateDispensed},
		{"active to expired", StateActive, StateExpired},
		{"active to revoked", StateActive, StateRevoked},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := newDraftRecord(t)
			record.State = tc.from
			require.NoError(t, record.Transition(tc.to))
			assert.Equal(t, tc.to, record.State)
		})
	}
}

func TestTransition_IllegalEdges(t *testing.T) {
	cases := []struct {
		name string
		from State
		to   State
	}{
		{"draft to active", StateDraft, StateActive},
		{"draft to dispensed", StateDraft, StateDispensed},
		{"draft to expired", StateDraft, StateExpired},
		{"signed back to draft", StateSigned, StateDraft},
		{"dispensed to revoked", StateDispensed, StateRevoked},
		{"dispensed to active", StateDispensed, StateActive},
		{"expired to signed", StateExpired, StateSigned},
		{"expired to dispensed", StateExpired, StateDispensed},
		{"revoked to signed", StateRevoked, StateSigned},
		{"revoked to dispensed", StateRevoked, StateDispensed},
		{"self transition", StateSigned, StateSigned},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := newDraftRecord(t)
			record.State = tc.from
			err := record.Transition(tc.to)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))
			assert.Equal(t, tc.from, record.State, "state must not change on rejected transition")
		})
	}
}

func TestTransition_UnknownState(t *testing.T) {
	record := newDraftRecord(t)
	err := record.Transition(State("archived"))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateDispensed.Terminal())
	assert.True(t, StateExpired.Terminal())
	assert.True(t, StateRevoked.Terminal())
	assert.False(t, StateDraft.Terminal())
	assert.False(t, StateSigned.Terminal())
	assert.False(t, StateActive.Terminal())
}

func TestCanTransitionMethod(t *testing.T) {
	assert.True(t, StateActive.CanTransition(StateDispensed))
	assert.True(t, StateDraft.CanTransition(StateRevoked))
	assert.False(t, StateDispensed.CanTransition(StateRevoked))
	assert.False(t, StateDraft.CanTransition(StateDispensed))
}

func TestNewRecord_Invariants(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	meds := []MedicationLine{{Name: "Amoxicillin", Strength: "500mg", Quantity: 21}}
	issuer := id.DID("did:web:hospital.example:dr-jones")
	subject := id.DID("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH")

	t.Run("valid record starts in draft", func(t *testing.T) {
		record, err := NewRecord(id.NewPrescriptionID(), issuer, subject, meds, issued, issued.Add(time.Hour), 0, false)
		require.NoError(t, err)
		assert.Equal(t, StateDraft, record.State)
		assert.False(t, record.Sealed())
	})

	t.Run("rejects empty medication lines", func(t *testing.T) {
		_, err := NewRecord(id.NewPrescriptionID(), issuer, subject, nil, issued, issued.Add(time.Hour), 0, false)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects expiry before issue", func(t *testing.T) {
		_, err := NewRecord(id.NewPrescriptionID(), issuer, subject, meds, issued, issued.Add(-time.Hour), 0, false)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects negative repeat count", func(t *testing.T) {
		_, err := NewRecord(id.NewPrescriptionID(), issuer, subject, meds, issued, issued.Add(time.Hour), -1, false)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestExpired(t *testing.T) {
	record := newDraftRecord(t)
	assert.False(t, record.Expired(record.ExpiresAt.Add(-time.Minute)))
	assert.False(t, record.Expired(record.ExpiresAt))
	assert.True(t, record.Expired(record.ExpiresAt.Add(time.Second)))
}
