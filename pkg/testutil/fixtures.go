package testutil

import (
	"time"

	"github.com/google/uuid"

	rxmodels "rxcred/internal/prescription/models"
	id "rxcred/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	PrescriptionID1 id.PrescriptionID
	PrescriptionID2 id.PrescriptionID
}{
	PrescriptionID1: id.PrescriptionID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	PrescriptionID2: id.PrescriptionID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
}

// TestDIDs are well-formed DIDs for tests.
var TestDIDs = struct {
	Issuer   id.DID
	Subject  id.DID
	Pharmacy id.DID
}{
	Issuer:   id.DID("did:web:hospital.example:dr-jones"),
	Subject:  id.DID("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH"),
	Pharmacy: id.DID("did:web:pharmacy.example:main-street"),
}

// RecordBuilder provides a fluent interface for building test prescription records.
type RecordBuilder struct {
	rxID        id.PrescriptionID
	issuerDID   id.DID
	subjectDID  id.DID
	medications []rxmodels.MedicationLine
	issuedAt    time.Time
	expiresAt   time.Time
	repeatCount int
	isRepeat    bool
	state       rxmodels.State
}

// NewRecordBuilder creates a RecordBuilder with sensible defaults: a fresh
// draft for a single 21-capsule amoxicillin course valid for 30 days.
func NewRecordBuilder() *RecordBuilder {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &RecordBuilder{
		rxID:       id.NewPrescriptionID(),
		issuerDID:  TestDIDs.Issuer,
		subjectDID: TestDIDs.Subject,
		medications: []rxmodels.MedicationLine{{
			Name:         "Amoxicillin",
			Strength:     "500mg",
			Quantity:     21,
			Instructions: "one capsule three times daily",
		}},
		issuedAt:  issued,
		expiresAt: issued.Add(30 * 24 * time.Hour),
		state:     rxmodels.StateDraft,
	}
}

func (b *RecordBuilder) WithID(rxID id.PrescriptionID) *RecordBuilder {
	b.rxID = rxID
	return b
}

func (b *RecordBuilder) WithIssuer(did id.DID) *RecordBuilder {
	b.issuerDID = did
	return b
}

func (b *RecordBuilder) WithSubject(did id.DID) *RecordBuilder {
	b.subjectDID = did
	return b
}

func (b *RecordBuilder) WithMedications(lines ...rxmodels.MedicationLine) *RecordBuilder {
	b.medications = lines
	return b
}

func (b *RecordBuilder) WithValidity(issuedAt, expiresAt time.Time) *RecordBuilder {
	b.issuedAt = issuedAt
	b.expiresAt = expiresAt
	return b
}

func (b *RecordBuilder) WithRepeats(count int) *RecordBuilder {
	b.repeatCount = count
	b.isRepeat = count > 0
	return b
}

// WithState walks the record through legal transitions to the target state,
// so fixtures never hold a state the domain could not reach.
func (b *RecordBuilder) WithState(state rxmodels.State) *RecordBuilder {
	b.state = state
	return b
}

// Build constructs the record, panicking on invariant violations. Fixtures
// with bad data are programmer errors, not test conditions.
func (b *RecordBuilder) Build() *rxmodels.Record {
	record, err := rxmodels.NewRecord(
		b.rxID, b.issuerDID, b.subjectDID, b.medications,
		b.issuedAt, b.expiresAt, b.repeatCount, b.isRepeat,
	)
	if err != nil {
		panic("testutil: build record fixture: " + err.Error())
	}
	for _, step := range pathTo(b.state) {
		if err := record.Transition(step); err != nil {
			panic("testutil: transition record fixture: " + err.Error())
		}
	}
	return record
}

// pathTo returns the transition steps from draft to the target state.
func pathTo(state rxmodels.State) []rxmodels.State {
	switch state {
	case rxmodels.StateDraft:
		return nil
	case rxmodels.StateSigned:
		return []rxmodels.State{rxmodels.StateSigned}
	case rxmodels.StateActive:
		return []rxmodels.State{rxmodels.StateSigned, rxmodels.StateActive}
	case rxmodels.StateDispensed:
		return []rxmodels.State{rxmodels.StateSigned, rxmodels.StateActive, rxmodels.StateDispensed}
	case rxmodels.StateExpired:
		return []rxmodels.State{rxmodels.StateSigned, rxmodels.StateActive, rxmodels.StateExpired}
	case rxmodels.StateRevoked:
		return []rxmodels.State{rxmodels.StateSigned, rxmodels.StateActive, rxmodels.StateRevoked}
	default:
		panic("testutil: unknown record state " + string(state))
	}
}
