package signer

import (
	"context"
	"testing"
	"time"

	"rxcred/internal/credential/canonical"
	"rxcred/internal/credential/models"
	credstore "rxcred/internal/credential/store"
	"rxcred/internal/identity/agent"
	rxmodels "rxcred/internal/prescription/models"
	rxstore "rxcred/internal/prescription/store"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/sentinel"
	"rxcred/pkg/testutil"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SignerSuite struct {
	suite.Suite

	agent   *agent.Agent
	records *rxstore.InMemoryStore
	creds   *credstore.InMemoryStore
	signer  *Signer
	record  *rxmodels.Record
}

func (s *SignerSuite) SetupTest() {
	s.agent = agent.New()
	s.records = rxstore.New()
	s.creds = credstore.New()
	s.signer = New(s.agent, s.records, s.creds)

	issuer := id.DID("did:web:hospital.example:dr-jones")
	subject := id.DID("did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH")
	s.Require().NoError(s.agent.Register(issuer))

	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	record, err := rxmodels.NewRecord(
		id.NewPrescriptionID(),
		issuer,
		subject,
		[]rxmodels.MedicationLine{{Name: "Amoxicillin", Strength: "500mg", Quantity: 21, Instructions: "one capsule three times daily"}},
		issued,
		issued.Add(30*24*time.Hour),
		0,
		false,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.records.Save(context.Background(), record))
	s.record = record
}

func (s *SignerSuite) TestSignSealsCredential() {
	cred, err := s.signer.Sign(context.Background(), s.record.ID)
	s.Require().NoError(err)

	s.True(cred.Sealed())
	s.Equal(models.ProofTypeEd25519, cred.Proof.Type)
	s.Equal(models.ProofPurposeAssertion, cred.Proof.ProofPurpose)
	s.Equal("did:web:hospital.example:dr-jones#key-1", cred.Proof.VerificationMethod)
	s.NotEmpty(cred.ID)

	// The signature must actually cover the signing input.
	payload, err := canonical.SigningInput(cred)
	s.Require().NoError(err)
	ok, err := s.agent.VerifySignature(context.Background(), payload, cred.Proof.VerificationMethod, cred.Proof.ProofValue)
	s.Require().NoError(err)
	s.True(ok)

	stored, err := s.records.FindByID(context.Background(), s.record.ID)
	s.Require().NoError(err)
	s.Equal(rxmodels.StateSigned, stored.State)
	s.False(stored.CredentialID.IsNil())

	persisted, err := s.creds.FindByPrescription(context.Background(), s.record.ID)
	s.Require().NoError(err)
	s.Equal(cred.ID, persisted.ID)
}

func (s *SignerSuite) TestSignTwiceFails() {
	_, err := s.signer.Sign(context.Background(), s.record.ID)
	s.Require().NoError(err)

	_, err = s.signer.Sign(context.Background(), s.record.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySigned))
}

func (s *SignerSuite) TestSignTerminalStateIsIllegal() {
	record, err := s.records.FindByID(context.Background(), s.record.ID)
	s.Require().NoError(err)
	record.State = rxmodels.StateDispensed
	record.Version = 1
	s.Require().NoError(s.records.UpdateState(context.Background(), record))

	_, err = s.signer.Sign(context.Background(), s.record.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))
}

func (s *SignerSuite) TestSignUnknownRecord() {
	_, err := s.signer.Sign(context.Background(), id.NewPrescriptionID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SignerSuite) TestProviderUnavailableKeepsDraft() {
	// No key registered for this issuer: the in-process agent reports
	// signing unavailable and the record must stay in Draft.
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	record, err := rxmodels.NewRecord(
		id.NewPrescriptionID(),
		id.DID("did:web:clinic.example:dr-smith"),
		s.record.SubjectDID,
		[]rxmodels.MedicationLine{{Name: "Ibuprofen", Strength: "400mg", Quantity: 30}},
		issued,
		issued.Add(14*24*time.Hour),
		0,
		false,
	)
	s.Require().NoError(err)
	s.Require().NoError(s.records.Save(context.Background(), record))

	_, err = s.signer.Sign(context.Background(), record.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSigningUnavailable))
	s.True(dErrors.IsRetryable(err))

	stored, err := s.records.FindByID(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(rxmodels.StateDraft, stored.State)
	s.True(stored.CredentialID.IsNil())
}

// lostRaceRecordStore simulates a concurrent writer from another process
// winning the version check after the credential has been persisted.
type lostRaceRecordStore struct {
	*rxstore.InMemoryStore
}

func (s *lostRaceRecordStore) UpdateState(context.Context, *rxmodels.Record) error {
	return sentinel.ErrConflict
}

func (s *SignerSuite) TestLostVersionRaceRemovesSealedCredential() {
	racing := New(s.agent, &lostRaceRecordStore{s.records}, s.creds)

	_, err := racing.Sign(context.Background(), s.record.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	// The sealed artifact must not survive the lost transition: a fetchable
	// credential for a record that never reached Signed would still verify.
	_, err = s.creds.FindByPrescription(context.Background(), s.record.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func TestSignerSuite(t *testing.T) {
	suite.Run(t, new(SignerSuite))
}

func TestConcurrentSignProducesOneCredential(t *testing.T) {
	s := new(SignerSuite)
	s.SetT(t)
	s.SetupTest()

	successes, errs := testutil.RunConcurrentCollect(10, func(int) error {
		_, err := s.signer.Sign(context.Background(), s.record.ID)
		return err
	})

	require.Equal(t, int32(1), successes, "exactly one concurrent sign may succeed")
	require.Len(t, errs, 9)
	for _, err := range errs {
		require.True(t, dErrors.HasCode(err, dErrors.CodeAlreadySigned))
	}

	stored, err := s.records.FindByID(context.Background(), s.record.ID)
	require.NoError(t, err)
	require.Equal(t, rxmodels.StateSigned, stored.State)
}
