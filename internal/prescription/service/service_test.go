package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"rxcred/internal/credential/signer"
	credstore "rxcred/internal/credential/store"
	"rxcred/internal/credential/verifier"
	"rxcred/internal/identity/agent"
	"rxcred/internal/prescription/models"
	rxstore "rxcred/internal/prescription/store"
	"rxcred/internal/revocation"
	"rxcred/internal/trust"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/middleware/requesttime"
	platformsync "rxcred/pkg/platform/sync"

	"github.com/stretchr/testify/suite"
)

const (
	issuerDID   = "did:web:hospital.example:dr-jones"
	subjectDID  = "did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH"
	pharmacyDID = "did:web:pharmacy.example:main-street"
)

type ServiceSuite struct {
	suite.Suite

	agent       *agent.Agent
	records     *rxstore.InMemoryStore
	creds       *credstore.InMemoryStore
	revocations *revocation.InMemoryRegistry
	allowlist   *trust.Allowlist
	locks       *platformsync.ShardedMutex
	signer      *signer.Signer
	service     *Service

	issuedAt  time.Time
	expiresAt time.Time
}

func (s *ServiceSuite) SetupTest() {
	s.agent = agent.New()
	s.Require().NoError(s.agent.Register(id.DID(issuerDID)))

	s.records = rxstore.New()
	s.creds = credstore.New()
	s.revocations = revocation.NewInMemory()
	s.allowlist = trust.NewAllowlist([]string{issuerDID})
	s.locks = platformsync.NewShardedMutex()
	s.signer = signer.New(s.agent, s.records, s.creds, signer.WithLocks(s.locks))

	pipeline := verifier.New(s.agent, s.allowlist, s.revocations)
	s.service = New(s.records, s.creds, pipeline, s.revocations, WithLocks(s.locks))

	s.issuedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.expiresAt = s.issuedAt.Add(30 * 24 * time.Hour)
}

func (s *ServiceSuite) createDraft() *models.Record {
	record, err := s.service.CreateDraft(context.Background(), &CreateDraftCommand{
		IssuerDID:  issuerDID,
		SubjectDID: subjectDID,
		Medications: []models.MedicationLine{
			{Name: "Amoxicillin", Strength: "500mg", Quantity: 21, Instructions: "one capsule three times daily"},
		},
		IssuedAt:  s.issuedAt,
		ExpiresAt: s.expiresAt,
	})
	s.Require().NoError(err)
	return record
}

// activated creates a draft, seals it and moves it into circulation.
func (s *ServiceSuite) activated() *models.Record {
	record := s.createDraft()
	_, err := s.signer.Sign(context.Background(), record.ID)
	s.Require().NoError(err)
	record, err = s.service.Activate(s.within(), record.ID)
	s.Require().NoError(err)
	return record
}

// within returns a context whose request time falls inside the validity window.
func (s *ServiceSuite) within() context.Context {
	return requesttime.WithTime(context.Background(), s.issuedAt.Add(time.Hour))
}

// after returns a context whose request time falls past the expiry.
func (s *ServiceSuite) after() context.Context {
	return requesttime.WithTime(context.Background(), s.expiresAt.Add(time.Minute))
}

func (s *ServiceSuite) TestCreateDraft() {
	record := s.createDraft()

	s.Equal(models.StateDraft, record.State)
	s.Equal(1, record.Version)

	stored, err := s.records.FindByID(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(record.ID, stored.ID)
}

func (s *ServiceSuite) TestCreateDraftValidation() {
	tests := []struct {
		name   string
		mutate func(*CreateDraftCommand)
	}{
		{"missing issuer", func(c *CreateDraftCommand) { c.IssuerDID = "" }},
		{"malformed issuer", func(c *CreateDraftCommand) { c.IssuerDID = "not-a-did" }},
		{"missing subject", func(c *CreateDraftCommand) { c.SubjectDID = "" }},
		{"no medications", func(c *CreateDraftCommand) { c.Medications = nil }},
		{"blank medication name", func(c *CreateDraftCommand) { c.Medications[0].Name = "   " }},
		{"zero quantity", func(c *CreateDraftCommand) { c.Medications[0].Quantity = 0 }},
		{"negative repeat count", func(c *CreateDraftCommand) { c.RepeatCount = -1 }},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			cmd := &CreateDraftCommand{
				IssuerDID:  issuerDID,
				SubjectDID: subjectDID,
				Medications: []models.MedicationLine{
					{Name: "Amoxicillin", Strength: "500mg", Quantity: 21},
				},
				IssuedAt:  s.issuedAt,
				ExpiresAt: s.expiresAt,
			}
			tt.mutate(cmd)

			_, err := s.service.CreateDraft(context.Background(), cmd)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *ServiceSuite) TestGetUnknownPrescription() {
	_, err := s.service.Get(context.Background(), id.NewPrescriptionID())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestLazyExpiryOnRead() {
	record := s.activated()

	// Reading inside the window leaves the state alone.
	got, err := s.service.Get(s.within(), record.ID)
	s.Require().NoError(err)
	s.Equal(models.StateActive, got.State)

	// The first read past the window flips and persists Expired.
	got, err = s.service.Get(s.after(), record.ID)
	s.Require().NoError(err)
	s.Equal(models.StateExpired, got.State)

	stored, err := s.records.FindByID(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(models.StateExpired, stored.State)
}

func (s *ServiceSuite) TestLazyExpiryLeavesDraftAlone() {
	record := s.createDraft()

	got, err := s.service.Get(s.after(), record.ID)
	s.Require().NoError(err)
	s.Equal(models.StateDraft, got.State, "drafts have no circulation window to expire")
}

func (s *ServiceSuite) TestActivateRequiresSigned() {
	record := s.createDraft()

	_, err := s.service.Activate(s.within(), record.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))
}

func (s *ServiceSuite) TestDispenseHappyPath() {
	record := s.activated()

	got, err := s.service.Dispense(s.within(), record.ID, pharmacyDID)
	s.Require().NoError(err)
	s.Equal(models.StateDispensed, got.State)
}

func (s *ServiceSuite) TestDispenseTwiceFails() {
	record := s.activated()

	_, err := s.service.Dispense(s.within(), record.ID, pharmacyDID)
	s.Require().NoError(err)

	_, err = s.service.Dispense(s.within(), record.ID, pharmacyDID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))
}

func (s *ServiceSuite) TestDispenseBlockedByFailedVerification() {
	record := s.activated()

	// Trust is withdrawn between activation and dispense.
	s.allowlist.Remove(id.DID(issuerDID))

	_, err := s.service.Dispense(s.within(), record.ID, pharmacyDID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))

	stored, err := s.records.FindByID(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(models.StateActive, stored.State, "a blocked dispense must not move the record")
}

func (s *ServiceSuite) TestDispenseExpiredPrescription() {
	record := s.activated()

	_, err := s.service.Dispense(s.after(), record.ID, pharmacyDID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	stored, err := s.records.FindByID(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(models.StateExpired, stored.State, "the expiry observation still lands")
}

func (s *ServiceSuite) TestRevokeSealedPrescription() {
	record := s.activated()

	got, err := s.service.Revoke(s.within(), record.ID, "prescribing error")
	s.Require().NoError(err)
	s.Equal(models.StateRevoked, got.State)

	revoked, err := s.revocations.IsRevoked(context.Background(), record.CredentialID)
	s.Require().NoError(err)
	s.True(revoked, "revoking the record must land the credential on the registry")
}

func (s *ServiceSuite) TestRevokedCredentialFailsVerification() {
	record := s.activated()

	_, err := s.service.Revoke(s.within(), record.ID, "prescribing error")
	s.Require().NoError(err)

	cred, err := s.creds.FindByPrescription(context.Background(), record.ID)
	s.Require().NoError(err)

	pipeline := verifier.New(s.agent, s.allowlist, s.revocations)
	result, err := pipeline.Verify(context.Background(), cred)
	s.Require().NoError(err)
	s.False(result.Verified)
	s.False(result.Checks.NotRevoked)
}

// signHookProvider runs fn once, mid-sign, before delegating to the agent.
type signHookProvider struct {
	inner *agent.Agent
	once  sync.Once
	fn    func()
}

func (p *signHookProvider) Sign(ctx context.Context, payload []byte, keyRef id.DID) ([]byte, error) {
	p.once.Do(p.fn)
	return p.inner.Sign(ctx, payload, keyRef)
}

func (p *signHookProvider) VerifySignature(ctx context.Context, payload []byte, verificationMethod, proofValue string) (bool, error) {
	return p.inner.VerifySignature(ctx, payload, verificationMethod, proofValue)
}

func (s *ServiceSuite) TestRevokeDuringSignCannotOrphanCredential() {
	record := s.createDraft()

	// Fire a revoke while the sign holds the record lock. Without the shared
	// lock set the revoke would see a Draft with no credential ID, skip the
	// registry append and flip the state, leaving the sealed credential as a
	// fully verifiable orphan.
	revokeErr := make(chan error, 1)
	provider := &signHookProvider{inner: s.agent, fn: func() {
		go func() {
			_, err := s.service.Revoke(s.within(), record.ID, "prescribing error")
			revokeErr <- err
		}()
		time.Sleep(20 * time.Millisecond)
	}}
	racingSigner := signer.New(provider, s.records, s.creds, signer.WithLocks(s.locks))

	cred, err := racingSigner.Sign(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Require().NoError(<-revokeErr)

	stored, err := s.records.FindByID(context.Background(), record.ID)
	s.Require().NoError(err)
	s.Equal(models.StateRevoked, stored.State)
	s.False(stored.CredentialID.IsNil())

	credID, err := cred.CredentialID()
	s.Require().NoError(err)
	revoked, err := s.revocations.IsRevoked(context.Background(), credID)
	s.Require().NoError(err)
	s.True(revoked, "the revoke must observe the sealed credential and register it")

	pipeline := verifier.New(s.agent, s.allowlist, s.revocations)
	result, err := pipeline.Verify(context.Background(), cred)
	s.Require().NoError(err)
	s.False(result.Verified)
	s.False(result.Checks.NotRevoked)
}

func (s *ServiceSuite) TestRevokeDraft() {
	record := s.createDraft()

	got, err := s.service.Revoke(s.within(), record.ID, "entered in error")
	s.Require().NoError(err)
	s.Equal(models.StateRevoked, got.State)
	s.Empty(s.revocations.Entries(), "a draft has no credential to revoke")
}

func (s *ServiceSuite) TestRevokeDispensedFails() {
	record := s.activated()
	_, err := s.service.Dispense(s.within(), record.ID, pharmacyDID)
	s.Require().NoError(err)

	_, err = s.service.Revoke(s.within(), record.ID, "too late")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))
}

func (s *ServiceSuite) TestListBySubjectAppliesExpiry() {
	record := s.activated()

	records, err := s.service.ListBySubject(s.after(), id.DID(subjectDID))
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(record.ID, records[0].ID)
	s.Equal(models.StateExpired, records[0].State)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
