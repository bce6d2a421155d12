//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"rxcred/internal/credential/canonical"
	"rxcred/internal/credential/models"
	"rxcred/internal/credential/signer"
	"rxcred/internal/credential/store"
	"rxcred/internal/identity/agent"
	rxstore "rxcred/internal/prescription/store"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/sentinel"
	"rxcred/pkg/testutil"
	"rxcred/pkg/testutil/containers"
)

type CredentialPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	records  *rxstore.PostgresStore
	store    *store.PostgresStore
	agent    *agent.Agent
}

func TestCredentialPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CredentialPostgresSuite))
}

func (s *CredentialPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.records = rxstore.NewPostgres(s.postgres.DB)
	s.store = store.NewPostgres(s.postgres.DB)

	s.agent = agent.New()
	s.Require().NoError(s.agent.Register(testutil.TestDIDs.Issuer))
}

func (s *CredentialPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateModuleTables(context.Background()))
}

// seal issues a credential for a fresh prescription through the real signing
// path so both postgres stores see production-shaped data.
func (s *CredentialPostgresSuite) seal() *models.Credential {
	ctx := context.Background()
	record := testutil.NewRecordBuilder().Build()
	s.Require().NoError(s.records.Save(ctx, record))

	cred, err := signer.New(s.agent, s.records, s.store).Sign(ctx, record.ID)
	s.Require().NoError(err)
	return cred
}

func (s *CredentialPostgresSuite) TestSignPersistsDocument() {
	ctx := context.Background()
	cred := s.seal()

	credID, err := cred.CredentialID()
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, credID)
	s.Require().NoError(err)

	// The stored document must canonicalize to the signed bytes exactly.
	want, err := canonical.Serialize(cred)
	s.Require().NoError(err)
	got, err := canonical.Serialize(found)
	s.Require().NoError(err)
	s.Equal(want, got)
}

func (s *CredentialPostgresSuite) TestSignTwiceConflicts() {
	ctx := context.Background()
	record := testutil.NewRecordBuilder().Build()
	s.Require().NoError(s.records.Save(ctx, record))

	credentialSigner := signer.New(s.agent, s.records, s.store)
	_, err := credentialSigner.Sign(ctx, record.ID)
	s.Require().NoError(err)

	_, err = credentialSigner.Sign(ctx, record.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySigned))
}

func (s *CredentialPostgresSuite) TestFindByPrescription() {
	ctx := context.Background()
	record := testutil.NewRecordBuilder().Build()
	s.Require().NoError(s.records.Save(ctx, record))

	cred, err := signer.New(s.agent, s.records, s.store).Sign(ctx, record.ID)
	s.Require().NoError(err)

	found, err := s.store.FindByPrescription(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(cred.ID, found.ID)
}

func (s *CredentialPostgresSuite) TestFindByIDNotFound() {
	_, err := s.store.FindByID(context.Background(), id.NewCredentialID())
	s.Require().Error(err)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

// TestConcurrentSigning races N signers on the same prescription: exactly one
// credential may exist afterwards.
func (s *CredentialPostgresSuite) TestConcurrentSigning() {
	ctx := context.Background()
	record := testutil.NewRecordBuilder().Build()
	s.Require().NoError(s.records.Save(ctx, record))

	credentialSigner := signer.New(s.agent, s.records, s.store)
	successes, errs := testutil.RunConcurrentCollect(8, func(_ int) error {
		_, err := credentialSigner.Sign(ctx, record.ID)
		return err
	})

	s.Equal(int32(1), successes)
	for _, err := range errs {
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadySigned) || errors.Is(err, sentinel.ErrConflict),
			"unexpected signing error: %v", err)
	}

	var count int
	s.Require().NoError(s.postgres.QueryRow(ctx,
		`SELECT count(*) FROM credentials WHERE prescription_id = $1`,
		record.ID.String(),
	).Scan(&count))
	s.Equal(1, count)
}
