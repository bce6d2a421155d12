//go:build integration

package revocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"rxcred/internal/revocation"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/testutil"
	"rxcred/pkg/testutil/containers"
)

type RegistryPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	registry *revocation.PostgresRegistry
}

func TestRegistryPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RegistryPostgresSuite))
}

func (s *RegistryPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.registry = revocation.NewPostgres(s.postgres.DB)
}

func (s *RegistryPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "revocations"))
}

func (s *RegistryPostgresSuite) TestRevokeAndCheck() {
	ctx := context.Background()
	credID := id.NewCredentialID()

	err := s.registry.Revoke(ctx, revocation.Entry{
		CredentialID: credID,
		Reason:       "prescribing error",
		RevokedAt:    time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	})
	s.Require().NoError(err)

	revoked, err := s.registry.IsRevoked(ctx, credID)
	s.Require().NoError(err)
	s.True(revoked)
}

func (s *RegistryPostgresSuite) TestUnknownCredentialNotRevoked() {
	revoked, err := s.registry.IsRevoked(context.Background(), id.NewCredentialID())
	s.Require().NoError(err)
	s.False(revoked)
}

func (s *RegistryPostgresSuite) TestReRevokeKeepsOriginalEntry() {
	ctx := context.Background()
	credID := id.NewCredentialID()
	original := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	s.Require().NoError(s.registry.Revoke(ctx, revocation.Entry{
		CredentialID: credID,
		Reason:       "prescribing error",
		RevokedAt:    original,
	}))
	s.Require().NoError(s.registry.Revoke(ctx, revocation.Entry{
		CredentialID: credID,
		Reason:       "patient request",
		RevokedAt:    original.Add(time.Hour),
	}))

	var reason string
	var revokedAt time.Time
	s.Require().NoError(s.postgres.QueryRow(ctx,
		`SELECT reason, revoked_at FROM revocations WHERE credential_id = $1`,
		credID.String(),
	).Scan(&reason, &revokedAt))
	s.Equal("prescribing error", reason)
	s.True(original.Equal(revokedAt))
}

func (s *RegistryPostgresSuite) TestRevokeRequiresCredentialID() {
	err := s.registry.Revoke(context.Background(), revocation.Entry{Reason: "no id"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *RegistryPostgresSuite) TestConcurrentRevokesAreIdempotent() {
	ctx := context.Background()
	credID := id.NewCredentialID()

	result := testutil.RunConcurrent(10, func(idx int) error {
		return s.registry.Revoke(ctx, revocation.Entry{
			CredentialID: credID,
			Reason:       "prescribing error",
			RevokedAt:    time.Date(2026, 3, 10, 14, 0, 0, idx, time.UTC),
		})
	})
	s.Equal(int32(10), result.Successes)

	var count int
	s.Require().NoError(s.postgres.QueryRow(ctx,
		`SELECT count(*) FROM revocations WHERE credential_id = $1`,
		credID.String(),
	).Scan(&count))
	s.Equal(1, count)
}
