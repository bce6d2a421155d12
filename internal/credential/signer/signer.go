// Package signer orchestrates credential sealing. It owns the Draft → Signed
// transition and the at-most-one-sealed-credential invariant; the actual
// cryptography is delegated to the signing provider.
package signer

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"rxcred/internal/credential/builder"
	"rxcred/internal/credential/canonical"
	"rxcred/internal/credential/models"
	"rxcred/internal/identity"
	"rxcred/internal/platform/metrics"
	rxmodels "rxcred/internal/prescription/models"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/audit"
	"rxcred/pkg/platform/middleware/requesttime"
	platformsync "rxcred/pkg/platform/sync"
)

// RecordStore is the slice of prescription persistence the signer needs.
type RecordStore interface {
	FindByID(ctx context.Context, rxID id.PrescriptionID) (*rxmodels.Record, error)
	UpdateState(ctx context.Context, record *rxmodels.Record) error
}

// CredentialStore persists the sealed artifact.
type CredentialStore interface {
	Save(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, credID id.CredentialID) error
}

// Signer seals credentials for draft prescription records.
type Signer struct {
	provider    identity.SigningProvider
	records     RecordStore
	credentials CredentialStore
	locks       *platformsync.ShardedMutex
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     *audit.Logger
}

// Option configures the Signer.
type Option func(*Signer)

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Signer) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Signer) {
		s.metrics = m
	}
}

// WithAuditor sets the audit logger.
func WithAuditor(a *audit.Logger) Option {
	return func(s *Signer) {
		s.auditor = a
	}
}

// WithLocks sets the per-record lock set. Components that mutate the same
// records, the prescription service in particular, must share one set so
// signing and revocation serialize against each other.
func WithLocks(locks *platformsync.ShardedMutex) Option {
	return func(s *Signer) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// New constructs a Signer.
func New(provider identity.SigningProvider, records RecordStore, credentials CredentialStore, opts ...Option) *Signer {
	s := &Signer{
		provider:    provider,
		records:     records,
		credentials: credentials,
		locks:       platformsync.NewShardedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign seals the credential for a draft prescription record.
//
// Sign attempts on the same record are serialized per record identity, so at
// most one sealed credential is ever produced per record. The record stays in
// Draft on any failure; a SigningUnavailable error is safe to retry because
// the builder output is deterministic.
func (s *Signer) Sign(ctx context.Context, rxID id.PrescriptionID) (*models.Credential, error) {
	s.locks.Lock(rxID.String())
	defer s.locks.Unlock(rxID.String())

	record, err := s.records.FindByID(ctx, rxID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "prescription record not found")
	}

	switch {
	case record.State == rxmodels.StateDraft:
		// proceed
	case record.State == rxmodels.StateSigned || record.State == rxmodels.StateActive:
		return nil, dErrors.New(dErrors.CodeAlreadySigned, "prescription record is already signed")
	default:
		return nil, dErrors.New(dErrors.CodeIllegalTransition,
			"cannot sign prescription in state "+string(record.State))
	}

	cred, err := builder.Build(record, record.IssuerDID, record.SubjectDID)
	if err != nil {
		return nil, err
	}
	cred.ID = id.NewCredentialID().String()

	payload, err := canonical.SigningInput(cred)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "canonicalize credential")
	}

	proofBytes, err := s.provider.Sign(ctx, payload, record.IssuerDID)
	if err != nil {
		s.recordFailure(ctx, record, err)
		return nil, err
	}
	if len(proofBytes) == 0 {
		err := dErrors.New(dErrors.CodeInvalidProof, "signing provider returned an empty proof")
		s.recordFailure(ctx, record, err)
		return nil, err
	}

	cred.Proof = &models.Proof{
		Type:               models.ProofTypeEd25519,
		Created:            requesttime.Now(ctx).UTC().Format(time.RFC3339),
		ProofPurpose:       models.ProofPurposeAssertion,
		VerificationMethod: record.IssuerDID.KeyFragment(),
		ProofValue:         base64.StdEncoding.EncodeToString(proofBytes),
	}
	if err := cred.Proof.Validate(); err != nil {
		s.recordFailure(ctx, record, err)
		return nil, err
	}

	if err := s.credentials.Save(ctx, cred); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist sealed credential")
	}

	credID, err := cred.CredentialID()
	if err != nil {
		return nil, err
	}
	record.CredentialID = credID
	if err := record.Transition(rxmodels.StateSigned); err != nil {
		s.compensate(ctx, credID)
		return nil, err
	}
	if err := s.records.UpdateState(ctx, record); err != nil {
		// A concurrent writer (a revoke from another process) won the
		// version race. The sealed credential must not outlive the lost
		// transition: left in place it would verify against a record that
		// never reached Signed.
		s.compensate(ctx, credID)
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "persist signed state")
	}

	if s.metrics != nil {
		s.metrics.IncrementCredentialsSigned()
	}
	if s.auditor != nil {
		s.auditor.Log(ctx, string(audit.EventCredentialSigned),
			"prescription_id", record.ID.String(),
			"credential_id", cred.ID,
			"actor", record.IssuerDID.String(),
		)
	}
	return cred, nil
}

func (s *Signer) compensate(ctx context.Context, credID id.CredentialID) {
	if err := s.credentials.Delete(ctx, credID); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "delete orphaned credential failed",
			"error", err,
			"credential_id", credID.String(),
		)
	}
}

func (s *Signer) recordFailure(ctx context.Context, record *rxmodels.Record, err error) {
	if s.metrics != nil {
		reason := "invalid_proof"
		if dErrors.HasCode(err, dErrors.CodeSigningUnavailable) {
			reason = "provider_unavailable"
		}
		s.metrics.IncrementSigningFailures(reason)
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "credential signing failed",
			"error", err,
			"prescription_id", record.ID.String(),
		)
	}
}
