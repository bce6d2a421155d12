// Package service owns the prescription lifecycle: draft creation, state
// transitions and the dispense and revoke flows that tie the record to its
// credential. Expiry is lazy: a record past its validity window is moved to
// Expired the first time anyone reads it, never by a background sweeper.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	credmodels "rxcred/internal/credential/models"
	"rxcred/internal/platform/metrics"
	"rxcred/internal/prescription/models"
	"rxcred/internal/prescription/store"
	"rxcred/internal/revocation"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/audit"
	"rxcred/pkg/platform/middleware/requesttime"
	"rxcred/pkg/platform/sentinel"
	platformsync "rxcred/pkg/platform/sync"
	"rxcred/pkg/validation"
)

// CredentialReader fetches the sealed credential for a prescription.
type CredentialReader interface {
	FindByPrescription(ctx context.Context, rxID id.PrescriptionID) (*credmodels.Credential, error)
}

// Verifier runs the verification pipeline over a credential document.
type Verifier interface {
	Verify(ctx context.Context, cred *credmodels.Credential) (credmodels.VerificationResult, error)
}

// Service coordinates prescription records, their credentials and the
// revocation registry.
type Service struct {
	records     store.Store
	credentials CredentialReader
	verifier    Verifier
	revocations revocation.Registry
	locks       *platformsync.ShardedMutex
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     *audit.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditor sets the audit logger.
func WithAuditor(a *audit.Logger) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithLocks sets the per-record lock set. The signer must share the same set
// so a revoke cannot interleave with an in-flight sign on the same record.
func WithLocks(locks *platformsync.ShardedMutex) Option {
	return func(s *Service) {
		if locks != nil {
			s.locks = locks
		}
	}
}

// New creates the prescription service.
func New(records store.Store, credentials CredentialReader, verifier Verifier, revocations revocation.Registry, opts ...Option) *Service {
	s := &Service{
		records:     records,
		credentials: credentials,
		verifier:    verifier,
		revocations: revocations,
		locks:       platformsync.NewShardedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDraftCommand carries the fields for a new draft prescription.
type CreateDraftCommand struct {
	IssuerDID   string                  `validate:"required,did"`
	SubjectDID  string                  `validate:"required,did"`
	Medications []models.MedicationLine `validate:"required,min=1,dive"`
	IssuedAt    time.Time               `validate:"required"`
	ExpiresAt   time.Time               `validate:"required"`
	RepeatCount int                     `validate:"gte=0"`
	IsRepeat    bool
}

// CreateDraft validates the command and persists a new draft record.
func (s *Service) CreateDraft(ctx context.Context, cmd *CreateDraftCommand) (*models.Record, error) {
	if cmd == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "create command is required")
	}
	if err := validation.Validate(cmd); err != nil {
		return nil, err
	}

	record, err := models.NewRecord(
		id.NewPrescriptionID(),
		id.DID(cmd.IssuerDID),
		id.DID(cmd.SubjectDID),
		cmd.Medications,
		cmd.IssuedAt,
		cmd.ExpiresAt,
		cmd.RepeatCount,
		cmd.IsRepeat,
	)
	if err != nil {
		return nil, err
	}

	if err := s.records.Save(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "prescription already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "save prescription")
	}

	if s.metrics != nil {
		s.metrics.IncrementPrescriptionsCreated()
	}
	if s.auditor != nil {
		s.auditor.Log(ctx, string(audit.EventPrescriptionCreated),
			"prescription_id", record.ID.String(),
			"actor", cmd.IssuerDID,
			"subject", cmd.SubjectDID,
			"decision", models.AuditDecisionCreated,
		)
	}
	return record, nil
}

// Get returns a record by ID, applying lazy expiry first.
func (s *Service) Get(ctx context.Context, rxID id.PrescriptionID) (*models.Record, error) {
	record, err := s.records.FindByID(ctx, rxID)
	if err != nil {
		return nil, mapFind(err, "prescription")
	}
	return s.observeExpiry(ctx, record)
}

// GetByCredential returns the record bound to a credential ID, applying lazy
// expiry first.
func (s *Service) GetByCredential(ctx context.Context, credID id.CredentialID) (*models.Record, error) {
	record, err := s.records.FindByCredentialID(ctx, credID)
	if err != nil {
		return nil, mapFind(err, "prescription")
	}
	return s.observeExpiry(ctx, record)
}

// ListBySubject returns all records for a patient DID. Expiry is applied per
// record so listings never show a stale Active state.
func (s *Service) ListBySubject(ctx context.Context, subjectDID id.DID) ([]*models.Record, error) {
	records, err := s.records.ListBySubject(ctx, subjectDID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list prescriptions")
	}
	out := make([]*models.Record, 0, len(records))
	for _, record := range records {
		updated, err := s.observeExpiry(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// Activate moves a signed prescription into circulation.
func (s *Service) Activate(ctx context.Context, rxID id.PrescriptionID) (*models.Record, error) {
	record, err := s.Get(ctx, rxID)
	if err != nil {
		return nil, err
	}

	if err := record.Transition(models.StateActive); err != nil {
		return nil, err
	}
	if err := s.records.UpdateState(ctx, record); err != nil {
		return nil, mapUpdate(err)
	}

	if s.auditor != nil {
		s.auditor.Log(ctx, string(audit.EventPrescriptionActive),
			"prescription_id", record.ID.String(),
			"credential_id", record.CredentialID.String(),
		)
	}
	return record, nil
}

// Dispense hands the medication out. The stored credential must pass the
// full verification pipeline in the same call; a stale verdict from an
// earlier request is never good enough.
func (s *Service) Dispense(ctx context.Context, rxID id.PrescriptionID, pharmacyDID string) (*models.Record, error) {
	record, err := s.Get(ctx, rxID)
	if err != nil {
		return nil, err
	}
	if !record.State.CanTransition(models.StateDispensed) {
		return nil, dErrors.New(dErrors.CodeIllegalTransition,
			"cannot dispense a prescription in state "+string(record.State))
	}

	cred, err := s.credentials.FindByPrescription(ctx, rxID)
	if err != nil {
		return nil, mapFind(err, "credential")
	}
	result, err := s.verifier.Verify(ctx, cred)
	if err != nil {
		return nil, err
	}
	if !result.Verified {
		if s.auditor != nil {
			s.auditor.Log(ctx, string(audit.EventPrescriptionDispensed),
				"prescription_id", record.ID.String(),
				"credential_id", record.CredentialID.String(),
				"actor", pharmacyDID,
				"decision", models.AuditDecisionDenied,
				"reason", result.Error,
			)
		}
		return nil, dErrors.New(dErrors.CodeVerificationFailed, result.Error)
	}

	if err := record.Transition(models.StateDispensed); err != nil {
		return nil, err
	}
	if err := s.records.UpdateState(ctx, record); err != nil {
		return nil, mapUpdate(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementPrescriptionsDispensed()
	}
	if s.auditor != nil {
		s.auditor.Log(ctx, string(audit.EventPrescriptionDispensed),
			"prescription_id", record.ID.String(),
			"credential_id", record.CredentialID.String(),
			"actor", pharmacyDID,
			"decision", models.AuditDecisionDispensed,
		)
	}
	return record, nil
}

// Revoke withdraws a prescription. For sealed records the credential lands
// on the revocation registry before the state flips; if the append fails the
// record keeps its state and the caller retries. The registry is append-only
// so the reverse ordering could leave a revoked record whose credential
// still verifies.
//
// Revoke holds the record's lock for the whole read-append-update flow. The
// signer takes the same lock, so a revoke can never slip between a sign's
// state check and its writes and orphan a sealed credential.
func (s *Service) Revoke(ctx context.Context, rxID id.PrescriptionID, reason string) (*models.Record, error) {
	s.locks.Lock(rxID.String())
	defer s.locks.Unlock(rxID.String())

	record, err := s.Get(ctx, rxID)
	if err != nil {
		return nil, err
	}
	if !record.State.CanTransition(models.StateRevoked) {
		return nil, dErrors.New(dErrors.CodeIllegalTransition,
			"cannot revoke a prescription in state "+string(record.State))
	}

	if !record.CredentialID.IsNil() {
		entry := revocation.Entry{
			CredentialID: record.CredentialID,
			Reason:       reason,
			RevokedAt:    requesttime.Now(ctx).UTC(),
		}
		if err := s.revocations.Revoke(ctx, entry); err != nil {
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "revocation registry append failed",
					"prescription_id", record.ID.String(),
					"credential_id", record.CredentialID.String(),
					"error", err,
				)
			}
			return nil, err
		}
	}

	if err := record.Transition(models.StateRevoked); err != nil {
		return nil, err
	}
	if err := s.records.UpdateState(ctx, record); err != nil {
		return nil, mapUpdate(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementPrescriptionsRevoked()
	}
	if s.auditor != nil {
		s.auditor.Log(ctx, string(audit.EventPrescriptionRevoked),
			"prescription_id", record.ID.String(),
			"credential_id", record.CredentialID.String(),
			"decision", models.AuditDecisionRevoked,
			"reason", reason,
		)
	}
	return record, nil
}

// observeExpiry flips a record past its validity window into Expired. A
// concurrent writer winning the version check means someone else already
// moved the record on; re-read and return whatever they decided.
func (s *Service) observeExpiry(ctx context.Context, record *models.Record) (*models.Record, error) {
	now := requesttime.Now(ctx)
	if record.State.Terminal() || record.State == models.StateDraft || !record.Expired(now) {
		return record, nil
	}

	if err := record.Transition(models.StateExpired); err != nil {
		return nil, err
	}
	if err := s.records.UpdateState(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			fresh, ferr := s.records.FindByID(ctx, record.ID)
			if ferr != nil {
				return nil, mapFind(ferr, "prescription")
			}
			return fresh, nil
		}
		return nil, mapUpdate(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementPrescriptionsExpired()
	}
	if s.auditor != nil {
		s.auditor.Log(ctx, string(audit.EventPrescriptionExpired),
			"prescription_id", record.ID.String(),
			"credential_id", record.CredentialID.String(),
			"decision", models.AuditDecisionExpired,
		)
	}
	return record, nil
}

func mapFind(err error, entity string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, entity+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "find "+entity)
}

func mapUpdate(err error) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent update, retry")
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "prescription not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "update prescription")
}
