// Package verifier runs the three-check verification pipeline over sealed
// credentials. All three checks always run, even after an early failure, so
// the caller sees the full picture in one verdict. Any registry or provider
// outage fails the affected check closed: a credential is never reported
// verified on incomplete evidence.
package verifier

import (
	"context"
	"log/slog"
	"time"

	"rxcred/internal/credential/canonical"
	"rxcred/internal/credential/models"
	"rxcred/internal/credential/tracer"
	"rxcred/internal/identity"
	"rxcred/internal/platform/metrics"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/audit"
	"rxcred/pkg/platform/middleware/requesttime"

	"golang.org/x/sync/errgroup"
)

// defaultCheckTimeout bounds each individual check against a slow registry.
const defaultCheckTimeout = 5 * time.Second

// Failure reasons surfaced on the result's Error field. The registry-outage
// reasons are deliberately distinct from their definitive counterparts so
// that pharmacy clients can tell "revoked" apart from "could not confirm".
const (
	ReasonNoProof               = "credential has no proof"
	ReasonSignatureInvalid      = "signature invalid"
	ReasonSignerUnavailable     = "signing provider unavailable"
	ReasonIssuerNotTrusted      = "issuer not trusted"
	ReasonTrustUnavailable      = "trust registry unavailable"
	ReasonRevoked               = "credential revoked"
	ReasonRevocationUnavailable = "revocation registry unavailable"
)

// TrustRegistry answers whether an issuer DID is an authorized prescriber.
type TrustRegistry interface {
	IsTrusted(ctx context.Context, issuer id.DID) (bool, error)
}

// RevocationRegistry answers whether a credential has been revoked.
type RevocationRegistry interface {
	IsRevoked(ctx context.Context, credID id.CredentialID) (bool, error)
}

// checkOutcome is the verdict of a single check. Each goroutine writes to
// its own outcome, avoiding data races.
type checkOutcome struct {
	passed bool
	reason string
}

// Verifier evaluates sealed credentials against signature, trust and
// revocation evidence.
type Verifier struct {
	provider     identity.SigningProvider
	trust        TrustRegistry
	revocation   RevocationRegistry
	checkTimeout time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       tracer.Tracer
	auditor      *audit.Logger
}

// Option configures the Verifier.
type Option func(*Verifier)

// WithLogger sets the logger instance.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// WithTracer sets the tracer for the pipeline spans.
func WithTracer(t tracer.Tracer) Option {
	return func(v *Verifier) {
		v.tracer = t
	}
}

// WithAuditor sets the audit logger.
func WithAuditor(a *audit.Logger) Option {
	return func(v *Verifier) {
		v.auditor = a
	}
}

// WithCheckTimeout bounds each individual check.
func WithCheckTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.checkTimeout = d
		}
	}
}

// New creates a verifier over the given signing provider and registries.
func New(provider identity.SigningProvider, trust TrustRegistry, revocation RevocationRegistry, opts ...Option) *Verifier {
	v := &Verifier{
		provider:     provider,
		trust:        trust,
		revocation:   revocation,
		checkTimeout: defaultCheckTimeout,
		tracer:       tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the full pipeline over a credential document and returns a
// structured verdict. The error return is reserved for unusable input; a
// failed verification is a normal result, not an error.
func (v *Verifier) Verify(ctx context.Context, cred *models.Credential) (models.VerificationResult, error) {
	if cred == nil {
		return models.VerificationResult{}, dErrors.New(dErrors.CodeInvalidInput, "credential is required")
	}

	ctx, span := v.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrCredentialID, cred.ID),
		tracer.String(tracer.AttrIssuerDID, cred.Issuer),
	)
	start := time.Now()

	// Isolated outcome holders, one per goroutine.
	var signature, trust, revocation checkOutcome

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		signature = v.checkSignature(gctx, cred)
		return nil
	})
	g.Go(func() error {
		trust = v.checkTrust(gctx, cred)
		return nil
	})
	g.Go(func() error {
		revocation = v.checkRevocation(gctx, cred)
		return nil
	})
	// Checks never return errors, they fail closed in place.
	_ = g.Wait()

	checks := models.Checks{
		SignatureValid: signature.passed,
		IssuerTrusted:  trust.passed,
		NotRevoked:     revocation.passed,
	}
	result := models.NewVerificationResult(cred, checks, firstFailure(signature, trust, revocation), requesttime.Now(ctx).UTC())

	span.AddEvent(tracer.EventChecksCompleted)
	span.SetAttributes(tracer.Bool(tracer.AttrVerified, result.Verified))
	if !result.Verified {
		span.SetAttributes(tracer.String(tracer.AttrFailedCheck, result.Error))
	}
	span.End(nil)

	v.record(ctx, cred, result, time.Since(start))
	return result, nil
}

// checkSignature validates the proof against the canonical signing input.
// Structural defects, a cryptographically invalid proof and an unreachable
// provider all land on the same failed check, with distinct reasons.
func (v *Verifier) checkSignature(ctx context.Context, cred *models.Credential) checkOutcome {
	ctx, cancel := context.WithTimeout(ctx, v.checkTimeout)
	defer cancel()
	ctx, span := v.tracer.Start(ctx, tracer.SpanSignatureCheck)

	outcome := v.signatureOutcome(ctx, cred)
	span.SetAttributes(tracer.Bool(tracer.AttrCheckPassed, outcome.passed))
	span.End(nil)
	return outcome
}

func (v *Verifier) signatureOutcome(ctx context.Context, cred *models.Credential) checkOutcome {
	if !cred.Sealed() {
		return checkOutcome{reason: ReasonNoProof}
	}
	if err := cred.Validate(); err != nil {
		return checkOutcome{reason: err.Error()}
	}
	payload, err := canonical.SigningInput(cred)
	if err != nil {
		return checkOutcome{reason: ReasonSignatureInvalid}
	}
	valid, err := v.provider.VerifySignature(ctx, payload, cred.Proof.VerificationMethod, cred.Proof.ProofValue)
	if err != nil {
		v.logCheckError(ctx, models.CheckSignature, err)
		return checkOutcome{reason: ReasonSignerUnavailable}
	}
	if !valid {
		return checkOutcome{reason: ReasonSignatureInvalid}
	}
	return checkOutcome{passed: true}
}

// checkTrust consults the trust registry for the issuer DID. An unparseable
// issuer or an unreachable registry fails the check closed.
func (v *Verifier) checkTrust(ctx context.Context, cred *models.Credential) checkOutcome {
	ctx, cancel := context.WithTimeout(ctx, v.checkTimeout)
	defer cancel()
	ctx, span := v.tracer.Start(ctx, tracer.SpanTrustCheck)
	defer span.End(nil)

	issuer, err := id.ParseDID(cred.Issuer)
	if err != nil {
		span.SetAttributes(tracer.Bool(tracer.AttrCheckPassed, false))
		return checkOutcome{reason: ReasonIssuerNotTrusted}
	}
	trusted, err := v.trust.IsTrusted(ctx, issuer)
	if err != nil {
		v.logCheckError(ctx, models.CheckTrust, err)
		span.SetAttributes(tracer.Bool(tracer.AttrCheckPassed, false))
		return checkOutcome{reason: ReasonTrustUnavailable}
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCheckPassed, trusted))
	if !trusted {
		return checkOutcome{reason: ReasonIssuerNotTrusted}
	}
	return checkOutcome{passed: true}
}

// checkRevocation consults the revocation registry. An unreachable registry
// is reported as its own failure reason, never mistaken for "revoked" and
// never waved through as "not revoked".
func (v *Verifier) checkRevocation(ctx context.Context, cred *models.Credential) checkOutcome {
	ctx, cancel := context.WithTimeout(ctx, v.checkTimeout)
	defer cancel()
	ctx, span := v.tracer.Start(ctx, tracer.SpanRevocationCheck)
	defer span.End(nil)

	credID, err := cred.CredentialID()
	if err != nil {
		span.SetAttributes(tracer.Bool(tracer.AttrCheckPassed, false))
		return checkOutcome{reason: ReasonNoProof}
	}
	revoked, err := v.revocation.IsRevoked(ctx, credID)
	if err != nil {
		v.logCheckError(ctx, models.CheckRevocation, err)
		span.SetAttributes(tracer.Bool(tracer.AttrCheckPassed, false))
		return checkOutcome{reason: ReasonRevocationUnavailable}
	}
	span.SetAttributes(tracer.Bool(tracer.AttrCheckPassed, !revoked))
	if revoked {
		return checkOutcome{reason: ReasonRevoked}
	}
	return checkOutcome{passed: true}
}

// firstFailure selects the reason reported on the result, in the fixed
// reporting order signature, trust, revocation.
func firstFailure(signature, trust, revocation checkOutcome) string {
	switch {
	case !signature.passed:
		return signature.reason
	case !trust.passed:
		return trust.reason
	case !revocation.passed:
		return revocation.reason
	}
	return ""
}

func (v *Verifier) record(ctx context.Context, cred *models.Credential, result models.VerificationResult, elapsed time.Duration) {
	if v.metrics != nil {
		v.metrics.ObserveVerificationLatency(elapsed.Seconds())
		if result.Verified {
			v.metrics.IncrementVerificationsPassed()
		} else {
			for check, passed := range map[string]bool{
				models.CheckSignature:  result.Checks.SignatureValid,
				models.CheckTrust:      result.Checks.IssuerTrusted,
				models.CheckRevocation: result.Checks.NotRevoked,
			} {
				if !passed {
					v.metrics.IncrementVerificationsFailed(check)
				}
			}
		}
	}
	if v.logger != nil {
		v.logger.InfoContext(ctx, "credential verified",
			"credential_id", result.CredentialID,
			"issuer_did", result.IssuerDID,
			"verified", result.Verified,
			"error", result.Error,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	if v.auditor != nil {
		event := audit.EventCredentialVerified
		if !result.Verified {
			event = audit.EventCredentialRejected
		}
		v.auditor.Log(ctx, string(event),
			"credential_id", result.CredentialID,
			"prescription_id", cred.CredentialSubject.Prescription.PrescriptionID,
			"actor", result.IssuerDID,
			"decision", decision(result.Verified),
			"reason", result.Error,
		)
	}
}

func (v *Verifier) logCheckError(ctx context.Context, check string, err error) {
	if v.logger != nil {
		v.logger.WarnContext(ctx, "verification check errored",
			"check", check,
			"error", err,
		)
	}
}

func decision(verified bool) string {
	if verified {
		return "pass"
	}
	return "fail"
}
