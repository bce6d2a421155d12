// Package models defines the verifiable credential document shapes. The JSON
// layout follows the W3C VC data model and is a wire contract: relying-party
// scanners depend on these field names staying stable.
package models

import (
	"time"

	rxmodels "rxcred/internal/prescription/models"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
)

const (
	// ContextV1 is the base W3C credentials context.
	ContextV1 = "https://www.w3.org/2018/credentials/v1"
	// ContextPrescription is the prescription vocabulary context.
	ContextPrescription = "https://w3id.org/rxcred/v1"

	TypeVerifiableCredential   = "VerifiableCredential"
	TypePrescriptionCredential = "PrescriptionCredential"

	// ProofTypeEd25519 is the only proof suite accepted by the pipeline.
	ProofTypeEd25519 = "Ed25519Signature2020"
	// ProofPurposeAssertion is the fixed proof purpose for issued credentials.
	ProofPurposeAssertion = "assertionMethod"
)

// Proof is the signature block attached to a sealed credential.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	ProofPurpose       string `json:"proofPurpose"`
	VerificationMethod string `json:"verificationMethod"`
	ProofValue         string `json:"proofValue"`
}

// PrescriptionClaim embeds the clinical payload inside credentialSubject.
type PrescriptionClaim struct {
	PrescriptionID string                    `json:"prescriptionId"`
	Medications    []rxmodels.MedicationLine `json:"medications"`
	RepeatCount    int                       `json:"repeatCount"`
	IsRepeat       bool                      `json:"isRepeat"`
}

// CredentialSubject binds the subject DID to the prescription claim.
type CredentialSubject struct {
	ID           string            `json:"id"`
	Prescription PrescriptionClaim `json:"prescription"`
}

// Credential is the W3C-shaped document. A credential with a populated Proof
// is sealed: payload fields must never be mutated in place. Any change means
// minting a new credential with a new ID.
type Credential struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id,omitempty"`
	Type              []string          `json:"type"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	ExpirationDate    string            `json:"expirationDate"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Proof             *Proof            `json:"proof,omitempty"`
}

// Sealed reports whether the credential carries a proof.
func (c *Credential) Sealed() bool {
	return c != nil && c.Proof != nil
}

// CredentialID parses the credential's ID field.
func (c *Credential) CredentialID() (id.CredentialID, error) {
	return id.ParseCredentialID(c.ID)
}

// Validate checks structural invariants on a credential document. It does not
// verify the signature.
func (c *Credential) Validate() error {
	if len(c.Context) == 0 || c.Context[0] != ContextV1 {
		return dErrors.New(dErrors.CodeInvalidInput, "credential context missing or invalid")
	}
	if len(c.Type) == 0 || c.Type[0] != TypeVerifiableCredential {
		return dErrors.New(dErrors.CodeInvalidInput, "credential type missing or invalid")
	}
	if _, err := id.ParseDID(c.Issuer); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "credential issuer is not a valid DID")
	}
	if _, err := id.ParseDID(c.CredentialSubject.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "credential subject is not a valid DID")
	}
	if c.IssuanceDate == "" || c.ExpirationDate == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "credential validity dates required")
	}
	if len(c.CredentialSubject.Prescription.Medications) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "credential carries no medication lines")
	}
	if c.Proof != nil {
		if err := c.Proof.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks structural invariants on a proof block.
func (p *Proof) Validate() error {
	if p.Type != ProofTypeEd25519 {
		return dErrors.New(dErrors.CodeInvalidProof, "unsupported proof type")
	}
	if p.ProofPurpose != ProofPurposeAssertion {
		return dErrors.New(dErrors.CodeInvalidProof, "unsupported proof purpose")
	}
	if p.VerificationMethod == "" {
		return dErrors.New(dErrors.CodeInvalidProof, "proof verification method required")
	}
	if p.ProofValue == "" {
		return dErrors.New(dErrors.CodeInvalidProof, "proof value required")
	}
	if p.Created == "" {
		return dErrors.New(dErrors.CodeInvalidProof, "proof creation time required")
	}
	return nil
}

// CheckSignature names the signature validity check in verification output.
const CheckSignature = "signature_valid"

// CheckTrust names the issuer trust check in verification output.
const CheckTrust = "issuer_trusted"

// CheckRevocation names the revocation check in verification output.
const CheckRevocation = "not_revoked"

// Checks holds the three verification check outcomes.
type Checks struct {
	SignatureValid bool `json:"signature_valid"`
	IssuerTrusted  bool `json:"issuer_trusted"`
	NotRevoked     bool `json:"not_revoked"`
}

// AllPassed reports whether every check succeeded.
func (c Checks) AllPassed() bool {
	return c.SignatureValid && c.IssuerTrusted && c.NotRevoked
}

// VerificationResult is the structured verdict of a verification call. It is
// ephemeral: produced per call, never persisted as authoritative state.
type VerificationResult struct {
	Verified     bool      `json:"verified"`
	Checks       Checks    `json:"checks"`
	IssuerDID    string    `json:"issuer_did"`
	SubjectDID   string    `json:"subject_did"`
	CredentialID string    `json:"credential_id"`
	Error        string    `json:"error,omitempty"`
	VerifiedAt   time.Time `json:"verified_at"`
}

// NewVerificationResult builds a result enforcing the verified-iff-all-checks
// invariant. firstFailure carries the first failing reason in reporting order
// (signature, trust, revocation) and must be empty when all checks passed.
func NewVerificationResult(cred *Credential, checks Checks, firstFailure string, verifiedAt time.Time) VerificationResult {
	result := VerificationResult{
		Verified:   checks.AllPassed(),
		Checks:     checks,
		VerifiedAt: verifiedAt,
	}
	if cred != nil {
		result.IssuerDID = cred.Issuer
		result.SubjectDID = cred.CredentialSubject.ID
		result.CredentialID = cred.ID
	}
	if !result.Verified {
		if firstFailure == "" {
			firstFailure = "verification failed"
		}
		result.Error = firstFailure
	}
	return result
}
