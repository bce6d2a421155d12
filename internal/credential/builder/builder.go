// Package builder assembles unsigned credential documents from prescription
// records. Build is a pure transform: no IDs are minted and no clock is read,
// so identical inputs always produce identical documents and signing retries
// cannot drift.
package builder

import (
	"time"

	"rxcred/internal/credential/models"
	rxmodels "rxcred/internal/prescription/models"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
)

// Build assembles an unsigned credential from a draft prescription record.
// The record must not already be sealed; both DIDs must be syntactically
// valid.
func Build(record *rxmodels.Record, issuerDID, subjectDID id.DID) (*models.Credential, error) {
	if record == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "prescription record is required")
	}
	if record.Sealed() {
		return nil, dErrors.New(dErrors.CodeAlreadySigned, "prescription record is already sealed")
	}
	if _, err := id.ParseDID(issuerDID.String()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid issuer DID")
	}
	if _, err := id.ParseDID(subjectDID.String()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid subject DID")
	}
	if len(record.Medications) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "prescription record carries no medication lines")
	}

	medications := make([]rxmodels.MedicationLine, len(record.Medications))
	copy(medications, record.Medications)

	return &models.Credential{
		Context:        []string{models.ContextV1, models.ContextPrescription},
		Type:           []string{models.TypeVerifiableCredential, models.TypePrescriptionCredential},
		Issuer:         issuerDID.String(),
		IssuanceDate:   record.IssuedAt.UTC().Format(time.RFC3339),
		ExpirationDate: record.ExpiresAt.UTC().Format(time.RFC3339),
		CredentialSubject: models.CredentialSubject{
			ID: subjectDID.String(),
			Prescription: models.PrescriptionClaim{
				PrescriptionID: record.ID.String(),
				Medications:    medications,
				RepeatCount:    record.RepeatCount,
				IsRepeat:       record.IsRepeat,
			},
		},
	}, nil
}
