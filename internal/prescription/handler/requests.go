package handler

import (
	"strings"
	"time"

	"rxcred/internal/prescription/models"
	"rxcred/internal/prescription/service"
	dErrors "rxcred/pkg/domain-errors"
)

// HTTP request DTOs. Field-level validation happens in the service layer;
// the DTOs only normalize input and reject shapes the service cannot express.

type MedicationLineRequest struct {
	Name         string `json:"name"`
	Strength     string `json:"strength"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions"`
}

type CreatePrescriptionRequest struct {
	IssuerDID   string                  `json:"issuer_did"`
	SubjectDID  string                  `json:"subject_did"`
	Medications []MedicationLineRequest `json:"medications"`
	IssuedAt    time.Time               `json:"issued_at"`
	ExpiresAt   time.Time               `json:"expires_at"`
	RepeatCount int                     `json:"repeat_count"`
	IsRepeat    bool                    `json:"is_repeat"`
}

func (r *CreatePrescriptionRequest) Normalize() {
	if r == nil {
		return
	}
	r.IssuerDID = strings.TrimSpace(r.IssuerDID)
	r.SubjectDID = strings.TrimSpace(r.SubjectDID)
	for i := range r.Medications {
		r.Medications[i].Name = strings.TrimSpace(r.Medications[i].Name)
		r.Medications[i].Strength = strings.TrimSpace(r.Medications[i].Strength)
		r.Medications[i].Instructions = strings.TrimSpace(r.Medications[i].Instructions)
	}
}

func (r *CreatePrescriptionRequest) toCommand() *service.CreateDraftCommand {
	medications := make([]models.MedicationLine, 0, len(r.Medications))
	for _, m := range r.Medications {
		medications = append(medications, models.MedicationLine{
			Name:         m.Name,
			Strength:     m.Strength,
			Quantity:     m.Quantity,
			Instructions: m.Instructions,
		})
	}
	return &service.CreateDraftCommand{
		IssuerDID:   r.IssuerDID,
		SubjectDID:  r.SubjectDID,
		Medications: medications,
		IssuedAt:    r.IssuedAt,
		ExpiresAt:   r.ExpiresAt,
		RepeatCount: r.RepeatCount,
		IsRepeat:    r.IsRepeat,
	}
}

type DispenseRequest struct {
	PharmacyDID string `json:"pharmacy_did"`
}

func (r *DispenseRequest) Normalize() {
	if r == nil {
		return
	}
	r.PharmacyDID = strings.TrimSpace(r.PharmacyDID)
}

func (r *DispenseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.PharmacyDID == "" {
		return dErrors.New(dErrors.CodeValidation, "pharmacy_did is required")
	}
	return nil
}

type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Normalize() {
	if r == nil {
		return
	}
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}
