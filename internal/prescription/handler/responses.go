package handler

import (
	"time"

	"rxcred/internal/prescription/models"
)

type MedicationLineResponse struct {
	Name         string `json:"name"`
	Strength     string `json:"strength"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

type PrescriptionResponse struct {
	ID           string                   `json:"id"`
	IssuerDID    string                   `json:"issuer_did"`
	SubjectDID   string                   `json:"subject_did"`
	Medications  []MedicationLineResponse `json:"medications"`
	IssuedAt     time.Time                `json:"issued_at"`
	ExpiresAt    time.Time                `json:"expires_at"`
	RepeatCount  int                      `json:"repeat_count"`
	IsRepeat     bool                     `json:"is_repeat"`
	State        models.State             `json:"state"`
	CredentialID string                   `json:"credential_id,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

type PrescriptionListResponse struct {
	Prescriptions []*PrescriptionResponse `json:"prescriptions"`
}

func toPrescriptionResponse(r *models.Record) *PrescriptionResponse {
	resp := &PrescriptionResponse{
		ID:          r.ID.String(),
		IssuerDID:   r.IssuerDID.String(),
		SubjectDID:  r.SubjectDID.String(),
		IssuedAt:    r.IssuedAt,
		ExpiresAt:   r.ExpiresAt,
		RepeatCount: r.RepeatCount,
		IsRepeat:    r.IsRepeat,
		State:       r.State,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if !r.CredentialID.IsNil() {
		resp.CredentialID = r.CredentialID.String()
	}
	for _, m := range r.Medications {
		resp.Medications = append(resp.Medications, MedicationLineResponse{
			Name:         m.Name,
			Strength:     m.Strength,
			Quantity:     m.Quantity,
			Instructions: m.Instructions,
		})
	}
	return resp
}

func toPrescriptionListResponse(records []*models.Record) *PrescriptionListResponse {
	out := &PrescriptionListResponse{Prescriptions: make([]*PrescriptionResponse, 0, len(records))}
	for _, r := range records {
		out.Prescriptions = append(out.Prescriptions, toPrescriptionResponse(r))
	}
	return out
}
