// Package handler exposes the prescription lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rxcred/internal/prescription/models"
	"rxcred/internal/prescription/service"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/httputil"
	"rxcred/pkg/platform/middleware"
)

// Service defines the prescription operations the handler exposes.
// Returns domain objects, not HTTP response DTOs.
type Service interface {
	CreateDraft(ctx context.Context, cmd *service.CreateDraftCommand) (*models.Record, error)
	Get(ctx context.Context, rxID id.PrescriptionID) (*models.Record, error)
	GetByCredential(ctx context.Context, credID id.CredentialID) (*models.Record, error)
	ListBySubject(ctx context.Context, subjectDID id.DID) ([]*models.Record, error)
	Activate(ctx context.Context, rxID id.PrescriptionID) (*models.Record, error)
	Dispense(ctx context.Context, rxID id.PrescriptionID, pharmacyDID string) (*models.Record, error)
	Revoke(ctx context.Context, rxID id.PrescriptionID, reason string) (*models.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/prescriptions", h.HandleCreate)
	r.Get("/prescriptions/{id}", h.HandleGet)
	r.Post("/prescriptions/{id}/activate", h.HandleActivate)
	r.Post("/prescriptions/{id}/dispense", h.HandleDispense)
	r.Post("/prescriptions/{id}/revoke", h.HandleRevoke)
	r.Get("/subjects/{did}/prescriptions", h.HandleListBySubject)
	r.Get("/credentials/{id}/prescription", h.HandleGetByCredential)
}

// HandleCreate creates a draft prescription.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreatePrescriptionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.CreateDraft(ctx, req.toCommand())
	if err != nil {
		h.logger.ErrorContext(ctx, "create prescription failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, toPrescriptionResponse(record))
}

// HandleGet returns a prescription by ID. Reading may move the record to
// Expired when its validity window has passed.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rxID, err := id.ParsePrescriptionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid prescription id"))
		return
	}

	record, err := h.service.Get(ctx, rxID)
	if err != nil {
		h.logger.ErrorContext(ctx, "get prescription failed", "error", err, "request_id", requestID, "prescription_id", rxID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPrescriptionResponse(record))
}

// HandleGetByCredential resolves the prescription behind a credential ID.
func (h *Handler) HandleGetByCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	credID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return
	}

	record, err := h.service.GetByCredential(ctx, credID)
	if err != nil {
		h.logger.ErrorContext(ctx, "get prescription by credential failed", "error", err, "request_id", requestID, "credential_id", credID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPrescriptionResponse(record))
}

// HandleListBySubject lists a patient's prescriptions.
func (h *Handler) HandleListBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	subjectDID, err := id.ParseDID(chi.URLParam(r, "did"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject DID"))
		return
	}

	records, err := h.service.ListBySubject(ctx, subjectDID)
	if err != nil {
		h.logger.ErrorContext(ctx, "list prescriptions failed", "error", err, "request_id", requestID, "subject_did", subjectDID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPrescriptionListResponse(records))
}

// HandleActivate moves a signed prescription into circulation.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rxID, err := id.ParsePrescriptionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid prescription id"))
		return
	}

	record, err := h.service.Activate(ctx, rxID)
	if err != nil {
		h.logger.ErrorContext(ctx, "activate prescription failed", "error", err, "request_id", requestID, "prescription_id", rxID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPrescriptionResponse(record))
}

// HandleDispense dispenses a prescription after in-call verification.
func (h *Handler) HandleDispense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rxID, err := id.ParsePrescriptionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid prescription id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[DispenseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Dispense(ctx, rxID, req.PharmacyDID)
	if err != nil {
		h.logger.ErrorContext(ctx, "dispense prescription failed", "error", err, "request_id", requestID, "prescription_id", rxID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPrescriptionResponse(record))
}

// HandleRevoke withdraws a prescription and its credential.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rxID, err := id.ParsePrescriptionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid prescription id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.Revoke(ctx, rxID, req.Reason)
	if err != nil {
		h.logger.ErrorContext(ctx, "revoke prescription failed", "error", err, "request_id", requestID, "prescription_id", rxID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, toPrescriptionResponse(record))
}
