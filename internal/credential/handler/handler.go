// Package handler exposes the credential lifecycle over HTTP: sealing a
// draft prescription, fetching the issued document and running the
// verification pipeline over a presented credential.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rxcred/internal/credential/models"
	id "rxcred/pkg/domain"
	dErrors "rxcred/pkg/domain-errors"
	"rxcred/pkg/platform/httputil"
	"rxcred/pkg/platform/middleware"
	"rxcred/pkg/platform/sentinel"
)

// Signer seals the credential for a draft prescription.
type Signer interface {
	Sign(ctx context.Context, rxID id.PrescriptionID) (*models.Credential, error)
}

// Verifier runs the verification pipeline over a credential document.
type Verifier interface {
	Verify(ctx context.Context, cred *models.Credential) (models.VerificationResult, error)
}

// Reader fetches issued credential documents.
type Reader interface {
	FindByID(ctx context.Context, credID id.CredentialID) (*models.Credential, error)
	FindByPrescription(ctx context.Context, rxID id.PrescriptionID) (*models.Credential, error)
}

type Handler struct {
	signer      Signer
	verifier    Verifier
	credentials Reader
	logger      *slog.Logger
}

func New(signer Signer, verifier Verifier, credentials Reader, logger *slog.Logger) *Handler {
	return &Handler{signer: signer, verifier: verifier, credentials: credentials, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/prescriptions/{id}/credential", h.HandleSign)
	r.Get("/prescriptions/{id}/credential", h.HandleGetByPrescription)
	r.Get("/credentials/{id}", h.HandleGet)
	r.Post("/credentials/verify", h.HandleVerify)
}

// HandleSign seals the credential for a draft prescription. Signing is
// idempotent-hostile on purpose: a second call reports conflict rather than
// quietly returning the existing credential.
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rxID, err := id.ParsePrescriptionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid prescription id"))
		return
	}

	cred, err := h.signer.Sign(ctx, rxID)
	if err != nil {
		h.logger.ErrorContext(ctx, "sign credential failed", "error", err, "request_id", requestID, "prescription_id", rxID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, cred)
}

// HandleGet returns the issued credential document by credential ID.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	credID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return
	}

	cred, err := h.credentials.FindByID(ctx, credID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		h.logger.ErrorContext(ctx, "get credential failed", "error", err, "request_id", requestID, "credential_id", credID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, cred)
}

// HandleGetByPrescription returns the credential sealed for a prescription.
func (h *Handler) HandleGetByPrescription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rxID, err := id.ParsePrescriptionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid prescription id"))
		return
	}

	cred, err := h.credentials.FindByPrescription(ctx, rxID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		h.logger.ErrorContext(ctx, "get credential by prescription failed", "error", err, "request_id", requestID, "prescription_id", rxID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, cred)
}

// HandleVerify runs the full pipeline over the posted credential document.
// A failed verification is still a 200: the verdict is the payload, and the
// caller reads result.verified.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	cred, ok := httputil.DecodeJSON[models.Credential](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.verifier.Verify(ctx, cred)
	if err != nil {
		h.logger.ErrorContext(ctx, "verify credential failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
