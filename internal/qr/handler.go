package qr

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

// Reader fetches issued credential documents.
type Reader interface {
	FindByID(ctx context.Context, credID id.CredentialID) (*models.Credential, error)
}

// Handler serves QR payloads and rendered images for issued credentials.
type Handler struct {
	codec       *Codec
	credentials Reader
	logger      *slog.Logger
}

func NewHandler(codec *Codec, credentials Reader, logger *slog.Logger) *Handler {
	return &Handler{codec: codec, credentials: credentials, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/credentials/{id}/qr", h.HandleGetPayload)
	r.Get("/credentials/{id}/qr.png", h.HandleGetImage)
}

// HandleGetPayload returns the QR payload as JSON.
func (h *Handler) HandleGetPayload(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.encode(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payload)
}

// HandleGetImage returns the QR code as a PNG.
func (h *Handler) HandleGetImage(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.encode(w, r)
	if !ok {
		return
	}
	png, err := h.codec.Image(payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) encode(w http.ResponseWriter, r *http.Request) (*Payload, bool) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	credID, err := id.ParseCredentialID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return nil, false
	}

	cred, err := h.credentials.FindByID(ctx, credID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		h.logger.ErrorContext(ctx, "load credential for qr failed", "error", err, "request_id", requestID, "credential_id", credID)
		httputil.WriteError(w, err)
		return nil, false
	}

	payload, err := h.codec.Encode(cred)
	if err != nil {
		h.logger.ErrorContext(ctx, "encode qr failed", "error", err, "request_id", requestID, "credential_id", credID)
		httputil.WriteError(w, err)
		return nil, false
	}
	return payload, true
}
