package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"attestor/internal/platform/middleware"
	"attestor/internal/transport/http/json"
	"attestor/internal/transport/http/shared"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

type authorizeVerifierRequest struct {
	Address string `json:"address"`
}

func (h *Handler) handleAuthorizeVerifier(w http.ResponseWriter, r *http.Request) {
	var req authorizeVerifierRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	verifier, err := domain.ParseAddress(req.Address)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid verifier address"))
		return
	}

	if err := h.access.Authorize(r.Context(), middleware.GetCaller(r.Context()), verifier); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, map[string]string{"status": "authorized"})
}

func (h *Handler) handleRevokeVerifier(w http.ResponseWriter, r *http.Request) {
	verifier, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid verifier address"))
		return
	}

	if err := h.access.RevokeVerifier(r.Context(), middleware.GetCaller(r.Context()), verifier); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
