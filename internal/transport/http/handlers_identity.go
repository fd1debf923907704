package httptransport

import (
	"net/http"

	"attestor/internal/platform/middleware"
	"attestor/internal/transport/http/json"
	"attestor/internal/transport/http/shared"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

type registerRequest struct {
	Credential uint32 `json:"credential"`
	Score      uint8  `json:"score"`
}

type tokenRequest struct {
	Address string `json:"address"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type revokeRequest struct {
	Address string `json:"address"`
}

// handleIssueToken exchanges an address for a signed bearer token. This is
// the single-tenant stand-in for a real wallet handshake.
func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid address"))
		return
	}
	token, err := h.tokens.Issue(addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer"})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	status, err := h.identity.Register(r.Context(), middleware.GetCaller(r.Context()), req.Credential, req.Score)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, status)
}

func (h *Handler) handleIdentityStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.URL.Query().Get("address"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid address"))
		return
	}

	status, err := h.identity.Status(r.Context(), addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleRenew(w http.ResponseWriter, r *http.Request) {
	status, err := h.identity.Renew(r.Context(), middleware.GetCaller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid address"))
		return
	}

	if err := h.identity.Revoke(r.Context(), middleware.GetCaller(r.Context()), addr); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
