package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"attestor/internal/platform/middleware"
	"attestor/internal/transport/http/json"
	"attestor/internal/transport/http/shared"
	"attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

type submitProofRequest struct {
	Proof uint32 `json:"proof"`
}

type anonymousCheckResponse struct {
	Address  domain.Address `json:"address"`
	Verified bool           `json:"verified"`
}

func (h *Handler) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	info, err := h.verification.RequestVerification(r.Context(), middleware.GetCaller(r.Context()))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, info)
}

func (h *Handler) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req submitProofRequest
	if err := json.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}

	if err := h.verification.SubmitProof(r.Context(), middleware.GetCaller(r.Context()), id, req.Proof); err != nil {
		shared.WriteError(w, err)
		return
	}
	// The outcome arrives with the decryption callback; acknowledge the
	// submission only.
	json.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "submitted"})
}

func (h *Handler) handleRequestInfo(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	info, err := h.verification.Request(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) handleAnonymousCheck(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.URL.Query().Get("address"))
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid address"))
		return
	}

	verified, err := h.verification.VerifyAnonymously(r.Context(), middleware.GetCaller(r.Context()), addr)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, anonymousCheckResponse{Address: addr, Verified: verified})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.verification.Stats(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, stats)
}

func requestIDParam(r *http.Request) (domain.RequestID, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid request id")
	}
	return domain.RequestID(id), nil
}
