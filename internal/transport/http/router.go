// Package httptransport is the thin HTTP layer. Handlers decode, delegate
// to domain services, and encode; business rules stay below.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	idmodels "attestor/internal/identity/models"
	"attestor/internal/platform/metrics"
	"attestor/internal/platform/middleware"
	"attestor/internal/platform/requesttime"
	"attestor/internal/transport/http/json"
	vmodels "attestor/internal/verification/models"
	"attestor/pkg/domain"
)

// IdentityService is the credential proof surface the transport needs.
type IdentityService interface {
	Register(ctx context.Context, addr domain.Address, credential uint32, score uint8) (*idmodels.Status, error)
	Status(ctx context.Context, addr domain.Address) (*idmodels.Status, error)
	Renew(ctx context.Context, addr domain.Address) (*idmodels.Status, error)
	Revoke(ctx context.Context, caller, addr domain.Address) error
}

// VerificationService is the challenge/proof surface the transport needs.
type VerificationService interface {
	RequestVerification(ctx context.Context, requester domain.Address) (*vmodels.Info, error)
	SubmitProof(ctx context.Context, caller domain.Address, id domain.RequestID, proof uint32) error
	Request(ctx context.Context, id domain.RequestID) (*vmodels.Info, error)
	VerifyAnonymously(ctx context.Context, caller, addr domain.Address) (bool, error)
	Stats(ctx context.Context) (*vmodels.Stats, error)
}

// AccessService manages the verifier allow-list.
type AccessService interface {
	Authorize(ctx context.Context, caller, verifier domain.Address) error
	RevokeVerifier(ctx context.Context, caller, verifier domain.Address) error
}

// TokenIssuer exchanges an address for a signed bearer token.
type TokenIssuer interface {
	Issue(addr domain.Address) (string, error)
}

// Handler holds the services behind the HTTP surface.
type Handler struct {
	identity     IdentityService
	verification VerificationService
	access       AccessService
	tokens       TokenIssuer
	logger       *slog.Logger
}

func NewHandler(
	identity IdentityService,
	verification VerificationService,
	access AccessService,
	tokens TokenIssuer,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		identity:     identity,
		verification: verification,
		access:       access,
		tokens:       tokens,
		logger:       logger,
	}
}

// NewRouter wires all endpoints with the middleware stack. Reads are
// public; every mutating endpoint sits behind bearer auth.
func NewRouter(h *Handler, validator middleware.TokenValidator, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.ClientFingerprint)
	r.Use(middleware.Latency(m))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/auth/token", h.handleIssueToken)

	// Public reads
	r.Get("/identity/status", h.handleIdentityStatus)
	r.Get("/verification/{id}", h.handleRequestInfo)
	r.Get("/stats", h.handleStats)

	// Authenticated surface
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.Auth(validator, logger))

		pr.Post("/identity/register", h.handleRegister)
		pr.Post("/identity/renew", h.handleRenew)
		pr.Post("/identity/revoke", h.handleRevoke)

		pr.Post("/verification/request", h.handleRequestVerification)
		pr.Post("/verification/{id}/proof", h.handleSubmitProof)
		pr.Get("/verification/check", h.handleAnonymousCheck)

		pr.Post("/admin/verifiers", h.handleAuthorizeVerifier)
		pr.Delete("/admin/verifiers/{address}", h.handleRevokeVerifier)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
