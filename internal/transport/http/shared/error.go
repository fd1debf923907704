package shared

import (
	"errors"
	"net/http"

	"attestor/internal/transport/http/json"
	dErrors "attestor/pkg/domain-errors"
)

// WriteError centralizes domain error translation to HTTP responses.
// It translates transport-agnostic domain errors into HTTP status codes and
// JSON error envelopes.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": string(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		json.WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	// Fallback for unexpected errors
	json.WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeAlreadyVerified, dErrors.CodeAlreadySubmitted,
		dErrors.CodeAlreadyCompleted, dErrors.CodeAlreadyProcessed:
		return http.StatusConflict
	case dErrors.CodeUnauthorized, dErrors.CodeNotYourRequest:
		return http.StatusUnauthorized
	case dErrors.CodeNoActiveProof, dErrors.CodeProofExpired, dErrors.CodeNotEligible:
		return http.StatusForbidden
	case dErrors.CodeChallengeExpired:
		return http.StatusGone
	case dErrors.CodeRequestLimitExceeded:
		return http.StatusTooManyRequests
	case dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
