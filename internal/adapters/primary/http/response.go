package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

type successResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type errorResponse struct {
	Status string       `json:"status"`
	Error  errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successResponse{Status: domain.StatusSuccess, Data: data})
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, message, requestID string) {
	writeJSON(w, status, errorResponse{
		Status: domain.StatusError,
		Error:  errorPayload{Code: string(code), Message: message, RequestID: requestID},
	})
}

// mapDomainError traduit les erreurs qui rejettent une requête entière.
// Les échecs par cible n'arrivent jamais ici : ils sont dans le corps du lot.
func mapDomainError(err error) (int, domain.ErrorCode) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrNoTargets),
		errors.Is(err, domain.ErrNoContent),
		errors.Is(err, domain.ErrNoPosts),
		errors.Is(err, domain.ErrMissingPostRef),
		errors.Is(err, domain.ErrDuplicateTargets),
		errors.Is(err, domain.ErrUnsupportedPlatform):
		return http.StatusBadRequest, domain.CodeValidationError
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, domain.CodeUnauthorized
	case errors.Is(err, domain.ErrLinkNotFound):
		return http.StatusNotFound, domain.CodeNotFound
	default:
		return http.StatusInternalServerError, domain.CodeInternalError
	}
}

// publicMessage masque le détail des erreurs internes.
func publicMessage(err error, code domain.ErrorCode) string {
	if code == domain.CodeInternalError {
		return "internal error"
	}
	return err.Error()
}
