package twitter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

// apiError couvre les deux formes d'erreur de l'API v2 (problem+json et "errors").
type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Errors []struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"errors"`
}

func (e apiError) message() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case len(e.Errors) > 0 && e.Errors[0].Message != "":
		return e.Errors[0].Message
	default:
		return e.Title
	}
}

// mapError convertit une réponse non-2xx en erreur normalisée.
func mapError(status int, body []byte, h http.Header) *domain.PlatformError {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := ae.message()
	if msg == "" {
		msg = fmt.Sprintf("twitter returned %d", status)
	}

	var pe *domain.PlatformError
	switch {
	case status == http.StatusUnauthorized:
		pe = domain.NewPlatformError(domain.CodeUnauthorized, msg, true)
	case status == http.StatusTooManyRequests:
		pe = domain.NewPlatformError(domain.CodeRateLimited, msg, true)
		if reset := h.Get("x-rate-limit-reset"); reset != "" {
			pe = pe.WithDetail("reset", reset)
		}
	case status == http.StatusForbidden && isDuplicate(msg):
		pe = domain.NewPlatformError(domain.CodeDuplicateContent, msg, false)
	case status == http.StatusForbidden:
		pe = domain.NewPlatformError(domain.CodeContentPolicyViolation, msg, false)
	case status == http.StatusNotFound:
		pe = domain.NewPlatformError(domain.CodeNotFound, msg, false)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		pe = domain.NewPlatformError(domain.CodeValidationError, msg, false)
	case status >= 500:
		pe = domain.NewPlatformError(domain.CodePlatformError, msg, true)
	default:
		pe = domain.NewPlatformError(domain.CodePlatformError, msg, false)
	}
	return pe.WithDetail("status", status)
}

func isDuplicate(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "duplicate")
}
