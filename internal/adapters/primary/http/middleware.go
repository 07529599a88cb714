package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

type contextKey string

const (
	signerKey    contextKey = "signer_id"
	requestIDKey contextKey = "request_id"
)

// SignerValidator valide le jeton porteur et renvoie le compte NEAR signataire.
type SignerValidator interface {
	Validate(token string) (string, error)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

func authMiddleware(validator SignerValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := requestIDFromContext(r.Context())
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "missing bearer token", reqID)
				return
			}
			token := strings.TrimSpace(auth[7:])
			if token == "" {
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "empty bearer token", reqID)
				return
			}

			signer, err := validator.Validate(token)
			if err != nil {
				slog.Debug("Rejected bearer token", "request_id", reqID, "error", err)
				writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "invalid or expired token", reqID)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), signerKey, signer)))
		})
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", requestIDFromContext(r.Context()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func signerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(signerKey).(string); ok {
		return v
	}
	return ""
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
