package services

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

// TargetContext complète une erreur qui ne porte pas sa cible.
type TargetContext struct {
	Platform domain.PlatformID
	UserID   string
}

const unknownErrorMessage = "Unknown error"

// Classify normalise n'importe quel échec en ErrorDetail. Ne panique jamais.
func Classify(err error, tc TargetContext) (detail domain.ErrorDetail) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("❌ Error classification panicked", "panic", r)
			detail = domain.ErrorDetail{
				Platform:    tc.Platform,
				UserID:      tc.UserID,
				Status:      domain.StatusError,
				Message:     fmt.Sprintf("error classification failed: %v", r),
				Code:        domain.CodeInternalError,
				Recoverable: false,
			}
		}
	}()

	var c domain.Classifiable
	if err != nil && errors.As(err, &c) {
		return fromClassifiable(c, tc)
	}

	msg := unknownErrorMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return domain.ErrorDetail{
		Platform:    tc.Platform,
		UserID:      tc.UserID,
		Status:      domain.StatusError,
		Message:     msg,
		Code:        domain.CodePlatformError,
		Recoverable: false,
	}
}

func fromClassifiable(c domain.Classifiable, tc TargetContext) domain.ErrorDetail {
	code := c.ErrorCode()
	if !code.Valid() {
		code = domain.CodeUnknownError
	}
	d := domain.ErrorDetail{
		Platform:    tc.Platform,
		UserID:      tc.UserID,
		Status:      domain.StatusError,
		Message:     c.Error(),
		Code:        code,
		Recoverable: c.IsRecoverable(),
	}
	if d.Message == "" {
		d.Message = unknownErrorMessage
	}

	// Les champs portés par l'erreur priment sur le contexte.
	if pe, ok := c.(*domain.PlatformError); ok {
		if pe.Platform != "" {
			d.Platform = pe.Platform
		}
		if pe.UserID != "" {
			d.UserID = pe.UserID
		}
		if len(pe.Details) > 0 {
			d.Details = maps.Clone(pe.Details)
		}
	}
	return d
}
