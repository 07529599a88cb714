package domain

import (
	"errors"
	"net/http"
)

// --- ERREURS DU DOMAINE ---
var (
	ErrLinkNotFound        = errors.New("account link not found")
	ErrNoTargets           = errors.New("at least one target is required")
	ErrNoContent           = errors.New("at least one content item is required")
	ErrNoPosts             = errors.New("at least one post is required")
	ErrMissingPostRef      = errors.New("platform and postId are required")
	ErrDuplicateTargets    = errors.New("duplicate targets in request")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrTokenNotFound       = errors.New("platform token not found")
	ErrTokenExpired        = errors.New("platform token expired")
	ErrEmptyOutcome        = errors.New("batch produced no result")
	ErrUnauthorized        = errors.New("unauthorized")
)

// ErrorCode est l'énumération fermée exposée aux clients dans "code".
type ErrorCode string

const (
	CodeUnauthorized           ErrorCode = "UNAUTHORIZED"
	CodeRateLimited            ErrorCode = "RATE_LIMITED"
	CodeValidationError        ErrorCode = "VALIDATION_ERROR"
	CodePlatformError          ErrorCode = "PLATFORM_ERROR"
	CodeContentPolicyViolation ErrorCode = "CONTENT_POLICY_VIOLATION"
	CodeDuplicateContent       ErrorCode = "DUPLICATE_CONTENT"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeInternalError          ErrorCode = "INTERNAL_ERROR"
	CodeUnknownError           ErrorCode = "UNKNOWN_ERROR"
)

var codeStatus = map[ErrorCode]int{
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeRateLimited:            http.StatusTooManyRequests,
	CodeValidationError:        http.StatusBadRequest,
	CodePlatformError:          http.StatusInternalServerError,
	CodeContentPolicyViolation: http.StatusBadRequest,
	CodeDuplicateContent:       http.StatusBadRequest,
	CodeNotFound:               http.StatusNotFound,
	CodeInternalError:          http.StatusInternalServerError,
	CodeUnknownError:           http.StatusBadRequest,
}

func (c ErrorCode) Valid() bool {
	_, ok := codeStatus[c]
	return ok
}

// HTTPStatus : table fixe code -> statut, 400 par défaut.
func (c ErrorCode) HTTPStatus() int {
	if s, ok := codeStatus[c]; ok {
		return s
	}
	return http.StatusBadRequest
}

// Classifiable est la capacité que toute erreur de plateforme expose
// pour être normalisée sans branchement par type.
type Classifiable interface {
	error
	ErrorCode() ErrorCode
	IsRecoverable() bool
}

// PlatformError est la forme normalisée des échecs côté plateforme.
type PlatformError struct {
	Code        ErrorCode
	Message     string
	Recoverable bool
	Platform    PlatformID
	UserID      string
	Details     map[string]any
	Cause       error
}

func NewPlatformError(code ErrorCode, message string, recoverable bool) *PlatformError {
	return &PlatformError{Code: code, Message: message, Recoverable: recoverable}
}

func (e *PlatformError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Code)
}

func (e *PlatformError) Unwrap() error { return e.Cause }

func (e *PlatformError) ErrorCode() ErrorCode { return e.Code }

func (e *PlatformError) IsRecoverable() bool { return e.Recoverable }

// For rattache la cible à l'erreur (copie, l'original n'est pas modifié).
func (e *PlatformError) For(platform PlatformID, userID string) *PlatformError {
	cp := *e
	cp.Platform = platform
	cp.UserID = userID
	return &cp
}

func (e *PlatformError) WithDetail(key string, value any) *PlatformError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// ErrorDetail : une entrée de la liste "errors" d'un lot.
type ErrorDetail struct {
	Platform    PlatformID     `json:"platform,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Code        ErrorCode      `json:"code"`
	Recoverable bool           `json:"recoverable"`
	Details     map[string]any `json:"details,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DetailPostedIDs : ids déjà publiés avant l'échec (fil interrompu).
// Leur présence signale un effet de bord, l'action ne doit pas être rejouée.
const DetailPostedIDs = "postedIds"
