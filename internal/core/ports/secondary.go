package ports

import (
	"context"
	"time"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

// --- ACCÈS (liens signer -> compte) ---

// AccessVerifier confirme qu'un signer a lié le compte visé.
// Un refus est un résultat attendu : *domain.PlatformError UNAUTHORIZED, jamais une panique.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, signerID string, platform domain.PlatformID, userID string) error
	UnlinkAccount(ctx context.Context, signerID string, platform domain.PlatformID, userID string) error
}

// LinkRepository est le stockage des AccountLink (Postgres).
// Les liens sont créés par le flux OAuth : ce service ne fait que lire et supprimer.
type LinkRepository interface {
	Exists(ctx context.Context, signerID string, platform domain.PlatformID, userID string) (bool, error)
	Delete(ctx context.Context, signerID string, platform domain.PlatformID, userID string) error
	ListBySigner(ctx context.Context, signerID string) ([]domain.AccountLink, error)
}

// --- QUOTAS ---

type RateLimiter interface {
	CanPerformAction(ctx context.Context, platform domain.PlatformID, action domain.ActionType) bool
}

// RateLimitSnapshot : dernier état de quota remonté par la plateforme.
type RateLimitSnapshot struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimitStore garde les quotas observés (entêtes x-rate-limit-*).
type RateLimitStore interface {
	Snapshot(ctx context.Context, platform domain.PlatformID, action domain.ActionType) (*RateLimitSnapshot, error)
	Observe(ctx context.Context, platform domain.PlatformID, action domain.ActionType, snap RateLimitSnapshot) error
}

// --- PLATEFORMES ---

// PlatformExecutor est la frontière d'I/O vers une plateforme sociale.
// Aucune orchestration ici : chaque échec sort en *domain.PlatformError.
type PlatformExecutor interface {
	Platform() domain.PlatformID
	CreatePost(ctx context.Context, userID string, content []domain.PostContent, media *domain.MediaCache) (domain.ActionResult, error)
	ReplyToPost(ctx context.Context, userID, postID string, content []domain.PostContent, media *domain.MediaCache) (domain.ActionResult, error)
	QuotePost(ctx context.Context, userID, postID string, content []domain.PostContent, media *domain.MediaCache) (domain.ActionResult, error)
	Repost(ctx context.Context, userID, postID string) (domain.ActionResult, error)
	DeletePost(ctx context.Context, userID, postID string) (domain.ActionResult, error)
	LikePost(ctx context.Context, userID, postID string) (domain.ActionResult, error)
	UnlikePost(ctx context.Context, userID, postID string) (domain.ActionResult, error)
}

type ExecutorRegistry interface {
	Executor(platform domain.PlatformID) (PlatformExecutor, error)
}

// TokenStore est alimenté par le flux OAuth (hors de ce service).
type TokenStore interface {
	AccessToken(ctx context.Context, platform domain.PlatformID, userID string) (string, error)
}

// TokenRevoker efface les jetons d'un compte délié.
type TokenRevoker interface {
	Revoke(ctx context.Context, platform domain.PlatformID, userID string) error
}

// --- MESSAGERIE ---

// ActivityRecorder : télémétrie best-effort pour le leaderboard.
type ActivityRecorder interface {
	TrackAction(ctx context.Context, activity domain.Activity) error
}

type EventPublisher interface {
	PublishAccountUnlinked(ctx context.Context, link domain.AccountLink, reason string) error
}

// Sleeper est le point de suspension du pacing inter-cibles.
type Sleeper interface {
	Sleep(d time.Duration)
}
