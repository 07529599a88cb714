package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

// DefaultRateLimitFailOpen : en cas de panne du suivi des quotas, on tente l'action
// et on laisse la plateforme répondre 429.
const DefaultRateLimitFailOpen = true

// QuotaRateLimiter lit les quotas observés sur les réponses des plateformes.
type QuotaRateLimiter struct {
	store    ports.RateLimitStore
	failOpen bool
	nowFn    func() time.Time
}

func NewQuotaRateLimiter(store ports.RateLimitStore, failOpen bool) *QuotaRateLimiter {
	return &QuotaRateLimiter{
		store:    store,
		failOpen: failOpen,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *QuotaRateLimiter) CanPerformAction(ctx context.Context, platform domain.PlatformID, action domain.ActionType) bool {
	snap, err := l.store.Snapshot(ctx, platform, action)
	if err != nil {
		slog.Warn("Rate limit status unavailable", "platform", platform, "action", action, "fail_open", l.failOpen, "error", err)
		return l.failOpen
	}
	if snap == nil {
		return true
	}
	// Quota épuisé uniquement tant que la fenêtre n'est pas réinitialisée.
	if snap.Remaining <= 0 && snap.ResetAt.After(l.nowFn()) {
		slog.Debug("Rate limit exhausted", "platform", platform, "action", action, "reset_at", snap.ResetAt)
		return false
	}
	return true
}
