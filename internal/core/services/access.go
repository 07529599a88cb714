package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

const (
	UnlinkReasonAuthFailure   = "persistent_auth_failure"
	UnlinkReasonSignerRequest = "signer_request"
)

// LinkAccessVerifier implémente ports.AccessVerifier au-dessus du LinkRepository.
type LinkAccessVerifier struct {
	links   ports.LinkRepository
	events  ports.EventPublisher
	revoker ports.TokenRevoker
}

func NewLinkAccessVerifier(links ports.LinkRepository, events ports.EventPublisher) *LinkAccessVerifier {
	return &LinkAccessVerifier{
		links:  links,
		events: events,
	}
}

// WithTokenRevoker : les jetons sont effacés lors d'une déliaison automatique.
func (v *LinkAccessVerifier) WithTokenRevoker(r ports.TokenRevoker) *LinkAccessVerifier {
	v.revoker = r
	return v
}

func denied(platform domain.PlatformID, userID, msg string) *domain.PlatformError {
	return domain.NewPlatformError(domain.CodeUnauthorized, msg, true).For(platform, userID)
}

func (v *LinkAccessVerifier) VerifyAccess(ctx context.Context, signerID string, platform domain.PlatformID, userID string) error {
	if strings.TrimSpace(signerID) == "" || platform == "" || strings.TrimSpace(userID) == "" {
		return denied(platform, userID, "signer, platform and userId are required")
	}

	ok, err := v.links.Exists(ctx, signerID, platform, userID)
	if err != nil {
		slog.Error("Link lookup failed", "signer_id", signerID, "platform", platform, "user_id", userID, "error", err)
		// panne d'infrastructure, pas un refus : le client ne doit pas relier le compte
		pe := domain.NewPlatformError(domain.CodeInternalError, "unable to verify account access", true).For(platform, userID)
		pe.Cause = err
		return pe.WithDetail("reason", "link_lookup_failed")
	}
	if !ok {
		return denied(platform, userID, "account is not linked to this signer")
	}
	return nil
}

func (v *LinkAccessVerifier) UnlinkAccount(ctx context.Context, signerID string, platform domain.PlatformID, userID string) error {
	if err := v.links.Delete(ctx, signerID, platform, userID); err != nil && !errors.Is(err, domain.ErrLinkNotFound) {
		return err
	}
	revokeTokens(ctx, v.revoker, platform, userID)

	if v.events != nil {
		link := domain.AccountLink{SignerID: signerID, Platform: platform, UserID: userID}
		if err := v.events.PublishAccountUnlinked(ctx, link, UnlinkReasonAuthFailure); err != nil {
			slog.Warn("Failed to publish account.unlinked", "platform", platform, "user_id", userID, "error", err)
		}
	}
	return nil
}

func revokeTokens(ctx context.Context, r ports.TokenRevoker, platform domain.PlatformID, userID string) {
	if r == nil {
		return
	}
	if err := r.Revoke(ctx, platform, userID); err != nil {
		slog.Warn("Failed to revoke platform tokens", "platform", platform, "user_id", userID, "error", err)
	}
}
