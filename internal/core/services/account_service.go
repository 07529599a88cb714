package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

// AccountService expose les liens du signer (lecture et déliaison volontaire).
type AccountService struct {
	links   ports.LinkRepository
	events  ports.EventPublisher
	revoker ports.TokenRevoker
}

var _ ports.AccountService = (*AccountService)(nil)

func NewAccountService(links ports.LinkRepository, events ports.EventPublisher) *AccountService {
	return &AccountService{links: links, events: events}
}

func (s *AccountService) WithTokenRevoker(r ports.TokenRevoker) *AccountService {
	s.revoker = r
	return s
}

func (s *AccountService) ListAccounts(ctx context.Context, signerID string) ([]domain.AccountLink, error) {
	if strings.TrimSpace(signerID) == "" {
		return nil, domain.ErrUnauthorized
	}
	links, err := s.links.ListBySigner(ctx, signerID)
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []domain.AccountLink{}
	}
	return links, nil
}

func (s *AccountService) AccountStatus(ctx context.Context, signerID string, platform domain.PlatformID, userID string) (bool, error) {
	if strings.TrimSpace(signerID) == "" {
		return false, domain.ErrUnauthorized
	}
	return s.links.Exists(ctx, signerID, platform, userID)
}

// Unlink : déliaison demandée par le signer. ErrLinkNotFound remonte tel quel (404).
func (s *AccountService) Unlink(ctx context.Context, signerID string, platform domain.PlatformID, userID string) error {
	if strings.TrimSpace(signerID) == "" {
		return domain.ErrUnauthorized
	}
	if err := s.links.Delete(ctx, signerID, platform, userID); err != nil {
		return err
	}
	revokeTokens(ctx, s.revoker, platform, userID)

	slog.Info("🔌 Account unlinked by signer", "signer_id", signerID, "platform", platform, "user_id", userID)
	if s.events != nil {
		link := domain.AccountLink{SignerID: signerID, Platform: platform, UserID: userID}
		if err := s.events.PublishAccountUnlinked(ctx, link, UnlinkReasonSignerRequest); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("Failed to publish account.unlinked", "platform", platform, "user_id", userID, "error", err)
		}
	}
	return nil
}
