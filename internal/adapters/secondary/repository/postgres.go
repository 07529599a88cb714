package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

// DBTX : sous-ensemble de *pgxpool.Pool utilisé ici (remplaçable par pgxmock en test).
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sqlLink : DTO entre la table account_links et le domaine.
type sqlLink struct {
	SignerID string
	Platform string
	UserID   string
	LinkedAt time.Time
}

type PostgresLinkRepo struct {
	db DBTX
}

var _ ports.LinkRepository = (*PostgresLinkRepo)(nil)

func NewPostgresLinkRepo(db DBTX) *PostgresLinkRepo {
	return &PostgresLinkRepo{db: db}
}

func (r *PostgresLinkRepo) Exists(ctx context.Context, signerID string, platform domain.PlatformID, userID string) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM account_links WHERE signer_id = $1 AND platform = $2 AND user_id = $3)`

	var ok bool
	if err := r.db.QueryRow(ctx, q, signerID, string(platform), userID).Scan(&ok); err != nil {
		return false, r.handleError("exists", err)
	}
	return ok, nil
}

func (r *PostgresLinkRepo) Delete(ctx context.Context, signerID string, platform domain.PlatformID, userID string) error {
	q := `DELETE FROM account_links WHERE signer_id = $1 AND platform = $2 AND user_id = $3`

	tag, err := r.db.Exec(ctx, q, signerID, string(platform), userID)
	if err != nil {
		return r.handleError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLinkNotFound
	}
	return nil
}

func (r *PostgresLinkRepo) ListBySigner(ctx context.Context, signerID string) ([]domain.AccountLink, error) {
	q := `
		SELECT signer_id, platform, user_id, linked_at
		FROM account_links
		WHERE signer_id = $1
		ORDER BY linked_at ASC
	`
	rows, err := r.db.Query(ctx, q, signerID)
	if err != nil {
		return nil, r.handleError("list", err)
	}
	defer rows.Close()

	links := make([]domain.AccountLink, 0)
	for rows.Next() {
		var l sqlLink
		if err := rows.Scan(&l.SignerID, &l.Platform, &l.UserID, &l.LinkedAt); err != nil {
			return nil, fmt.Errorf("db: scan link: %w", err)
		}
		links = append(links, toDomain(l))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: list links: %w", err)
	}
	return links, nil
}

// --- HELPERS ---

func toDomain(l sqlLink) domain.AccountLink {
	return domain.AccountLink{
		SignerID: l.SignerID,
		Platform: domain.PlatformID(l.Platform),
		UserID:   l.UserID,
		LinkedAt: l.LinkedAt,
	}
}

// handleError traduit les erreurs techniques en erreurs du domaine.
func (r *PostgresLinkRepo) handleError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrLinkNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("db: %s: %s (%s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("db: %s: %w", op, err)
}
