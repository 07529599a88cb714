package ports

import (
	"context"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

// --- INPUTS (Command Pattern) ---

type CreatePostCmd struct {
	SignerID string
	Targets  []domain.Target
	Content  []domain.PostContent
}

// PostRefCmd vise un post existant sur UNE plateforme (reply, quote, repost, like, unlike).
// Content n'est utilisé que pour reply et quote.
type PostRefCmd struct {
	SignerID string
	Targets  []domain.Target
	Platform domain.PlatformID
	PostID   string
	Content  []domain.PostContent
}

type PostRef struct {
	Platform domain.PlatformID
	UserID   string
	PostID   string
}

type DeletePostsCmd struct {
	SignerID string
	Targets  []domain.Target
	Posts    []PostRef
}

// --- PORTS PRIMAIRES (Driving) ---

// CrosspostService : une méthode par endpoint d'action.
// L'erreur ne couvre que le rejet de la requête entière (aucune cible, doublons refusés).
type CrosspostService interface {
	CreatePost(ctx context.Context, cmd CreatePostCmd) (domain.BatchOutcome, error)
	ReplyToPost(ctx context.Context, cmd PostRefCmd) (domain.BatchOutcome, error)
	QuotePost(ctx context.Context, cmd PostRefCmd) (domain.BatchOutcome, error)
	Repost(ctx context.Context, cmd PostRefCmd) (domain.BatchOutcome, error)
	LikePost(ctx context.Context, cmd PostRefCmd) (domain.BatchOutcome, error)
	UnlikePost(ctx context.Context, cmd PostRefCmd) (domain.BatchOutcome, error)
	DeletePosts(ctx context.Context, cmd DeletePostsCmd) (domain.BatchOutcome, error)
}

type AccountService interface {
	ListAccounts(ctx context.Context, signerID string) ([]domain.AccountLink, error)
	AccountStatus(ctx context.Context, signerID string, platform domain.PlatformID, userID string) (bool, error)
	Unlink(ctx context.Context, signerID string, platform domain.PlatformID, userID string) error
}
