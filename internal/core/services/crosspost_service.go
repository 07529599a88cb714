package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

type CrosspostService struct {
	orchestrator *Orchestrator
	executors    ports.ExecutorRegistry
}

// Vérification statique
var _ ports.CrosspostService = (*CrosspostService)(nil)

func NewCrosspostService(orchestrator *Orchestrator, executors ports.ExecutorRegistry) *CrosspostService {
	return &CrosspostService{orchestrator: orchestrator, executors: executors}
}

// executorFor : une plateforme sans exécuteur est une erreur de requête, pas de plateforme.
func (s *CrosspostService) executorFor(platform domain.PlatformID) (ports.PlatformExecutor, error) {
	ex, err := s.executors.Executor(platform)
	if err != nil {
		pe := domain.NewPlatformError(domain.CodeValidationError, fmt.Sprintf("platform %q is not supported", platform), false)
		pe.Cause = err
		return nil, pe
	}
	return ex, nil
}

func (s *CrosspostService) CreatePost(ctx context.Context, cmd ports.CreatePostCmd) (domain.BatchOutcome, error) {
	if len(cmd.Targets) == 0 {
		return domain.BatchOutcome{}, domain.ErrNoTargets
	}
	if len(cmd.Content) == 0 {
		return domain.BatchOutcome{}, domain.ErrNoContent
	}

	return s.orchestrator.ProcessTargets(ctx, cmd.SignerID, cmd.Targets, domain.ActionPost, BatchOptions{},
		func(ctx context.Context, t domain.Target, _ int, scope *BatchScope) (domain.ActionResult, error) {
			ex, err := s.executorFor(t.Platform)
			if err != nil {
				return domain.ActionResult{}, err
			}
			return ex.CreatePost(ctx, t.UserID, cmd.Content, scope.Media)
		})
}

func (s *CrosspostService) ReplyToPost(ctx context.Context, cmd ports.PostRefCmd) (domain.BatchOutcome, error) {
	if err := checkPostRef(cmd, true); err != nil {
		return domain.BatchOutcome{}, err
	}
	return s.onPost(ctx, cmd, domain.ActionReply, func(ctx context.Context, ex ports.PlatformExecutor, t domain.Target, scope *BatchScope) (domain.ActionResult, error) {
		return ex.ReplyToPost(ctx, t.UserID, cmd.PostID, cmd.Content, scope.Media)
	})
}

func (s *CrosspostService) QuotePost(ctx context.Context, cmd ports.PostRefCmd) (domain.BatchOutcome, error) {
	if err := checkPostRef(cmd, true); err != nil {
		return domain.BatchOutcome{}, err
	}
	return s.onPost(ctx, cmd, domain.ActionQuote, func(ctx context.Context, ex ports.PlatformExecutor, t domain.Target, scope *BatchScope) (domain.ActionResult, error) {
		return ex.QuotePost(ctx, t.UserID, cmd.PostID, cmd.Content, scope.Media)
	})
}

func (s *CrosspostService) Repost(ctx context.Context, cmd ports.PostRefCmd) (domain.BatchOutcome, error) {
	if err := checkPostRef(cmd, false); err != nil {
		return domain.BatchOutcome{}, err
	}
	return s.onPost(ctx, cmd, domain.ActionRepost, func(ctx context.Context, ex ports.PlatformExecutor, t domain.Target, _ *BatchScope) (domain.ActionResult, error) {
		return ex.Repost(ctx, t.UserID, cmd.PostID)
	})
}

func (s *CrosspostService) LikePost(ctx context.Context, cmd ports.PostRefCmd) (domain.BatchOutcome, error) {
	if err := checkPostRef(cmd, false); err != nil {
		return domain.BatchOutcome{}, err
	}
	return s.onPost(ctx, cmd, domain.ActionLike, func(ctx context.Context, ex ports.PlatformExecutor, t domain.Target, _ *BatchScope) (domain.ActionResult, error) {
		return ex.LikePost(ctx, t.UserID, cmd.PostID)
	})
}

func (s *CrosspostService) UnlikePost(ctx context.Context, cmd ports.PostRefCmd) (domain.BatchOutcome, error) {
	if err := checkPostRef(cmd, false); err != nil {
		return domain.BatchOutcome{}, err
	}
	return s.onPost(ctx, cmd, domain.ActionUnlike, func(ctx context.Context, ex ports.PlatformExecutor, t domain.Target, _ *BatchScope) (domain.ActionResult, error) {
		return ex.UnlikePost(ctx, t.UserID, cmd.PostID)
	})
}

// DeletePosts : une unité par post, rattachée au compte qui l'a publié.
// Un post dont le compte n'est pas dans les cibles est refusé en VALIDATION_ERROR.
func (s *CrosspostService) DeletePosts(ctx context.Context, cmd ports.DeletePostsCmd) (domain.BatchOutcome, error) {
	if len(cmd.Targets) == 0 {
		return domain.BatchOutcome{}, domain.ErrNoTargets
	}
	if len(cmd.Posts) == 0 {
		return domain.BatchOutcome{}, domain.ErrNoPosts
	}

	allowed := make(map[string]struct{}, len(cmd.Targets))
	for _, t := range cmd.Targets {
		allowed[t.Key()] = struct{}{}
	}
	units := make([]domain.Target, len(cmd.Posts))
	for i, p := range cmd.Posts {
		units[i] = domain.Target{Platform: p.Platform, UserID: p.UserID}
	}

	opts := BatchOptions{
		DuplicatePolicy: domain.DuplicateDedupe,
		UnitKey: func(i int, t domain.Target) string {
			return t.Key() + ":" + cmd.Posts[i].PostID
		},
		Admit: func(i int, t domain.Target) error {
			if strings.TrimSpace(cmd.Posts[i].PostID) == "" {
				return domain.NewPlatformError(domain.CodeValidationError, "postId is required", false)
			}
			if _, ok := allowed[t.Key()]; !ok {
				return domain.NewPlatformError(domain.CodeValidationError,
					fmt.Sprintf("post %s belongs to %s which is not among the targets", cmd.Posts[i].PostID, t.Key()), false)
			}
			return nil
		},
	}

	return s.orchestrator.ProcessTargets(ctx, cmd.SignerID, units, domain.ActionDelete, opts,
		func(ctx context.Context, t domain.Target, i int, _ *BatchScope) (domain.ActionResult, error) {
			ex, err := s.executorFor(t.Platform)
			if err != nil {
				return domain.ActionResult{}, err
			}
			return ex.DeletePost(ctx, t.UserID, cmd.Posts[i].PostID)
		})
}

type postAction func(ctx context.Context, ex ports.PlatformExecutor, t domain.Target, scope *BatchScope) (domain.ActionResult, error)

// onPost : actions visant un post existant, limitées à la plateforme de ce post.
func (s *CrosspostService) onPost(ctx context.Context, cmd ports.PostRefCmd, action domain.ActionType, do postAction) (domain.BatchOutcome, error) {
	opts := BatchOptions{RequiredPlatform: cmd.Platform}
	return s.orchestrator.ProcessTargets(ctx, cmd.SignerID, cmd.Targets, action, opts,
		func(ctx context.Context, t domain.Target, _ int, scope *BatchScope) (domain.ActionResult, error) {
			ex, err := s.executorFor(t.Platform)
			if err != nil {
				return domain.ActionResult{}, err
			}
			return do(ctx, ex, t, scope)
		})
}

func checkPostRef(cmd ports.PostRefCmd, needsContent bool) error {
	if len(cmd.Targets) == 0 {
		return domain.ErrNoTargets
	}
	if cmd.Platform == "" || strings.TrimSpace(cmd.PostID) == "" {
		return domain.ErrMissingPostRef
	}
	if needsContent && len(cmd.Content) == 0 {
		return domain.ErrNoContent
	}
	return nil
}
