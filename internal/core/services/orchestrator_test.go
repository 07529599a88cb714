package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

type orchestratorFixture struct {
	access   *fakeAccess
	limiter  *fakeLimiter
	recorder *fakeRecorder
	sleeper  *fakeSleeper
	orch     *Orchestrator
}

func newOrchestratorFixture(t *testing.T, mutate func(*OrchestratorConfig)) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		access:   newFakeAccess(),
		limiter:  &fakeLimiter{blocked: map[domain.PlatformID]bool{}},
		recorder: &fakeRecorder{},
		sleeper:  &fakeSleeper{},
	}
	cfg := OrchestratorConfig{
		PacingDelays:    map[domain.PlatformID]time.Duration{domain.PlatformTwitter: time.Second},
		DuplicatePolicy: domain.DuplicateDedupe,
		Sleeper:         f.sleeper,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.orch = NewOrchestrator(f.access, f.limiter, f.recorder, cfg)
	return f
}

func TestProcessTargets_PreservesRequestOrder(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)
	f.access.deny[tw("b").Key()] = denied(domain.PlatformTwitter, "b", "account is not linked to this signer")

	targets := []domain.Target{tw("a"), tw("b"), tw("c"), tw("d")}
	var executed []string
	out, err := f.orch.ProcessTargets(context.Background(), testSigner, targets, domain.ActionPost, BatchOptions{},
		func(_ context.Context, tg domain.Target, _ int, _ *BatchScope) (domain.ActionResult, error) {
			executed = append(executed, tg.UserID)
			if tg.UserID == "d" {
				return domain.ActionResult{}, errors.New("boom")
			}
			return domain.ActionResult{ID: "id-" + tg.UserID, Success: true}, nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c", "d"}, executed)
	require.Len(t, out.Successes, 2)
	require.Len(t, out.Errors, 2)
	assert.Equal(t, "a", out.Successes[0].UserID)
	assert.Equal(t, "c", out.Successes[1].UserID)
	assert.Equal(t, "b", out.Errors[0].UserID)
	assert.Equal(t, "d", out.Errors[1].UserID)
	assert.Equal(t, len(targets), out.Total())
}

func TestProcessTargets_AccessDenialShortCircuits(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)
	f.access.deny[tw("a").Key()] = denied(domain.PlatformTwitter, "a", "account is not linked to this signer")

	calls := 0
	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a")}, domain.ActionPost, BatchOptions{},
		func(context.Context, domain.Target, int, *BatchScope) (domain.ActionResult, error) {
			calls++
			return domain.ActionResult{}, nil
		})
	require.NoError(t, err)

	assert.Zero(t, calls)
	assert.Zero(t, f.limiter.calls)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, domain.CodeUnauthorized, out.Errors[0].Code)
	assert.Empty(t, f.access.unlinked, "access denial never unlinks")
}

func TestProcessTargets_RateLimitShortCircuits(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)
	f.limiter.blocked[domain.PlatformTwitter] = true

	calls := 0
	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a")}, domain.ActionLike, BatchOptions{},
		func(context.Context, domain.Target, int, *BatchScope) (domain.ActionResult, error) {
			calls++
			return domain.ActionResult{}, nil
		})
	require.NoError(t, err)

	assert.Zero(t, calls)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, domain.CodeRateLimited, out.Errors[0].Code)
	assert.True(t, out.Errors[0].Recoverable)
	assert.Equal(t, "a", out.Errors[0].UserID)
}

func TestProcessTargets_UnauthorizedUnlinksOnce(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)
	f.access.unlinkErr = errors.New("db down")

	expired := domain.NewPlatformError(domain.CodeUnauthorized, "token revoked", true)
	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a"), tw("b")}, domain.ActionPost, BatchOptions{},
		func(_ context.Context, tg domain.Target, _ int, _ *BatchScope) (domain.ActionResult, error) {
			if tg.UserID == "a" {
				return domain.ActionResult{}, expired
			}
			return domain.ActionResult{ID: "ok", Success: true}, nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{tw("a").Key()}, f.access.unlinked)
	assert.Equal(t, []string{testSigner}, f.access.unlinkers)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, domain.CodeUnauthorized, out.Errors[0].Code)
	require.Len(t, out.Successes, 1)
	assert.Equal(t, "b", out.Successes[0].UserID)
}

func TestProcessTargets_AuthRetryRecovers(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, func(c *OrchestratorConfig) {
		c.AuthRetryAttempts = 2
		c.AuthRetryDelay = 50 * time.Millisecond
	})

	attempts := 0
	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a")}, domain.ActionPost, BatchOptions{},
		func(context.Context, domain.Target, int, *BatchScope) (domain.ActionResult, error) {
			attempts++
			if attempts == 1 {
				return domain.ActionResult{}, domain.NewPlatformError(domain.CodeUnauthorized, "stale", true)
			}
			return domain.ActionResult{ID: "x", Success: true}, nil
		})
	require.NoError(t, err)

	assert.Equal(t, 2, attempts)
	assert.Len(t, out.Successes, 1)
	assert.Empty(t, f.access.unlinked)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, f.sleeper.sleeps)
}

func TestProcessTargets_AuthRetryExhaustedUnlinks(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, func(c *OrchestratorConfig) { c.AuthRetryAttempts = 2 })

	attempts := 0
	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a")}, domain.ActionPost, BatchOptions{},
		func(context.Context, domain.Target, int, *BatchScope) (domain.ActionResult, error) {
			attempts++
			return domain.ActionResult{}, domain.NewPlatformError(domain.CodeUnauthorized, "revoked", true)
		})
	require.NoError(t, err)

	assert.Equal(t, 3, attempts)
	assert.Len(t, out.Errors, 1)
	assert.Len(t, f.access.unlinked, 1)
}

func TestProcessTargets_PartialThreadIsNotRetried(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, func(c *OrchestratorConfig) { c.AuthRetryAttempts = 2 })

	// fil de deux éléments : la tête passe, la réponse tombe en 401
	var published []string
	thread := func(context.Context, domain.Target, int, *BatchScope) (domain.ActionResult, error) {
		published = append(published, "head")
		pe := domain.NewPlatformError(domain.CodeUnauthorized, "token revoked mid-thread", true)
		return domain.ActionResult{}, pe.WithDetail(domain.DetailPostedIDs, []string{"900"})
	}

	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a")}, domain.ActionPost, BatchOptions{}, thread)
	require.NoError(t, err)

	assert.Equal(t, []string{"head"}, published, "the thread head must not be posted twice")
	assert.Empty(t, out.Successes)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, domain.CodeUnauthorized, out.Errors[0].Code)
	assert.Equal(t, []string{"900"}, out.Errors[0].Details[domain.DetailPostedIDs])
	assert.Equal(t, []string{tw("a").Key()}, f.access.unlinked)
	assert.Empty(t, f.sleeper.sleeps, "no retry delay")
}

func TestProcessTargets_RecorderFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)
	f.recorder.err = errors.New("nats unavailable")

	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a")}, domain.ActionRepost, BatchOptions{}, okAction)
	require.NoError(t, err)

	require.Len(t, out.Successes, 1)
	assert.Empty(t, out.Errors)
	require.Len(t, f.recorder.tracked, 1)
	assert.Equal(t, domain.ActionRepost, f.recorder.tracked[0].Action)
	assert.Equal(t, "post-a", f.recorder.tracked[0].ResultID)
}

func TestProcessTargets_PacingBetweenTargets(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, func(c *OrchestratorConfig) { c.DefaultPacing = 200 * time.Millisecond })

	targets := []domain.Target{tw("a"), {Platform: platformMastodon, UserID: "m"}, tw("c")}
	_, err := f.orch.ProcessTargets(context.Background(), testSigner, targets, domain.ActionPost, BatchOptions{}, okAction)
	require.NoError(t, err)

	// pas de pause après la dernière cible
	assert.Equal(t, []time.Duration{time.Second, 200 * time.Millisecond}, f.sleeper.sleeps)

	f2 := newOrchestratorFixture(t, nil)
	_, err = f2.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("solo")}, domain.ActionPost, BatchOptions{}, okAction)
	require.NoError(t, err)
	assert.Empty(t, f2.sleeper.sleeps)
}

func TestProcessTargets_EmptyTargets(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)

	out, err := f.orch.ProcessTargets(context.Background(), testSigner, nil, domain.ActionPost, BatchOptions{}, okAction)
	require.NoError(t, err)
	assert.NotNil(t, out.Successes)
	assert.NotNil(t, out.Errors)
	assert.Zero(t, out.Total())
}

func TestProcessTargets_DuplicatePolicies(t *testing.T) {
	t.Parallel()
	targets := []domain.Target{tw("a"), tw("a"), tw("b")}

	t.Run("dedupe", func(t *testing.T) {
		t.Parallel()
		f := newOrchestratorFixture(t, nil)
		out, err := f.orch.ProcessTargets(context.Background(), testSigner, targets, domain.ActionPost, BatchOptions{}, okAction)
		require.NoError(t, err)
		assert.Equal(t, 2, out.Total())
		assert.Len(t, f.access.verified, 2)
	})

	t.Run("allow", func(t *testing.T) {
		t.Parallel()
		f := newOrchestratorFixture(t, func(c *OrchestratorConfig) { c.DuplicatePolicy = domain.DuplicateAllow })
		out, err := f.orch.ProcessTargets(context.Background(), testSigner, targets, domain.ActionPost, BatchOptions{}, okAction)
		require.NoError(t, err)
		assert.Equal(t, 3, out.Total())
	})

	t.Run("reject", func(t *testing.T) {
		t.Parallel()
		f := newOrchestratorFixture(t, func(c *OrchestratorConfig) { c.DuplicatePolicy = domain.DuplicateReject })
		_, err := f.orch.ProcessTargets(context.Background(), testSigner, targets, domain.ActionPost, BatchOptions{}, okAction)
		require.ErrorIs(t, err, domain.ErrDuplicateTargets)
		assert.Empty(t, f.access.verified, "no stage runs when the batch is rejected")
	})
}

func TestProcessSingleTarget_RequiredPlatformMismatch(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)

	res := f.orch.ProcessSingleTarget(context.Background(), testSigner, domain.Target{Platform: platformMastodon, UserID: "m"}, 0,
		domain.ActionReply, domain.PlatformTwitter, nil, okAction)

	require.Nil(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeValidationError, res.Error.Code)
	assert.False(t, res.Error.Recoverable)
	assert.Equal(t, platformMastodon, res.Error.Platform)
	assert.Empty(t, f.access.verified)
	assert.Zero(t, f.limiter.calls)
}

func TestProcessSingleTarget_PanicBecomesInternalError(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)

	res := f.orch.ProcessSingleTarget(context.Background(), testSigner, tw("a"), 0, domain.ActionPost, "", nil,
		func(context.Context, domain.Target, int, *BatchScope) (domain.ActionResult, error) {
			panic("nil map")
		})

	require.NotNil(t, res.Error)
	assert.Equal(t, domain.CodeInternalError, res.Error.Code)
	assert.Equal(t, StateFailed, res.State)
}

func TestProcessTargets_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := f.orch.ProcessTargets(ctx, testSigner, []domain.Target{tw("a"), tw("b")}, domain.ActionPost, BatchOptions{},
		func(ctx context.Context, tg domain.Target, _ int, _ *BatchScope) (domain.ActionResult, error) {
			if ctx.Err() != nil {
				return domain.ActionResult{}, ctx.Err()
			}
			return domain.ActionResult{ID: tg.UserID, Success: true}, nil
		})
	require.NoError(t, err)
	assert.Len(t, out.Successes, 2)
}

func TestProcessTargets_MediaScopeIsPerBatch(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)

	var scopes []*BatchScope
	action := func(_ context.Context, tg domain.Target, _ int, scope *BatchScope) (domain.ActionResult, error) {
		scopes = append(scopes, scope)
		_, hit := scope.Media.Get(tg.Platform, "shared", "digest")
		scope.Media.Put(tg.Platform, "shared", "digest", "media-1")
		return domain.ActionResult{ID: tg.UserID, Success: hit}, nil
	}

	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a"), tw("b")}, domain.ActionPost, BatchOptions{}, action)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.Same(t, scopes[0], scopes[1])
	assert.False(t, out.Successes[0].Payload.Success)
	assert.True(t, out.Successes[1].Payload.Success)
	assert.Zero(t, scopes[0].Media.Len(), "cache cleared at batch end")

	_, err = f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("c")}, domain.ActionPost, BatchOptions{}, action)
	require.NoError(t, err)
	require.Len(t, scopes, 3)
	assert.NotSame(t, scopes[0], scopes[2])
}

func TestProcessTargets_AdmitRejectsBeforeAccess(t *testing.T) {
	t.Parallel()
	f := newOrchestratorFixture(t, nil)

	out, err := f.orch.ProcessTargets(context.Background(), testSigner, []domain.Target{tw("a"), tw("b")}, domain.ActionDelete,
		BatchOptions{Admit: func(i int, _ domain.Target) error {
			if i == 0 {
				return errors.New("not allowed")
			}
			return nil
		}}, okAction)
	require.NoError(t, err)

	require.Len(t, out.Errors, 1)
	assert.Equal(t, domain.CodeValidationError, out.Errors[0].Code)
	assert.Equal(t, []string{tw("b").Key()}, f.access.verified)
}
