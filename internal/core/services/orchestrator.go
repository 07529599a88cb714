package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

const DefaultPacingDelay = time.Second

// errBookkeeping signale un défaut de l'orchestrateur lui-même (-> INTERNAL_ERROR).
var errBookkeeping = errors.New("orchestrator bookkeeping error")

// TargetState : PENDING -> ACCESS_CHECKED -> RATE_CHECKED -> EXECUTED -> SUCCESS | FAILED
type TargetState string

const (
	StatePending       TargetState = "PENDING"
	StateAccessChecked TargetState = "ACCESS_CHECKED"
	StateRateChecked   TargetState = "RATE_CHECKED"
	StateExecuted      TargetState = "EXECUTED"
	StateSuccess       TargetState = "SUCCESS"
	StateFailed        TargetState = "FAILED"
)

// BatchScope vit le temps d'UN appel à ProcessTargets.
type BatchScope struct {
	Media *domain.MediaCache
}

// TargetAction exécute l'action (paramètres déjà liés) pour une cible.
type TargetAction func(ctx context.Context, target domain.Target, index int, scope *BatchScope) (domain.ActionResult, error)

// BatchOptions ajuste un lot particulier.
type BatchOptions struct {
	// RequiredPlatform : si non vide, toute cible d'une autre plateforme échoue en VALIDATION_ERROR.
	RequiredPlatform domain.PlatformID
	// DuplicatePolicy remplace la politique globale si non vide.
	DuplicatePolicy domain.DuplicatePolicy
	// UnitKey calcule la clé de déduplication (défaut : Target.Key()).
	UnitKey func(index int, target domain.Target) string
	// Admit refuse une unité avant toute vérification d'accès (VALIDATION_ERROR).
	Admit func(index int, target domain.Target) error
}

type OrchestratorConfig struct {
	PacingDelays      map[domain.PlatformID]time.Duration
	DefaultPacing     time.Duration
	DuplicatePolicy   domain.DuplicatePolicy
	AuthRetryAttempts int
	AuthRetryDelay    time.Duration
	Sleeper           ports.Sleeper
}

// TargetOutcome : exactement un des deux champs est renseigné.
type TargetOutcome struct {
	Success *domain.SuccessDetail
	Error   *domain.ErrorDetail
	State   TargetState
}

type Orchestrator struct {
	access   ports.AccessVerifier
	limiter  ports.RateLimiter
	activity ports.ActivityRecorder
	cfg      OrchestratorConfig
	tracer   trace.Tracer
	nowFn    func() time.Time
}

func NewOrchestrator(access ports.AccessVerifier, limiter ports.RateLimiter, activity ports.ActivityRecorder, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Sleeper == nil {
		cfg.Sleeper = timeSleeper{}
	}
	if cfg.DefaultPacing < 0 {
		cfg.DefaultPacing = 0
	}
	if cfg.DuplicatePolicy == "" {
		cfg.DuplicatePolicy = domain.DuplicateDedupe
	}
	if cfg.AuthRetryAttempts < 0 {
		cfg.AuthRetryAttempts = 0
	}
	return &Orchestrator{
		access:   access,
		limiter:  limiter,
		activity: activity,
		cfg:      cfg,
		tracer:   otel.Tracer("crosspost/orchestrator"),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

type timeSleeper struct{}

func (timeSleeper) Sleep(d time.Duration) { time.Sleep(d) }

func (o *Orchestrator) pacingFor(p domain.PlatformID) time.Duration {
	if d, ok := o.cfg.PacingDelays[p]; ok {
		return d
	}
	return o.cfg.DefaultPacing
}

// ProcessTargets traite les cibles une par une, dans l'ordre de la requête.
// Le lot n'est pas annulable : le contexte d'exécution est détaché de l'annulation
// de l'appelant (les valeurs, dont la trace, sont conservées).
// Seul le rejet des doublons (politique "reject") ou un défaut interne renvoie une erreur.
func (o *Orchestrator) ProcessTargets(ctx context.Context, signerID string, targets []domain.Target, action domain.ActionType, opts BatchOptions, fn TargetAction) (domain.BatchOutcome, error) {
	outcome := domain.BatchOutcome{
		Successes: []domain.SuccessDetail{},
		Errors:    []domain.ErrorDetail{},
	}

	units, err := o.selectUnits(targets, opts)
	if err != nil {
		return outcome, err
	}
	if len(units) == 0 {
		return outcome, nil
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "batch.process", trace.WithAttributes(
		attribute.String("crosspost.action", string(action)),
		attribute.Int("crosspost.targets", len(targets)),
		attribute.Int("crosspost.units", len(units)),
	))
	defer span.End()

	scope := &BatchScope{Media: domain.NewMediaCache()}
	scope.Media.Clear()
	defer scope.Media.Clear()

	for n, idx := range units {
		target := targets[idx]
		var res TargetOutcome
		if err := admit(opts, idx, target); err != nil {
			d := Classify(err, TargetContext{Platform: target.Platform, UserID: target.UserID})
			res = TargetOutcome{Error: &d, State: StateFailed}
		} else {
			res = o.ProcessSingleTarget(ctx, signerID, target, idx, action, opts.RequiredPlatform, scope, fn)
		}

		switch {
		case res.Success != nil && res.Error == nil:
			outcome.Successes = append(outcome.Successes, *res.Success)
		case res.Error != nil && res.Success == nil:
			outcome.Errors = append(outcome.Errors, *res.Error)
		default:
			span.SetStatus(codes.Error, "bookkeeping")
			return outcome, fmt.Errorf("target %d (%s): %w", idx, target.Key(), errBookkeeping)
		}

		if n < len(units)-1 {
			if d := o.pacingFor(target.Platform); d > 0 {
				o.cfg.Sleeper.Sleep(d)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("crosspost.succeeded", len(outcome.Successes)),
		attribute.Int("crosspost.failed", len(outcome.Errors)),
	)
	slog.Info("📦 Batch processed",
		"action", action,
		"signer_id", signerID,
		"succeeded", len(outcome.Successes),
		"failed", len(outcome.Errors),
		"skipped", len(targets)-len(units),
	)
	return outcome, nil
}

func admit(opts BatchOptions, index int, target domain.Target) error {
	if opts.Admit == nil {
		return nil
	}
	if err := opts.Admit(index, target); err != nil {
		var c domain.Classifiable
		if errors.As(err, &c) {
			return err
		}
		return domain.NewPlatformError(domain.CodeValidationError, err.Error(), false)
	}
	return nil
}

// selectUnits applique la politique de doublons et renvoie les index à traiter.
func (o *Orchestrator) selectUnits(targets []domain.Target, opts BatchOptions) ([]int, error) {
	policy := o.cfg.DuplicatePolicy
	if opts.DuplicatePolicy != "" {
		policy = opts.DuplicatePolicy
	}
	keyFn := opts.UnitKey
	if keyFn == nil {
		keyFn = func(_ int, t domain.Target) string { return t.Key() }
	}

	units := make([]int, 0, len(targets))
	seen := make(map[string]struct{}, len(targets))
	for i, t := range targets {
		k := keyFn(i, t)
		if _, dup := seen[k]; dup {
			switch policy {
			case domain.DuplicateReject:
				return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateTargets, k)
			case domain.DuplicateDedupe:
				slog.Debug("Skipping duplicate target", "key", k, "index", i)
				continue
			}
		}
		seen[k] = struct{}{}
		units = append(units, i)
	}
	return units, nil
}

// ProcessSingleTarget fait passer une cible par les trois étapes (accès, quota, exécution).
// requiredPlatform est vérifié en premier, sans consulter accès ni quota.
func (o *Orchestrator) ProcessSingleTarget(ctx context.Context, signerID string, target domain.Target, index int, action domain.ActionType, requiredPlatform domain.PlatformID, scope *BatchScope, fn TargetAction) TargetOutcome {
	ctx, span := o.tracer.Start(ctx, "batch.target", trace.WithAttributes(
		attribute.String("crosspost.platform", string(target.Platform)),
		attribute.String("crosspost.user_id", target.UserID),
		attribute.Int("crosspost.index", index),
	))
	defer span.End()

	if scope == nil {
		scope = &BatchScope{Media: domain.NewMediaCache()}
	}
	tc := TargetContext{Platform: target.Platform, UserID: target.UserID}

	fail := func(state TargetState, d domain.ErrorDetail) TargetOutcome {
		span.SetStatus(codes.Error, string(d.Code))
		span.SetAttributes(attribute.String("crosspost.state", string(state)), attribute.String("crosspost.code", string(d.Code)))
		slog.Debug("Target failed", "platform", target.Platform, "user_id", target.UserID, "stage", state, "code", d.Code)
		return TargetOutcome{Error: &d, State: StateFailed}
	}

	state := StatePending
	if requiredPlatform != "" && target.Platform != requiredPlatform {
		return fail(state, Classify(
			domain.NewPlatformError(domain.CodeValidationError,
				fmt.Sprintf("target platform %q does not match post platform %q", target.Platform, requiredPlatform), false),
			tc))
	}

	// 1. Accès
	if err := o.access.VerifyAccess(ctx, signerID, target.Platform, target.UserID); err != nil {
		return fail(state, Classify(err, tc))
	}
	state = StateAccessChecked

	// 2. Quota
	if !o.limiter.CanPerformAction(ctx, target.Platform, action) {
		return fail(state, Classify(
			domain.NewPlatformError(domain.CodeRateLimited,
				fmt.Sprintf("rate limit reached for %s on %s", action, target.Platform), true),
			tc))
	}
	state = StateRateChecked

	// 3. Exécution
	result, err := o.execute(ctx, target, index, scope, fn)
	state = StateExecuted
	if err != nil {
		detail := Classify(err, tc)
		if detail.Code == domain.CodeUnauthorized && !partiallyApplied(detail) {
			result, detail, err = o.retryAuth(ctx, target, index, scope, fn, detail)
		}
		if err != nil {
			if detail.Code == domain.CodeUnauthorized {
				o.remediate(ctx, signerID, target)
			}
			return fail(state, detail)
		}
	}

	o.track(ctx, signerID, target, action, result)
	span.SetAttributes(attribute.String("crosspost.state", string(StateSuccess)))
	return TargetOutcome{
		Success: &domain.SuccessDetail{
			Platform: target.Platform,
			UserID:   target.UserID,
			Status:   domain.StatusSuccess,
			Payload:  result,
		},
		State: StateSuccess,
	}
}

// execute protège l'orchestrateur contre une panique de l'adaptateur.
func (o *Orchestrator) execute(ctx context.Context, target domain.Target, index int, scope *BatchScope, fn TargetAction) (res domain.ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("❌ Platform action panicked", "platform", target.Platform, "user_id", target.UserID, "panic", r)
			err = domain.NewPlatformError(domain.CodeInternalError, fmt.Sprintf("platform action panicked: %v", r), false)
		}
	}()
	return fn(ctx, target, index, scope)
}

// retryAuth : nouvelle tentative bornée avant de conclure à un identifiant mort.
func (o *Orchestrator) retryAuth(ctx context.Context, target domain.Target, index int, scope *BatchScope, fn TargetAction, last domain.ErrorDetail) (domain.ActionResult, domain.ErrorDetail, error) {
	tc := TargetContext{Platform: target.Platform, UserID: target.UserID}
	var err error = errors.New(last.Message)
	for attempt := 1; attempt <= o.cfg.AuthRetryAttempts; attempt++ {
		if o.cfg.AuthRetryDelay > 0 {
			o.cfg.Sleeper.Sleep(o.cfg.AuthRetryDelay)
		}
		slog.Debug("Retrying after auth failure", "platform", target.Platform, "user_id", target.UserID, "attempt", attempt)

		var res domain.ActionResult
		res, err = o.execute(ctx, target, index, scope, fn)
		if err == nil {
			return res, domain.ErrorDetail{}, nil
		}
		last = Classify(err, tc)
		if last.Code != domain.CodeUnauthorized || partiallyApplied(last) {
			break
		}
	}
	return domain.ActionResult{}, last, err
}

// partiallyApplied : une partie de l'action a déjà été publiée, la rejouer dupliquerait.
func partiallyApplied(d domain.ErrorDetail) bool {
	_, ok := d.Details[domain.DetailPostedIDs]
	return ok
}

// remediate délie le compte pour que les prochains appels échouent dès l'étape d'accès.
func (o *Orchestrator) remediate(ctx context.Context, signerID string, target domain.Target) {
	if err := o.access.UnlinkAccount(ctx, signerID, target.Platform, target.UserID); err != nil {
		slog.Error("❌ Failed to unlink account after auth failure",
			"signer_id", signerID, "platform", target.Platform, "user_id", target.UserID, "error", err)
		return
	}
	slog.Warn("🔌 Account unlinked after auth failure", "signer_id", signerID, "platform", target.Platform, "user_id", target.UserID)
}

func (o *Orchestrator) track(ctx context.Context, signerID string, target domain.Target, action domain.ActionType, result domain.ActionResult) {
	if o.activity == nil {
		return
	}
	err := o.activity.TrackAction(ctx, domain.Activity{
		SignerID:   signerID,
		Platform:   target.Platform,
		UserID:     target.UserID,
		ResultID:   result.ID,
		Action:     action,
		OccurredAt: o.nowFn(),
	})
	if err != nil {
		slog.Warn("Activity tracking failed", "platform", target.Platform, "user_id", target.UserID, "action", action, "error", err)
	}
}
