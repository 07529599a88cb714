package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

// --- Access ---

type fakeAccess struct {
	mu        sync.Mutex
	deny      map[string]error
	verified  []string
	unlinked  []string
	unlinkers []string
	unlinkErr error
}

func newFakeAccess() *fakeAccess { return &fakeAccess{deny: map[string]error{}} }

func (f *fakeAccess) VerifyAccess(_ context.Context, _ string, p domain.PlatformID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := domain.Target{Platform: p, UserID: userID}.Key()
	f.verified = append(f.verified, k)
	return f.deny[k]
}

func (f *fakeAccess) UnlinkAccount(_ context.Context, signerID string, p domain.PlatformID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlinked = append(f.unlinked, domain.Target{Platform: p, UserID: userID}.Key())
	f.unlinkers = append(f.unlinkers, signerID)
	return f.unlinkErr
}

// --- Rate ---

type fakeLimiter struct {
	mu      sync.Mutex
	blocked map[domain.PlatformID]bool
	calls   int
}

func (f *fakeLimiter) CanPerformAction(_ context.Context, p domain.PlatformID, _ domain.ActionType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return !f.blocked[p]
}

type fakeSnapshotStore struct {
	snap *ports.RateLimitSnapshot
	err  error
}

func (f *fakeSnapshotStore) Snapshot(context.Context, domain.PlatformID, domain.ActionType) (*ports.RateLimitSnapshot, error) {
	return f.snap, f.err
}

func (f *fakeSnapshotStore) Observe(context.Context, domain.PlatformID, domain.ActionType, ports.RateLimitSnapshot) error {
	return nil
}

// --- Activity ---

type fakeRecorder struct {
	mu      sync.Mutex
	tracked []domain.Activity
	err     error
}

func (f *fakeRecorder) TrackAction(_ context.Context, a domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, a)
	return f.err
}

// --- Sleeper ---

type fakeSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (f *fakeSleeper) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
}

// --- Links / events ---

type fakeLinks struct {
	mu      sync.Mutex
	links   map[string]domain.AccountLink
	err     error
	deleted int
}

func newFakeLinks(links ...domain.AccountLink) *fakeLinks {
	f := &fakeLinks{links: map[string]domain.AccountLink{}}
	for _, l := range links {
		f.links[linkKey(l.SignerID, l.Platform, l.UserID)] = l
	}
	return f
}

func linkKey(signer string, p domain.PlatformID, userID string) string {
	return signer + "|" + string(p) + "|" + userID
}

func (f *fakeLinks) Exists(_ context.Context, signer string, p domain.PlatformID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.links[linkKey(signer, p, userID)]
	return ok, nil
}

func (f *fakeLinks) Delete(_ context.Context, signer string, p domain.PlatformID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	k := linkKey(signer, p, userID)
	if _, ok := f.links[k]; !ok {
		return domain.ErrLinkNotFound
	}
	delete(f.links, k)
	f.deleted++
	return nil
}

func (f *fakeLinks) ListBySigner(_ context.Context, signer string) ([]domain.AccountLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.AccountLink
	for _, l := range f.links {
		if l.SignerID == signer {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	reasons []string
	links   []domain.AccountLink
	err     error
}

func (f *fakePublisher) PublishAccountUnlinked(_ context.Context, link domain.AccountLink, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
	f.links = append(f.links, link)
	return f.err
}

// --- Executors ---

type executorCall struct {
	Method string
	UserID string
	PostID string
}

type fakeExecutor struct {
	mu       sync.Mutex
	platform domain.PlatformID
	calls    []executorCall
	failFor  map[string]error
}

func newFakeExecutor(p domain.PlatformID) *fakeExecutor {
	return &fakeExecutor{platform: p, failFor: map[string]error{}}
}

func (f *fakeExecutor) record(method, userID, postID string) (domain.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, executorCall{Method: method, UserID: userID, PostID: postID})
	if err := f.failFor[userID]; err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{ID: method + "-" + userID + postID, Success: true}, nil
}

func (f *fakeExecutor) Platform() domain.PlatformID { return f.platform }

func (f *fakeExecutor) CreatePost(_ context.Context, userID string, _ []domain.PostContent, _ *domain.MediaCache) (domain.ActionResult, error) {
	return f.record("create", userID, "")
}

func (f *fakeExecutor) ReplyToPost(_ context.Context, userID, postID string, _ []domain.PostContent, _ *domain.MediaCache) (domain.ActionResult, error) {
	return f.record("reply", userID, postID)
}

func (f *fakeExecutor) QuotePost(_ context.Context, userID, postID string, _ []domain.PostContent, _ *domain.MediaCache) (domain.ActionResult, error) {
	return f.record("quote", userID, postID)
}

func (f *fakeExecutor) Repost(_ context.Context, userID, postID string) (domain.ActionResult, error) {
	return f.record("repost", userID, postID)
}

func (f *fakeExecutor) DeletePost(_ context.Context, userID, postID string) (domain.ActionResult, error) {
	return f.record("delete", userID, postID)
}

func (f *fakeExecutor) LikePost(_ context.Context, userID, postID string) (domain.ActionResult, error) {
	return f.record("like", userID, postID)
}

func (f *fakeExecutor) UnlikePost(_ context.Context, userID, postID string) (domain.ActionResult, error) {
	return f.record("unlike", userID, postID)
}

type fakeRegistry map[domain.PlatformID]ports.PlatformExecutor

func (r fakeRegistry) Executor(p domain.PlatformID) (ports.PlatformExecutor, error) {
	if ex, ok := r[p]; ok {
		return ex, nil
	}
	return nil, errors.Join(domain.ErrUnsupportedPlatform, errors.New(string(p)))
}

// --- Helpers ---

const testSigner = "alice.near"

const platformMastodon domain.PlatformID = "mastodon"

func tw(userID string) domain.Target {
	return domain.Target{Platform: domain.PlatformTwitter, UserID: userID}
}

func okAction(ctx context.Context, t domain.Target, _ int, _ *BatchScope) (domain.ActionResult, error) {
	return domain.ActionResult{ID: "post-" + t.UserID, Success: true}, nil
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked []string
}

func (f *fakeRevoker) Revoke(_ context.Context, p domain.PlatformID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, domain.Target{Platform: p, UserID: userID}.Key())
	return nil
}
