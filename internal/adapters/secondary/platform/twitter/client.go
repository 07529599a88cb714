package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

const (
	DefaultAPIURL  = "https://api.x.com"
	DefaultTimeout = 30 * time.Second
	statusURLFmt   = "https://x.com/i/web/status/%s"
	maxErrorBody   = 64 << 10
)

type Config struct {
	APIURL  string
	Timeout time.Duration
}

// Client parle à l'API v2 au nom d'un compte lié (jeton OAuth2 utilisateur).
type Client struct {
	baseURL string
	http    *http.Client
	tokens  ports.TokenStore
	limits  ports.RateLimitStore
}

var _ ports.PlatformExecutor = (*Client)(nil)

func NewClient(cfg Config, tokens ports.TokenStore, limits ports.RateLimitStore) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens: tokens,
		limits: limits,
	}
}

func (c *Client) Platform() domain.PlatformID { return domain.PlatformTwitter }

// request décrit un appel ; body est encodé en JSON sauf s'il implémente io.Reader.
type request struct {
	userID      string
	action      domain.ActionType
	method      string
	path        string
	body        any
	contentType string
}

func (c *Client) token(ctx context.Context, userID string) (string, error) {
	tok, err := c.tokens.AccessToken(ctx, domain.PlatformTwitter, userID)
	switch {
	case err == nil:
		return tok, nil
	case errors.Is(err, domain.ErrTokenNotFound), errors.Is(err, domain.ErrTokenExpired):
		pe := domain.NewPlatformError(domain.CodeUnauthorized, "no valid access token for this account", true)
		pe.Cause = err
		return "", pe
	default:
		pe := domain.NewPlatformError(domain.CodeInternalError, "token store unavailable", true)
		pe.Cause = err
		return "", pe
	}
}

// do exécute la requête et décode la réponse 2xx dans out.
// Tout autre statut sort en *domain.PlatformError.
func (c *Client) do(ctx context.Context, req request, out any) error {
	tok, err := c.token(ctx, req.userID)
	if err != nil {
		return err
	}

	var body io.Reader
	contentType := req.contentType
	switch b := req.body.(type) {
	case nil:
	case io.Reader:
		body = b
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+tok)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		pe := domain.NewPlatformError(domain.CodePlatformError, "twitter request failed", true)
		pe.Cause = err
		return pe
	}
	defer resp.Body.Close()

	c.observeLimits(ctx, req.action, resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Debug("Twitter API error", "method", req.method, "path", req.path, "status", resp.StatusCode)
		return mapError(resp.StatusCode, raw, resp.Header)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		pe := domain.NewPlatformError(domain.CodePlatformError, "unexpected twitter response", false)
		pe.Cause = err
		return pe
	}
	return nil
}

// observeLimits remonte x-rate-limit-* au store ; un échec n'affecte pas l'appel.
func (c *Client) observeLimits(ctx context.Context, action domain.ActionType, h http.Header) {
	if c.limits == nil {
		return
	}
	snap, ok := parseRateLimit(h)
	if !ok {
		return
	}
	if err := c.limits.Observe(ctx, domain.PlatformTwitter, action, snap); err != nil {
		slog.Warn("Failed to record rate limit", "action", action, "error", err)
	}
}

func parseRateLimit(h http.Header) (ports.RateLimitSnapshot, bool) {
	remaining, err := strconv.Atoi(h.Get("x-rate-limit-remaining"))
	if err != nil {
		return ports.RateLimitSnapshot{}, false
	}
	reset, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err != nil {
		return ports.RateLimitSnapshot{}, false
	}
	limit, _ := strconv.Atoi(h.Get("x-rate-limit-limit"))
	return ports.RateLimitSnapshot{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Unix(reset, 0).UTC(),
	}, true
}

func statusURL(id string) string { return fmt.Sprintf(statusURLFmt, id) }
