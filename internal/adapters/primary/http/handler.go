package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/services"
)

// maxBodyBytes couvre quatre médias base64 par élément de fil.
const maxBodyBytes = 32 << 20

// ReadyCheck est appelé par /readyz (ping Postgres, Redis, NATS...).
type ReadyCheck func(ctx context.Context) error

type Handler struct {
	crosspost ports.CrosspostService
	accounts  ports.AccountService
	validate  *validator.Validate
	checks    map[string]ReadyCheck
}

func NewHandler(crosspost ports.CrosspostService, accounts ports.AccountService, checks map[string]ReadyCheck) *Handler {
	return &Handler{
		crosspost: crosspost,
		accounts:  accounts,
		validate:  newValidator(),
		checks:    checks,
	}
}

// decode lit et valide le corps ; false = réponse d'erreur déjà écrite.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	reqID := requestIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidationError, "invalid json body", reqID)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidationError, validationMessage(err), reqID)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	reqID := requestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		slog.Error("❌ Request failed", "path", r.URL.Path, "request_id", reqID, "error", err)
	}
	writeError(w, status, code, publicMessage(err, code), reqID)
}

// respondBatch : statut et corps viennent de l'assembleur.
func (h *Handler) respondBatch(w http.ResponseWriter, r *http.Request, outcome domain.BatchOutcome, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status, body, err := services.Assemble(outcome)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, body)
}

// --- ACTIONS ---

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !h.decode(w, r, &req) {
		return
	}
	targets, err := toTargets(req.Targets)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	outcome, err := h.crosspost.CreatePost(r.Context(), ports.CreatePostCmd{
		SignerID: signerFromContext(r.Context()),
		Targets:  targets,
		Content:  req.Content,
	})
	h.respondBatch(w, r, outcome, err)
}

type postRefCall func(context.Context, ports.PostRefCmd) (domain.BatchOutcome, error)

func (h *Handler) withContent(call postRefCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req replyRequest
		if !h.decode(w, r, &req) {
			return
		}
		cmd, err := req.toCmd(signerFromContext(r.Context()), req.Content)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		outcome, err := call(r.Context(), cmd)
		h.respondBatch(w, r, outcome, err)
	}
}

func (h *Handler) onPost(call postRefCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postRefRequest
		if !h.decode(w, r, &req) {
			return
		}
		cmd, err := req.toCmd(signerFromContext(r.Context()), nil)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		outcome, err := call(r.Context(), cmd)
		h.respondBatch(w, r, outcome, err)
	}
}

func (h *Handler) deletePosts(w http.ResponseWriter, r *http.Request) {
	var req deletePostsRequest
	if !h.decode(w, r, &req) {
		return
	}
	cmd, err := req.toCmd(signerFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	outcome, err := h.crosspost.DeletePosts(r.Context(), cmd)
	h.respondBatch(w, r, outcome, err)
}

// --- COMPTES ---

type accountItem struct {
	Platform domain.PlatformID `json:"platform"`
	UserID   string            `json:"userId"`
	LinkedAt string            `json:"linkedAt,omitempty"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	links, err := h.accounts.ListAccounts(r.Context(), signerFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]accountItem, 0, len(links))
	for _, l := range links {
		item := accountItem{Platform: l.Platform, UserID: l.UserID}
		if !l.LinkedAt.IsZero() {
			item.LinkedAt = l.LinkedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeSuccess(w, http.StatusOK, map[string]any{"accounts": items})
}

func (h *Handler) accountParams(r *http.Request) (domain.PlatformID, string, error) {
	platform, err := domain.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		return "", "", err
	}
	return platform, chi.URLParam(r, "userId"), nil
}

func (h *Handler) accountStatus(w http.ResponseWriter, r *http.Request) {
	platform, userID, err := h.accountParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	linked, err := h.accounts.AccountStatus(r.Context(), signerFromContext(r.Context()), platform, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"platform": platform, "userId": userID, "linked": linked})
}

func (h *Handler) unlinkAccount(w http.ResponseWriter, r *http.Request) {
	platform, userID, err := h.accountParams(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.accounts.Unlink(r.Context(), signerFromContext(r.Context()), platform, userID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"platform": platform, "userId": userID, "linked": false})
}

// --- SANTÉ ---

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}
