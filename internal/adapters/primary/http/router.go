package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler, signers SignerValidator) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", handler.readyz)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(signers))

		r.Route("/post", func(r chi.Router) {
			r.Post("/", handler.createPost)
			r.Post("/reply", handler.withContent(handler.crosspost.ReplyToPost))
			r.Post("/quote", handler.withContent(handler.crosspost.QuotePost))
			r.Post("/repost", handler.onPost(handler.crosspost.Repost))
			r.Post("/like", handler.onPost(handler.crosspost.LikePost))
			r.Post("/unlike", handler.onPost(handler.crosspost.UnlikePost))
			r.Delete("/", handler.deletePosts)
			r.Post("/delete", handler.deletePosts)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Get("/accounts", handler.listAccounts)
			r.Get("/{platform}/{userId}/status", handler.accountStatus)
			r.Delete("/{platform}/{userId}", handler.unlinkAccount)
		})
	})

	return r
}
