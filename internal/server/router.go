package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docuhub/internal/api"
	"github.com/cloo-solutions/docuhub/internal/api/handlers"
	"github.com/cloo-solutions/docuhub/internal/api/middleware"
)

type RouterConfig struct {
	Authenticator  middleware.Authenticator
	UploadHandler  *handlers.UploadHandler
	MaxUploadBytes int64
	// UploadLimiter throttles POST /upload; nil disables it.
	UploadLimiter  *middleware.RateLimiter
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.TokenAuth(cfg.Authenticator))

		r.Get("/me", handlers.Me)

		r.Group(func(r chi.Router) {
			if cfg.UploadLimiter != nil {
				r.Use(cfg.UploadLimiter.Handler)
			}
			r.Use(middleware.MaxBodyBytes(cfg.MaxUploadBytes))
			r.Post("/upload", cfg.UploadHandler.Upload)
		})
	})

	return r
}
