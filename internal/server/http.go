package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aungmyo/thazin/internal/config"
	"github.com/aungmyo/thazin/internal/service/discovery"
)

// NewRouter builds the HTTP surface the bot/transport layer talks to.
func NewRouter(svc *discovery.Service, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(requestLogger(log))

	h := NewHandler(svc, log)

	r.Get("/healthz", h.Health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/discover/next", h.NextCandidate)
		r.Post("/discover/react", h.React)
		r.Post("/discover/boost", h.Boost)
		r.Post("/discover/rewind", h.Rewind)
		r.Get("/likes/incoming", h.IncomingLikes)
		r.Post("/premium/grant", h.GrantPremium)
		r.Post("/profile", h.EnsureProfile)
		r.Post("/profile/registration", h.SaveRegistration)
		r.Post("/profile/location", h.UpdateLocation)
		r.Delete("/profile", h.DeleteProfile)
	})

	return r
}

// StartHTTPServer boots the HTTP server and blocks until it exits.
func StartHTTPServer(cfg *config.Config, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
