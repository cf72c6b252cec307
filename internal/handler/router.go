package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/quorra/internal/middleware"
	"github.com/capitalize-ai/quorra/pkg/logger"
)

// RouterConfig holds what NewRouter wires together.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
	Logger            *logger.Logger

	Health        *HealthHandler
	Clients       *ClientHandler
	Conversations *ConversationHandler
	Messages      *MessageHandler
}

// NewRouter builds the store's HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger.OrNop(cfg.Logger)))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins...))

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Get("/clients", cfg.Clients.List)

		r.Post("/conversations", cfg.Conversations.Create)
		r.Get("/conversations/{id}", cfg.Conversations.ListByUser)
		r.Delete("/conversations/{id}", cfg.Conversations.Delete)
		r.Patch("/conversations/{id}/title", cfg.Conversations.Rename)

		r.Post("/messages", cfg.Messages.Send)
		r.Post("/messages/with-files", cfg.Messages.SendWithFiles)
		r.Get("/messages/{id}", cfg.Messages.List)
	})

	return r
}
