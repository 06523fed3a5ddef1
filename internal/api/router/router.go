package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/legal-triage/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/legal-triage/internal/http/middleware"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *handlers.ChatHandler
	ConfigureHandler   *handlers.ConfigureHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	AdminAuthSecret    string
	// ChatLimiter throttles chat turns per client. Nil disables it.
	ChatLimiter  *httpmiddleware.RateLimiter
	MaxBodyBytes int64
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", handlers.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.MaxBody(cfg.MaxBodyBytes))

		if cfg.ConfigureHandler != nil {
			api.Group(func(conf chi.Router) {
				conf.Use(middleware.Compress(5, "application/json"))
				conf.Get("/configure", cfg.ConfigureHandler.GetRules)
				conf.With(httpmiddleware.AdminJWT(cfg.AdminAuthSecret)).Post("/configure", cfg.ConfigureHandler.ReplaceRules)
				conf.Post("/match", cfg.ConfigureHandler.Match)
			})
		}

		if cfg.ChatHandler != nil {
			api.Route("/chat", func(chat chi.Router) {
				if cfg.ChatLimiter != nil {
					chat.Use(httpmiddleware.RateLimit(cfg.ChatLimiter))
				}
				chat.Post("/", cfg.ChatHandler.Chat)
				chat.Get("/ws", cfg.ChatHandler.WebSocket)
				chat.Delete("/sessions/{id}", cfg.ChatHandler.DeleteSession)
			})
		}
	})

	return r
}
