// Package router wires the HTTP surface of the booking concierge.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/averyhale/booking-concierge/internal/http/handlers"
	httpmiddleware "github.com/averyhale/booking-concierge/internal/http/middleware"
	"github.com/averyhale/booking-concierge/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *handlers.ChatHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Per-IP request budget for the chat endpoints; zero disables limiting.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.ChatHandler != nil {
		r.Route("/v1/chat", func(chat chi.Router) {
			if cfg.RateLimitPerSecond > 0 {
				chat.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
			}
			chat.Post("/message", cfg.ChatHandler.HandleMessage)
			chat.Get("/ws", cfg.ChatHandler.HandleWebSocket)
			chat.Delete("/session", cfg.ChatHandler.HandleReset)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
