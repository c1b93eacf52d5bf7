package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/chatbot/internal/inference"
	"github.com/capitalize-ai/chatbot/internal/middleware"
	"github.com/capitalize-ai/chatbot/internal/service"
	"github.com/capitalize-ai/chatbot/pkg/logger"
)

// RouterConfig holds everything the gateway router serves.
type RouterConfig struct {
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Action        inference.Action
	Checks        map[string]Check

	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	Logger *logger.Logger
}

// NewRouter builds the gateway's HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger

	healthHandler := NewHealthHandler(cfg.Checks)
	conversationHandler := NewConversationHandler(cfg.Conversations, log)
	messageHandler := NewMessageHandler(cfg.Messages, log)
	streamHandler := NewStreamHandler(cfg.Messages, log)
	subscribeHandler := NewSubscribeHandler(cfg.Messages, log)
	actionHandler := NewActionHandler(cfg.Conversations, cfg.Action, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RecordUser)
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/", conversationHandler.Update)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Create)

				r.Get("/subscribe", subscribeHandler.Subscribe)
				r.Get("/stream", streamHandler.Stream)
			})
		})

		r.Post("/actions/send-message", actionHandler.SendMessage)
	})

	return r
}
