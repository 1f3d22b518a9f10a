package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/tailtrack/internal/config"
	"github.com/yegors/tailtrack/internal/tracking"
	"github.com/yegors/tailtrack/internal/websocket"
	"github.com/yegors/tailtrack/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(trackingService *tracking.Service, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Router {
	return &Router{
		handler:    NewHandler(trackingService, cfg, log, wsServer),
		middleware: NewMiddleware(log),
		config:     cfg,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Tracking session routes
		router.Post("/tracking-sessions", r.handler.CreateTrackingSession)
		router.Get("/tracking-sessions", r.handler.GetTrackingSessions)
		router.Get("/tracking-sessions/{id}", r.handler.GetTrackingSession)
		router.Get("/tracking-sessions/{id}/update", r.handler.UpdateTrackingSession)

		// WebSocket route
		router.Get("/ws", r.handler.HandleWebSocket)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	return router
}
