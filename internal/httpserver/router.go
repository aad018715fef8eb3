// Package httpserver carries the REST surface: routing, bearer auth,
// request/response shaping, and the error-to-status mapping.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/directory"
	"github.com/parleyhq/parley/internal/domain"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/service"
	"github.com/parleyhq/parley/internal/ws"

	_ "github.com/parleyhq/parley/docs"
)

// NewRouter wires middleware, services, REST routes, the socket endpoint,
// and the operational surfaces into one handler.
func NewRouter(
	cfg *config.Config,
	st domain.Store,
	dir directory.Client,
	registry *ws.Registry,
	verifier security.Verifier,
	logger zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// One lock table shared by every writer so system messages and sends
	// serialize against each other per conversation.
	locks := service.NewConvLocks()
	users := service.NewUserService(st, dir, logger)
	pipeline := service.NewMessagePipeline(st, dir, registry, locks, logger)
	cursors := service.NewReadCursorService(st, logger)
	convs := service.NewConversationService(st, dir, registry, locks, logger)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"version": cfg.Version,
			"docs":    "/docs",
		})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", handleHealth(cfg.AppName, cfg.Version))
		r.Get("/health/detailed", handleHealthDetailed(st, dir, cfg.AppName, cfg.Version))

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(verifier, users))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(users))
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(convs))
				r.Post("/direct", handleCreateDirect(convs))
				r.Post("/group", handleCreateGroup(convs))
				r.Post("/business", handleCreateBusiness(convs))

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", handleGetConversation(convs))
					r.Post("/read", handleMarkConversationRead(cursors))
					r.Put("/mute", handleMuteConversation(convs))
					r.Get("/messages", handleListMessages(pipeline))
					r.Post("/messages", handleSendMessage(pipeline))
					r.Post("/participants", handleAddParticipant(convs))
					r.Delete("/participants/{userID}", handleRemoveParticipant(convs))
					r.Put("/participants/{userID}/role", handleUpdateParticipantRole(convs))
				})
			})

			r.Route("/messages", func(r chi.Router) {
				r.Put("/{messageID}", handleEditMessage(pipeline))
				r.Delete("/{messageID}", handleDeleteMessage(pipeline))
			})
		})
	})

	// WebSocket endpoint. Mounted outside /api so the request timeout
	// cannot cancel a long-lived connection's context.
	socket := ws.NewHandler(registry, verifier, users, pipeline, cursors, st, ws.Options{
		Heartbeat:   cfg.HeartbeatInterval,
		AuthTimeout: cfg.AuthTimeout,
		SendBuffer:  cfg.SendBuffer,
		Origins:     cfg.CORSOrigins,
	}, logger)
	r.Get("/chat", socket.ServeHTTP)

	return r
}
