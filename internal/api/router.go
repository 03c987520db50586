package api

import (
	"net/http"

	"github.com/Rrens/chatvault/internal/api/handler"
	customMiddleware "github.com/Rrens/chatvault/internal/api/middleware"
	"github.com/Rrens/chatvault/internal/config"
	"github.com/Rrens/chatvault/internal/llm"
	"github.com/Rrens/chatvault/internal/repository/redis"
	"github.com/Rrens/chatvault/internal/security"
	"github.com/Rrens/chatvault/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Dependencies are the services the HTTP layer is built on
type Dependencies struct {
	Auth     *service.AuthService
	Sessions *service.SessionManager
	Chat     *service.ChatService
	LLM      *llm.Router
	JWT      *security.JWTManager
	Store    handler.Pinger
	// RateLimiter is optional; chat requests are unlimited without it
	RateLimiter *redis.RateLimiter
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.Server.MiddlewareTimeout > 0 {
		r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))
	}

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authHandler := handler.NewAuthHandler(deps.Auth)
	conversationHandler := handler.NewConversationHandler()
	chatHandler := handler.NewChatHandler(deps.Chat)
	syncHandler := handler.NewSyncHandler()

	authMiddleware := customMiddleware.NewAuthMiddleware(deps.JWT, deps.Sessions)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(deps.Store))

		r.Post("/auth/sign-in", authHandler.SignIn)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Route("/auth", func(r chi.Router) {
				r.Get("/me", authHandler.Me)
				r.Post("/sign-out", authHandler.SignOut)
				r.Put("/access-token", authHandler.UpdateAccessToken)
			})

			r.Get("/llm-providers", handler.ListLLMProviders(deps.LLM))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", conversationHandler.List)
				r.Post("/", conversationHandler.Create)
				r.Get("/active", conversationHandler.Active)
				r.Put("/active", conversationHandler.SetActive)

				r.Route("/{conversationID}", func(r chi.Router) {
					r.Get("/", conversationHandler.Get)
					r.Patch("/", conversationHandler.Rename)
					r.Delete("/", conversationHandler.Delete)
					r.Post("/messages", conversationHandler.AppendMessage)
				})
			})

			r.Group(func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(customMiddleware.NewRateLimitMiddleware(deps.RateLimiter).Limit)
				}
				r.Post("/chat", chatHandler.Send)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Get("/status", syncHandler.Status)
				r.Post("/push", syncHandler.Push)
				r.Post("/pull", syncHandler.Pull)
			})
		})
	})

	return r
}
