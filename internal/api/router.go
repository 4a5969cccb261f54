package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"celldock/internal/services"
)

// Router sets up the HTTP router with all routes and middleware
func Router(logger *zap.Logger, handlers *Handlers, jwtService *services.JWTService, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.With(middleware.Timeout(30*time.Second)).Post("/", handlers.CreateSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Use(AuthMiddleware(jwtService, logger))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))
				r.Get("/", handlers.GetSession)
				r.Get("/stages", handlers.GetStages)
				r.Post("/replay", handlers.EnqueueReplay)
				r.Get("/replays/{replayID}", handlers.GetReplay)
				r.Delete("/", handlers.DeleteSession)
			})

			// Execution routes have no deadline
			r.Post("/execute", handlers.Execute)
			r.Get("/ws", handlers.ServeWebSocket)
		})
	})

	return r
}
