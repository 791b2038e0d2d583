package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/alxtim10/alx-auth/internal/api/auth"
	"github.com/alxtim10/alx-auth/internal/api/user"
)

// Config contains dependencies needed for the router setup.
type Config struct {
	AuthHandler            *auth.AuthHandler
	UserHandler            *user.UserHandler
	AuthenticateMiddleware func(http.Handler) http.Handler
	RequireUser            func(http.Handler) http.Handler
	RequireAdmin           func(http.Handler) http.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to
// be applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// Public auth routes. Logout is public on purpose: the refresh
		// token in the body is the credential.
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
			r.Post("/auth/refresh", cfg.AuthHandler.Refresh)
			r.Post("/auth/logout", cfg.AuthHandler.Logout)
			r.Post("/auth/request-verify", cfg.AuthHandler.RequestEmailVerification)
			r.Post("/auth/verify-email", cfg.AuthHandler.VerifyEmail)
			r.Post("/auth/forgot-password", cfg.AuthHandler.ForgotPassword)
			r.Post("/auth/reset-password", cfg.AuthHandler.ResetPassword)
		})

		// Routes for any authenticated user.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)
			r.Use(cfg.RequireUser)

			r.Post("/auth/change-password", cfg.AuthHandler.ChangePassword)
		})

		// Administrative user lifecycle.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthenticateMiddleware)
			r.Use(cfg.RequireAdmin)

			r.Get("/users", cfg.UserHandler.ListUsers)
			r.Get("/users/{id}", cfg.UserHandler.GetUser)
			r.Put("/users/{id}", cfg.UserHandler.UpdateUser)
			r.Delete("/users/{id}", cfg.UserHandler.DeleteUser)
		})
	})

	return r
}
