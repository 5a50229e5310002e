package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/luckyshop/server/internal/http/handlers"
	"github.com/luckyshop/server/internal/middleware"
	"github.com/luckyshop/server/internal/repo"
)

// RouterDeps collects what the router needs to wire its middleware stack
type RouterDeps struct {
	Auth          *handlers.AuthHandler
	Authenticator middleware.Authenticator
	Cookies       middleware.CookieConfig
	Settings      repo.SettingRepo
	// Limiter throttles the unauthenticated auth endpoints per client IP; nil disables it
	Limiter        middleware.Limiter
	AllowedOrigins []string
}

// NewRouter creates a new HTTP router with all routes configured. Auth routes are served both at the root
// and under /api/v1.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Maintenance(deps.Settings, "/health", "/api/v1/health"))

	healthHandler := handlers.NewHealthHandler()

	authRoutes := func(r chi.Router) {
		r.Get("/health", healthHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			if deps.Limiter != nil {
				r.Use(middleware.RateLimitMiddleware(deps.Limiter, middleware.GetIPKey))
			}
			r.Post("/register", deps.Auth.HandleRegister)
			r.Post("/verify-otp", deps.Auth.HandleVerifyOTP)
			r.Post("/confirm-password", deps.Auth.HandleConfirmPassword)
			r.Post("/login", deps.Auth.HandleLogin)
			r.Post("/request-otp", deps.Auth.HandleRequestOTP)
			r.Post("/verify-otp-password", deps.Auth.HandleVerifyOTPPassword)
			r.Post("/reset-password", deps.Auth.HandleResetPassword)
		})
		r.Post("/logout", deps.Auth.HandleLogout)

		// Protected routes (require a valid session)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.Authenticator, deps.Cookies))
			r.Get("/auth-check", deps.Auth.HandleAuthCheck)
		})
	}

	r.Group(authRoutes)
	r.Route("/api/v1", authRoutes)

	return r
}
