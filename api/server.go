/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: One zap line per request
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the web client

  Authenticated group:
  5. RequireUser:   Bearer token -> caller identity

  Reward and transfer POSTs:
  6. Throttle:      Per-user token bucket
  7. InFlight:      One running request per user and route

ROUTE GROUPS:
  /api/health           Public
  /api/session, /me     Account
  /api/captcha, /spin,
  /scratch, /ad         Rewards
  /api/transfers        Transfers

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Custom middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	Verifier       TokenVerifier
	Logger         *zap.Logger

	// RateLimitPerMinute bounds balance-changing requests per user.
	// 0 disables throttling.
	RateLimitPerMinute int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	inflight := NewInFlight()

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser(opts.Verifier))

			// Account routes
			r.Post("/session", h.CreateSession)
			r.Get("/me", h.GetMe)
			r.Get("/me/transactions", h.ListTransactions)
			r.Get("/captcha", h.NewCaptcha)

			// Balance-changing routes
			r.Group(func(r chi.Router) {
				if opts.RateLimitPerMinute > 0 {
					r.Use(NewThrottle(opts.RateLimitPerMinute).Middleware)
				}
				r.Use(inflight.Middleware)

				r.Post("/captcha", h.SolveCaptcha)
				r.Post("/spin", h.Spin)
				r.Post("/spin/extra", h.ExtraSpin)
				r.Post("/scratch", h.Scratch)
				r.Post("/scratch/extra", h.ExtraScratch)
				r.Post("/ad", h.WatchAd)
				r.Post("/transfers", h.Transfer)
			})
		})
	})

	return r
}
