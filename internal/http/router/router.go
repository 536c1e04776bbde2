// Package router assembles the API's chi router.
package router

import (
	"net/http"
	"time"

	"github.com/diagnosis/parkspot/internal/http/handlers"
	mw "github.com/diagnosis/parkspot/internal/http/middleware"
	"github.com/diagnosis/parkspot/internal/http/response"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/internal/service"
	"github.com/diagnosis/parkspot/pkg/config"
	pkgmw "github.com/diagnosis/parkspot/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const serviceName = "parkspot-api"

// Deps are the services and optional stores behind the API. RateLimits and
// Idempotency may be nil; the matching middleware is then a pass-through.
type Deps struct {
	Auth         service.AuthService
	Users        service.UserService
	Listings     service.ListingService
	Bookings     service.BookingService
	RateLimits   repo.RateLimitRepository
	Idempotency  pkgmw.IdempotencyStore
	HealthChecks map[string]pkgmw.HealthCheck
	// UploadsDir is served at /uploads/ when images are stored on local disk.
	UploadsDir string
}

func New(cfg *config.Config, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(pkgmw.RequestID)
	r.Use(pkgmw.ServiceName(serviceName))
	r.Use(pkgmw.Logging)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replay"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(pkgmw.Health(d.HealthChecks))

	if d.UploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadsDir))))
	}

	limiter := mw.NewRateLimiter(d.RateLimits, mw.RateLimitConfig{
		Requests: cfg.Auth.LoginRateLimit,
		Window:   cfg.Auth.RateLimitWindow,
	})
	cookie := handlers.CookieConfig{
		Name:   cfg.Auth.CookieName,
		TTL:    cfg.Auth.AccessTokenTTL,
		Secure: cfg.IsProduction(),
	}
	idempotency := pkgmw.Idempotency(d.Idempotency, idempotencyTTL(cfg), mw.CallerScope)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/auth", handlers.NewAuthHandler(d.Auth, cookie, limiter.Middleware()).Routes())

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(d.Auth, cfg.Auth.CookieName))
			r.Mount("/user", handlers.NewUserHandler(d.Users).Routes())
			r.Mount("/parking", handlers.NewParkingHandler(d.Listings).Routes())
			r.Mount("/booking", handlers.NewBookingHandler(d.Bookings, idempotency).Routes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, "Route not found")
	})
	return r
}

func idempotencyTTL(cfg *config.Config) time.Duration {
	if cfg.Redis.IdempotencyTTL > 0 {
		return cfg.Redis.IdempotencyTTL
	}
	return 24 * time.Hour
}
