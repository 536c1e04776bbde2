package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/parkspot/internal/http/router"
	"github.com/diagnosis/parkspot/internal/jobs"
	"github.com/diagnosis/parkspot/internal/mailer"
	"github.com/diagnosis/parkspot/internal/platform/clock"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/internal/repo/cache"
	"github.com/diagnosis/parkspot/internal/repo/mongodb"
	"github.com/diagnosis/parkspot/internal/repo/postgres"
	"github.com/diagnosis/parkspot/internal/service"
	"github.com/diagnosis/parkspot/internal/storage"
	"github.com/diagnosis/parkspot/pkg/config"
	"github.com/diagnosis/parkspot/pkg/database"
	"github.com/diagnosis/parkspot/pkg/events"
	"github.com/diagnosis/parkspot/pkg/logger"
	pkgmw "github.com/diagnosis/parkspot/pkg/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Parkspot API stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client, db, err := database.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		return err
	}
	store := mongodb.NewStore(db)
	checks := map[string]pkgmw.HealthCheck{"mongo": store.Ping}

	// Login throttling is optional; without Postgres the limiter passes everything.
	var rateLimits repo.RateLimitRepository
	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		rl := postgres.NewRateLimitRepo(pool)
		if err := rl.EnsureSchema(ctx); err != nil {
			return err
		}
		rateLimits = rl
		checks["postgres"] = rl.Ping
	} else {
		logger.Warn("DATABASE_URL not set, login rate limiting disabled")
	}

	var idempotency pkgmw.IdempotencyStore
	if cfg.Redis.URL != "" {
		rc, err := database.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rc.Close()
		is := cache.NewIdempotencyStore(rc)
		idempotency = is
		checks["redis"] = is.Ping
	}

	images, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	var uploadsDir string
	if local, ok := images.(*storage.LocalStore); ok {
		uploadsDir = local.Dir()
	}

	peak, err := clock.NewPeakWindow(cfg.Pricing.PeakStartHour, cfg.Pricing.PeakEndHour, cfg.Pricing.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid peak window: %w", err)
	}
	clk := clock.System()

	// With NATS the worker binary owns background jobs. Without it the API
	// runs them in process against a memory bus.
	var bus events.EventBus
	var scheduler *jobs.Scheduler
	if cfg.NATS.URL != "" {
		nb, err := events.NewNATSEventBus(cfg.NATS.URL, "parkspot-api")
		if err != nil {
			return err
		}
		bus = nb
		checks["nats"] = nb.Ping
	} else {
		logger.Warn("NATS_URL not set, running background jobs in process")
		mem := events.NewMemoryBus()
		runner := jobs.NewRunner(jobs.Deps{
			Users:      store.Users,
			Listings:   store.Listings,
			Bookings:   store.Bookings,
			RateLimits: rateLimits,
			Mailer:     mailer.New(cfg.Email),
			Clock:      clk,
		}, cfg.Jobs)
		if err := runner.Subscribe(mem); err != nil {
			return err
		}
		if scheduler, err = jobs.NewScheduler(runner); err != nil {
			return err
		}
		bus = mem
	}
	defer bus.Close()

	handler := router.New(cfg, router.Deps{
		Auth:  service.NewAuthService(store.Users, cfg.Auth, clk),
		Users: service.NewUserService(store.Users, store.Listings, images, clk),
		Listings: service.NewListingService(store.Listings, store.Users, images, bus, clk, service.ListingOptions{
			Peak:     peak,
			MaxSurge: cfg.Pricing.MaxSurge,
		}),
		Bookings: service.NewBookingService(store.Bookings, store.Listings, store.Users, bus, clk, service.BookingOptions{
			Location: peak.Location,
		}),
		RateLimits:   rateLimits,
		Idempotency:  idempotency,
		HealthChecks: checks,
		UploadsDir:   uploadsDir,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if scheduler != nil {
		scheduler.Start()
		defer scheduler.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting parkspot API", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down parkspot API...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return g.Wait()
}
