package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diagnosis/parkspot/internal/jobs"
	"github.com/diagnosis/parkspot/internal/mailer"
	"github.com/diagnosis/parkspot/internal/platform/clock"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/internal/repo/mongodb"
	"github.com/diagnosis/parkspot/internal/repo/postgres"
	"github.com/diagnosis/parkspot/pkg/config"
	"github.com/diagnosis/parkspot/pkg/database"
	"github.com/diagnosis/parkspot/pkg/events"
	"github.com/diagnosis/parkspot/pkg/logger"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Parkspot worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.NATS.URL == "" {
		return errors.New("NATS_URL is required for the worker")
	}

	client, db, err := database.ConnectMongo(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}()
	store := mongodb.NewStore(db)

	var rateLimits repo.RateLimitRepository
	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		rateLimits = postgres.NewRateLimitRepo(pool)
	}

	bus, err := events.NewNATSEventBus(cfg.NATS.URL, "parkspot-worker")
	if err != nil {
		return err
	}
	defer bus.Close()

	runner := jobs.NewRunner(jobs.Deps{
		Users:      store.Users,
		Listings:   store.Listings,
		Bookings:   store.Bookings,
		RateLimits: rateLimits,
		Mailer:     mailer.New(cfg.Email),
		Clock:      clock.System(),
	}, cfg.Jobs)

	if err := runner.Subscribe(bus); err != nil {
		return err
	}
	scheduler, err := jobs.NewScheduler(runner)
	if err != nil {
		return err
	}
	scheduler.Start()

	logger.Info("Parkspot worker running")
	<-ctx.Done()
	logger.Info("Shutting down parkspot worker...")
	scheduler.Stop()
	return nil
}
