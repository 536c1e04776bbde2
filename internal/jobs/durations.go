package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/diagnosis/parkspot/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// RecomputeListing stores the mean duration of every booking on the listing.
// Listings without bookings keep their stored value.
func (r *Runner) RecomputeListing(ctx context.Context, listingID primitive.ObjectID) error {
	avg, count, err := r.bookings.AverageDuration(ctx, listingID)
	if err != nil {
		return fmt.Errorf("average duration for %s: %w", listingID.Hex(), err)
	}
	if count == 0 {
		return nil
	}
	if err := r.listings.SetAverageDuration(ctx, listingID, avg); err != nil {
		return fmt.Errorf("store average duration for %s: %w", listingID.Hex(), err)
	}
	return nil
}

// SweepDurations recomputes every listing that has at least one booking. A
// failing listing is logged and skipped; the sweep reports how many succeeded.
func (r *Runner) SweepDurations(ctx context.Context) (int, error) {
	ids, err := r.bookings.ListingIDsWithBookings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list booked listings: %w", err)
	}

	var updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.SweepConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := r.RecomputeListing(gctx, id); err != nil {
				logger.Warn("Duration recompute failed", "listing_id", id.Hex(), "error", err)
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(updated.Load()), err
	}
	return int(updated.Load()), nil
}

// DurationSweep is the cron entry point for SweepDurations.
func (r *Runner) DurationSweep() {
	r.run("duration_sweep", sweepTimeout, func(ctx context.Context) error {
		n, err := r.SweepDurations(ctx)
		if err != nil {
			return err
		}
		logger.Info("Duration sweep finished", "listings", n)
		return nil
	})
}
