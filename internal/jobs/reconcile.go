package jobs

import (
	"context"
	"fmt"

	"github.com/diagnosis/parkspot/pkg/logger"
)

// ReconcileAvailability frees listings that are marked unavailable but have no
// pending or active booking. Only listings untouched for the grace period are
// considered, and the release is conditional on that still being true, so a
// reservation that is mid-flight is never undone.
func (r *Runner) ReconcileAvailability(ctx context.Context) (int, error) {
	now := r.clock.Now().UTC()
	cutoff := now.Add(-r.cfg.ReservationGrace)

	ids, err := r.listings.ListReservedIDs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list reserved listings: %w", err)
	}

	released := 0
	for _, id := range ids {
		open, err := r.bookings.HasOpenBooking(ctx, id)
		if err != nil {
			logger.Warn("Open booking check failed", "listing_id", id.Hex(), "error", err)
			continue
		}
		if open {
			continue
		}
		ok, err := r.listings.ReleaseStale(ctx, id, cutoff, now)
		if err != nil {
			logger.Warn("Stale release failed", "listing_id", id.Hex(), "error", err)
			continue
		}
		if ok {
			released++
			logger.Info("Released orphaned listing", "listing_id", id.Hex())
		}
	}
	return released, nil
}

func (r *Runner) Reconcile() {
	r.run("reconcile_availability", sweepTimeout, func(ctx context.Context) error {
		_, err := r.ReconcileAvailability(ctx)
		return err
	})
}

// CleanupRateLimits drops expired rate limit windows. It is a no-op without
// a rate limit store.
func (r *Runner) CleanupRateLimits() {
	if r.rateLimits == nil {
		return
	}
	r.run("rate_limit_cleanup", sweepTimeout, func(ctx context.Context) error {
		n, err := r.rateLimits.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("Expired rate limits removed", "rows", n)
		}
		return nil
	})
}
