package jobs

import (
	"context"
	"fmt"

	"github.com/diagnosis/parkspot/pkg/events"
	"github.com/diagnosis/parkspot/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscribe attaches the event-driven jobs to bus. Queue groups make sure each
// event is handled once when several workers run.
func (r *Runner) Subscribe(bus events.Subscriber) error {
	if err := bus.QueueSubscribe(events.BookingCreated, events.DurationStatsQueue, r.onBookingCreatedStats); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.BookingCreated, err)
	}
	if err := bus.QueueSubscribe(events.BookingCreated, events.NotifyQueue, r.onBookingCreatedNotify); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.BookingCreated, err)
	}
	if err := bus.Subscribe(events.BookingStatusChanged, r.onStatusChanged); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.BookingStatusChanged, err)
	}
	logger.Info("Job consumers subscribed")
	return nil
}

func (r *Runner) onBookingCreatedStats(msg *events.Message) {
	var ev events.BookingCreatedEvent
	if err := msg.Decode(&ev); err != nil {
		logger.Warn("Dropping malformed event", "subject", msg.Subject, "event_id", msg.ID, "error", err)
		return
	}
	id, err := primitive.ObjectIDFromHex(ev.ListingID)
	if err != nil {
		logger.Warn("Dropping event with bad listing id", "event_id", msg.ID, "listing_id", ev.ListingID)
		return
	}
	r.run("duration_recompute", eventTimeout, func(ctx context.Context) error {
		return r.RecomputeListing(ctx, id)
	})
}

func (r *Runner) onBookingCreatedNotify(msg *events.Message) {
	var ev events.BookingCreatedEvent
	if err := msg.Decode(&ev); err != nil {
		logger.Warn("Dropping malformed event", "subject", msg.Subject, "event_id", msg.ID, "error", err)
		return
	}
	r.run("booking_confirmation", eventTimeout, func(ctx context.Context) error {
		return r.SendConfirmation(ctx, ev)
	})
}

func (r *Runner) onStatusChanged(msg *events.Message) {
	var ev events.BookingStatusChangedEvent
	if err := msg.Decode(&ev); err != nil {
		logger.Warn("Dropping malformed event", "subject", msg.Subject, "event_id", msg.ID, "error", err)
		return
	}
	logger.Info("Booking status changed",
		"booking_id", ev.BookingID,
		"listing_id", ev.ListingID,
		"from", ev.From,
		"to", ev.To,
	)
}
