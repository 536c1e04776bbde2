package jobs

import (
	"context"
	"fmt"

	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/mailer"
	"github.com/diagnosis/parkspot/pkg/events"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SendConfirmation mails the renter of a newly created booking. Addresses and
// prices are read back from storage rather than trusted from the event.
func (r *Runner) SendConfirmation(ctx context.Context, ev events.BookingCreatedEvent) error {
	if r.mailer == nil {
		return nil
	}
	bookingID, err := primitive.ObjectIDFromHex(ev.BookingID)
	if err != nil {
		return fmt.Errorf("booking id %q: %w", ev.BookingID, err)
	}

	booking, err := r.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}
	if booking == nil {
		return domain.NotFoundError("Booking not found!")
	}
	renter, err := r.users.FindByID(ctx, booking.RenterID)
	if err != nil {
		return fmt.Errorf("load renter: %w", err)
	}
	if renter == nil || renter.Email == "" {
		return domain.NotFoundError("User not found!")
	}
	listing, err := r.listings.FindByID(ctx, booking.ParkingID)
	if err != nil {
		return fmt.Errorf("load parking: %w", err)
	}
	address := ""
	if listing != nil {
		address = listing.Address
	}

	return r.mailer.SendBookingConfirmation(ctx, mailer.BookingConfirmation{
		ToEmail:    renter.Email,
		ToName:     renter.Username,
		BookingID:  booking.ID.Hex(),
		Address:    address,
		StartTime:  booking.StartTime,
		EndTime:    booking.EndTime,
		TotalPrice: booking.TotalPrice,
	})
}
