package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/parkspot/internal/confirm"
	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/platform/clock"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/pkg/events"
	"github.com/diagnosis/parkspot/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// confirmationTimeFormat matches the millisecond ISO timestamps scanners expect.
const confirmationTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type BookingService interface {
	CreateBooking(ctx context.Context, caller Caller, req *domain.CreateBookingRequest) (*domain.Booking, error)
	CheckInOut(ctx context.Context, caller Caller, req *domain.CheckInOutRequest) (*domain.Booking, error)
	GetBooking(ctx context.Context, caller Caller, id string) (*domain.Booking, error)
	ListMine(ctx context.Context, caller Caller) ([]*domain.Booking, error)
	ConfirmationQR(ctx context.Context, caller Caller, id string) ([]byte, error)
}

// BookingOptions carries the zone used for start times sent without an offset.
type BookingOptions struct {
	Location *time.Location
}

type bookingService struct {
	bookings repo.BookingRepository
	listings repo.ListingRepository
	users    repo.UserRepository
	bus      events.Publisher
	clock    clock.Clock
	opts     BookingOptions
}

func NewBookingService(
	bookings repo.BookingRepository,
	listings repo.ListingRepository,
	users repo.UserRepository,
	bus events.Publisher,
	clk clock.Clock,
	opts BookingOptions,
) BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &bookingService{bookings: bookings, listings: listings, users: users, bus: bus, clock: clk, opts: opts}
}

func (s *bookingService) CreateBooking(ctx context.Context, caller Caller, req *domain.CreateBookingRequest) (*domain.Booking, error) {
	if err := req.Normalize(s.opts.Location); err != nil {
		return nil, err
	}
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	listingID, err := parseID(req.ListingID, "parking")
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	listing, err := s.listings.Reserve(ctx, listingID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve parking: %w", err)
	}
	if listing == nil {
		return nil, domain.ValidationError("Parking not available!")
	}

	booking, err := s.buildBooking(caller, listing, req, now)
	if err == nil {
		err = s.bookings.Create(ctx, booking)
	}
	if err != nil {
		s.release(ctx, listingID, "booking insert failed")
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	entry := domain.HistoryEntry{ParkingID: listingID, Duration: req.DurationHours, Time: now}
	if err := s.users.PushHistory(ctx, caller.ID, entry); err != nil {
		logger.ErrorContext(ctx, "Failed to record parking history", "booking_id", booking.ID.Hex(), "error", err)
	}

	if err := s.bus.Publish(ctx, events.BookingCreated, events.BookingCreatedEvent{
		BookingID:  booking.ID.Hex(),
		ListingID:  listingID.Hex(),
		RenterID:   caller.ID.Hex(),
		Duration:   booking.Duration,
		TotalPrice: booking.TotalPrice,
		StartTime:  booking.StartTime,
		CreatedAt:  now,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish booking created", "booking_id", booking.ID.Hex(), "error", err)
	}

	logger.InfoContext(ctx, "Booking created",
		"booking_id", booking.ID.Hex(),
		"listing_id", listingID.Hex(),
		"total_price", booking.TotalPrice,
	)
	return booking, nil
}

// buildBooking prices the booking from the reserved snapshot and renders its QR code.
func (s *bookingService) buildBooking(caller Caller, listing *domain.Listing, req *domain.CreateBookingRequest, now time.Time) (*domain.Booking, error) {
	payload, err := confirm.Payload(domain.ConfirmationPayload{
		BookingID: now.Format(confirmationTimeFormat),
		ParkingID: listing.ID.Hex(),
		RenterID:  caller.ID.Hex(),
	})
	if err != nil {
		return nil, err
	}
	qr, err := confirm.DataURL(payload)
	if err != nil {
		return nil, err
	}

	start := req.StartTime.UTC()
	return &domain.Booking{
		ID:           primitive.NewObjectID(),
		RenterID:     caller.ID,
		ParkingID:    listing.ID,
		StartTime:    start,
		EndTime:      start.Add(time.Duration(req.DurationHours * float64(time.Hour))),
		Duration:     req.DurationHours,
		TotalPrice:   listing.PriceFor(req.DurationHours),
		Confirmation: payload,
		QRCode:       qr,
		Status:       domain.BookingPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *bookingService) release(ctx context.Context, listingID primitive.ObjectID, reason string) {
	if err := s.listings.Release(ctx, listingID, s.clock.Now().UTC()); err != nil {
		logger.ErrorContext(ctx, "Failed to release parking", "listing_id", listingID.Hex(), "reason", reason, "error", err)
	}
}

func (s *bookingService) CheckInOut(ctx context.Context, caller Caller, req *domain.CheckInOutRequest) (*domain.Booking, error) {
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	next, ok := domain.ParseBookingStatus(req.Status)
	if !ok {
		return nil, domain.ValidationError("Status must be pending, active, completed or cancelled")
	}

	booking, err := s.load(ctx, caller, req.BookingID)
	if err != nil {
		return nil, err
	}

	from := booking.Status
	now := s.clock.Now().UTC()
	if err := booking.Transition(next, now); err != nil {
		return nil, err
	}
	updated, err := s.bookings.UpdateStatus(ctx, booking.ID, from, next, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	if !updated {
		return nil, domain.ConflictError("Booking was changed by another request")
	}

	if next.ReleasesListing() {
		// The status change is already committed; a failed release is repaired by the sweep.
		s.release(ctx, booking.ParkingID, string(next))
	}

	ev := events.BookingStatusChangedEvent{
		BookingID: booking.ID.Hex(),
		ListingID: booking.ParkingID.Hex(),
		From:      string(from),
		To:        string(next),
		ChangedBy: caller.ID.Hex(),
		ChangedAt: now,
	}
	if err := s.bus.Publish(ctx, events.BookingStatusChanged, ev); err != nil {
		logger.WarnContext(ctx, "Failed to publish status change", "booking_id", booking.ID.Hex(), "error", err)
	}

	logger.InfoContext(ctx, "Booking status changed", "booking_id", booking.ID.Hex(), "from", from, "to", next)
	return booking, nil
}

// load fetches a booking the caller may see: its renter or the listing owner.
func (s *bookingService) load(ctx context.Context, caller Caller, rawID string) (*domain.Booking, error) {
	id, err := parseID(rawID, "booking")
	if err != nil {
		return nil, err
	}
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, domain.NotFoundError("Booking not found!")
	}

	listing, err := s.listings.FindByID(ctx, booking.ParkingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parking: %w", err)
	}
	isOwner := listing != nil && listing.OwnerID == caller.ID
	if !booking.IsRenter(caller.ID) && !isOwner {
		return nil, domain.AuthorizationError("Unauthorized!")
	}
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, caller Caller, id string) (*domain.Booking, error) {
	return s.load(ctx, caller, id)
}

func (s *bookingService) ListMine(ctx context.Context, caller Caller) ([]*domain.Booking, error) {
	var owned []primitive.ObjectID
	if caller.IsOwner() {
		listings, err := s.listings.ListByOwner(ctx, caller.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load owned parking: %w", err)
		}
		for _, l := range listings {
			owned = append(owned, l.ID)
		}
	}
	bookings, err := s.bookings.ListForUser(ctx, caller.ID, owned)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (s *bookingService) ConfirmationQR(ctx context.Context, caller Caller, id string) ([]byte, error) {
	booking, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	png, err := confirm.PNG(booking.Confirmation)
	if err != nil {
		return nil, fmt.Errorf("failed to render confirmation: %w", err)
	}
	return png, nil
}
