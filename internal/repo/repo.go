// Package repo declares the persistence contracts the services depend on.
// Not-found lookups return (nil, nil); implementations wrap driver failures.
package repo

import (
	"context"
	"time"

	"github.com/diagnosis/parkspot/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	// Create assigns the id. A duplicate username or email is a ConflictError.
	Create(ctx context.Context, u *domain.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	PushHistory(ctx context.Context, userID primitive.ObjectID, entry domain.HistoryEntry) error
}

type ListingRepository interface {
	Create(ctx context.Context, l *domain.Listing) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Listing, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*domain.Listing, error)
	ListAvailable(ctx context.Context) ([]*domain.Listing, error)
	ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]*domain.Listing, error)
	// Nearby returns available listings nearest first.
	Nearby(ctx context.Context, q domain.NearbyQuery) ([]*domain.Listing, error)
	// Reserve flips availability from true to false atomically and returns the
	// listing as it was reserved, or nil when it was missing or already taken.
	Reserve(ctx context.Context, id primitive.ObjectID, now time.Time) (*domain.Listing, error)
	Release(ctx context.Context, id primitive.ObjectID, now time.Time) error
	UpdateSurge(ctx context.Context, id primitive.ObjectID, surge float64, now time.Time) (*domain.Listing, error)
	SetAverageDuration(ctx context.Context, id primitive.ObjectID, avg float64) error
	// ListReservedIDs returns unavailable listings last touched before cutoff.
	ListReservedIDs(ctx context.Context, cutoff time.Time) ([]primitive.ObjectID, error)
	// ReleaseStale releases the listing only if it has not been touched since
	// cutoff, so a reservation made in the meantime is left alone.
	ReleaseStale(ctx context.Context, id primitive.ObjectID, cutoff, now time.Time) (bool, error)
}

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Booking, error)
	// UpdateStatus writes next only if the stored status is still from.
	// It reports false when another writer got there first.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, next domain.BookingStatus, now time.Time) (bool, error)
	// ListForUser returns bookings made by renterID or on any of listingIDs, newest first.
	ListForUser(ctx context.Context, renterID primitive.ObjectID, listingIDs []primitive.ObjectID) ([]*domain.Booking, error)
	// AverageDuration is the mean duration of every booking on a listing.
	AverageDuration(ctx context.Context, listingID primitive.ObjectID) (avg float64, count int, err error)
	ListingIDsWithBookings(ctx context.Context) ([]primitive.ObjectID, error)
	// HasOpenBooking reports whether a pending or active booking holds the listing.
	HasOpenBooking(ctx context.Context, listingID primitive.ObjectID) (bool, error)
}

type RateLimitRepository interface {
	// CheckRateLimit counts one hit for key and reports whether it is still within limit.
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	CleanupExpired(ctx context.Context) (int64, error)
}
