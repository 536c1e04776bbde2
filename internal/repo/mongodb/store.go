package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/repo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection    = "users"
	ParkingsCollection = "parkings"
	BookingsCollection = "bookings"

	opTimeout    = 3 * time.Second
	sweepTimeout = 10 * time.Second
)

// Store groups the Mongo-backed repositories over one database.
type Store struct {
	db       *mongo.Database
	Users    repo.UserRepository
	Listings repo.ListingRepository
	Bookings repo.BookingRepository
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		Users:    NewUserRepository(db),
		Listings: NewListingRepository(db),
		Bookings: NewBookingRepository(db),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// EnsureIndexes creates the unique and geo indexes the repositories rely on.
// It is idempotent and safe to run on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	specs := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName("username_unique")},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
		},
		ParkingsCollection: {
			{Keys: bson.D{{Key: "location", Value: "2dsphere"}}, Options: options.Index().SetName("location_2dsphere")},
			{Keys: bson.D{{Key: "owner", Value: 1}}, Options: options.Index().SetName("owner")},
		},
		BookingsCollection: {
			{Keys: bson.D{{Key: "parking", Value: 1}}, Options: options.Index().SetName("parking")},
			{Keys: bson.D{{Key: "renter", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("renter_created")},
		},
	}

	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// duplicateField maps a duplicate key error to the offending field so the
// caller gets a specific conflict message.
func duplicateField(err error) string {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return fieldFromMessage(e.Message)
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return fieldFromMessage(ce.Message)
	}
	if mongo.IsDuplicateKeyError(err) {
		return "record"
	}
	return ""
}

func fieldFromMessage(msg string) string {
	switch {
	case strings.Contains(msg, "username"):
		return "username"
	case strings.Contains(msg, "email"):
		return "email"
	default:
		return "record"
	}
}

func conflictFor(err error) error {
	switch duplicateField(err) {
	case "":
		return nil
	case "username":
		return domain.ConflictError("Username already exists")
	case "email":
		return domain.ConflictError("Email already exists")
	default:
		return domain.ConflictError("Record already exists")
	}
}
