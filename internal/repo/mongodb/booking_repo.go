package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diagnosis/parkspot/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bookingRepository struct {
	coll *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *bookingRepository {
	return &bookingRepository{coll: db.Collection(BookingsCollection)}
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var b domain.Booking
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return &b, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, next domain.BookingStatus, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": next, "updatedAt": now}},
	)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (r *bookingRepository) ListForUser(ctx context.Context, renterID primitive.ObjectID, listingIDs []primitive.ObjectID) ([]*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	or := bson.A{bson.M{"renter": renterID}}
	if len(listingIDs) > 0 {
		or = append(or, bson.M{"parking": bson.M{"$in": listingIDs}})
	}
	cur, err := r.coll.Find(ctx, bson.M{"$or": or}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	bookings := []*domain.Booking{}
	if err := cur.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) AverageDuration(ctx context.Context, listingID primitive.ObjectID) (float64, int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"parking": listingID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"avg":   bson.M{"$avg": "$duration"},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate durations: %w", err)
	}
	var rows []struct {
		Avg   float64 `bson:"avg"`
		Count int     `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, 0, fmt.Errorf("decode durations: %w", err)
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Avg, rows[0].Count, nil
}

func (r *bookingRepository) ListingIDsWithBookings(ctx context.Context) ([]primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	raw, err := r.coll.Distinct(ctx, "parking", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("distinct listings: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *bookingRepository) HasOpenBooking(ctx context.Context, listingID primitive.ObjectID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{
		"parking": listingID,
		"status":  bson.M{"$in": bson.A{domain.BookingPending, domain.BookingActive}},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count open bookings: %w", err)
	}
	return n > 0, nil
}
