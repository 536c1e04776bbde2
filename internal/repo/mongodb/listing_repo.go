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

type listingRepository struct {
	coll *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *listingRepository {
	return &listingRepository{coll: db.Collection(ParkingsCollection)}
}

func (r *listingRepository) Create(ctx context.Context, l *domain.Listing) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	if l.Images == nil {
		l.Images = []domain.Image{}
	}
	if _, err := r.coll.InsertOne(ctx, l); err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (r *listingRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var l domain.Listing
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	return &l, nil
}

func (r *listingRepository) find(ctx context.Context, filter any, opts ...*options.FindOptions) ([]*domain.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("find listings: %w", err)
	}
	listings := []*domain.Listing{}
	if err := cur.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return listings, nil
}

func (r *listingRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*domain.Listing, error) {
	if len(ids) == 0 {
		return []*domain.Listing{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (r *listingRepository) ListAvailable(ctx context.Context) ([]*domain.Listing, error) {
	return r.find(ctx, bson.M{"availability": true}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (r *listingRepository) ListByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]*domain.Listing, error) {
	return r.find(ctx, bson.M{"owner": ownerID})
}

// Nearby relies on $near for distance ordering, so no explicit sort is set.
func (r *listingRepository) Nearby(ctx context.Context, q domain.NearbyQuery) ([]*domain.Listing, error) {
	filter := nearbyFilter(q)
	limit := q.Limit
	if limit <= 0 {
		limit = domain.NearbyResultLimit
	}
	return r.find(ctx, filter, options.Find().SetLimit(int64(limit)))
}

func nearbyFilter(q domain.NearbyQuery) bson.M {
	maxDistance := q.MaxDistance
	if maxDistance <= 0 {
		maxDistance = domain.DefaultNearbyRadiusM
	}
	filter := bson.M{
		"location": bson.M{
			"$near": bson.M{
				"$geometry":    domain.NewGeoPoint(q.Lat, q.Lng),
				"$maxDistance": maxDistance,
			},
		},
		"availability": true,
	}
	if len(q.VehicleTypes) > 0 {
		filter["vehicleType"] = bson.M{"$in": q.VehicleTypes}
	}
	if q.MinSurge != nil {
		filter["surgeMultiplier"] = bson.M{"$gte": *q.MinSurge}
	}
	return filter
}

func (r *listingRepository) Reserve(ctx context.Context, id primitive.ObjectID, now time.Time) (*domain.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Returning the pre-image gives the price inputs the reservation was made against.
	var l domain.Listing
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "availability": true},
		bson.M{"$set": bson.M{"availability": false, "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reserve listing: %w", err)
	}
	l.Availability = false
	l.UpdatedAt = now
	return &l, nil
}

func (r *listingRepository) Release(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"availability": true, "updatedAt": now}})
	if err != nil {
		return fmt.Errorf("release listing: %w", err)
	}
	return nil
}

func (r *listingRepository) UpdateSurge(ctx context.Context, id primitive.ObjectID, surge float64, now time.Time) (*domain.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var l domain.Listing
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"surgeMultiplier": surge, "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update surge: %w", err)
	}
	return &l, nil
}

func (r *listingRepository) SetAverageDuration(ctx context.Context, id primitive.ObjectID, avg float64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"averageDuration": avg}}); err != nil {
		return fmt.Errorf("set average duration: %w", err)
	}
	return nil
}

func (r *listingRepository) ListReservedIDs(ctx context.Context, cutoff time.Time) ([]primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{"availability": false, "updatedAt": bson.M{"$lt": cutoff}}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("find reserved listings: %w", err)
	}
	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode reserved listings: %w", err)
	}
	ids := make([]primitive.ObjectID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *listingRepository) ReleaseStale(ctx context.Context, id primitive.ObjectID, cutoff, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "availability": false, "updatedAt": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"availability": true, "updatedAt": now}},
	)
	if err != nil {
		return false, fmt.Errorf("release stale listing: %w", err)
	}
	return res.ModifiedCount == 1, nil
}
