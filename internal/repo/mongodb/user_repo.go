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
)

type userRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *userRepository {
	return &userRepository{coll: db.Collection(UsersCollection)}
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Ratings == nil {
		u.Ratings = []domain.Rating{}
	}
	if u.ParkingHistory == nil {
		u.ParkingHistory = []domain.HistoryEntry{}
	}

	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		if cerr := conflictFor(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var u domain.User
	err := r.coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error) {
	out := make(map[primitive.ObjectID]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var users []*domain.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Update rewrites the mutable profile fields. History and ratings are left
// alone so a concurrent PushHistory is never lost.
func (r *userRepository) Update(ctx context.Context, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set := bson.M{
		"username":      u.Username,
		"email":         u.Email,
		"password":      u.PasswordHash,
		"vehicleNumber": u.VehicleNumber,
		"updatedAt":     u.UpdatedAt,
	}
	if u.ProfileImage != nil {
		set["profileImage"] = u.ProfileImage
	}

	res, err := r.coll.UpdateByID(ctx, u.ID, bson.M{"$set": set})
	if err != nil {
		if cerr := conflictFor(err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.NotFoundError("User not found!")
	}
	return nil
}

func (r *userRepository) PushHistory(ctx context.Context, userID primitive.ObjectID, entry domain.HistoryEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, userID, bson.M{
		"$push": bson.M{"parkingHistory": entry},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("push history: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.NotFoundError("User not found!")
	}
	return nil
}
