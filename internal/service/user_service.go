package service

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/platform/clock"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/internal/storage"
	"github.com/diagnosis/parkspot/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const profileImageFolder = "profiles"

type UserService interface {
	GetProfile(ctx context.Context, caller Caller) (*domain.Profile, error)
	// UpdateProfile applies the non-empty fields of req; image may be nil.
	UpdateProfile(ctx context.Context, caller Caller, req *domain.UpdateProfileRequest, image *storage.Upload) (*domain.User, error)
}

type userService struct {
	users    repo.UserRepository
	listings repo.ListingRepository
	images   storage.ImageStore
	clock    clock.Clock
	params   *argon2id.Params
}

func NewUserService(users repo.UserRepository, listings repo.ListingRepository, images storage.ImageStore, clk clock.Clock) UserService {
	return &userService{users: users, listings: listings, images: images, clock: clk, params: argon2id.DefaultParams}
}

func (s *userService) GetProfile(ctx context.Context, caller Caller) (*domain.Profile, error) {
	user, err := s.users.FindByID(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, domain.NotFoundError("User not found!")
	}

	ids := make([]primitive.ObjectID, 0, len(user.ParkingHistory))
	for _, h := range user.ParkingHistory {
		ids = append(ids, h.ParkingID)
	}
	listings, err := s.listings.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load history listings: %w", err)
	}
	addresses := make(map[primitive.ObjectID]string, len(listings))
	for _, l := range listings {
		addresses[l.ID] = l.Address
	}

	history := make([]domain.HistoryView, 0, len(user.ParkingHistory))
	for _, h := range user.ParkingHistory {
		// A deleted listing keeps its id but loses the address.
		history = append(history, domain.HistoryView{
			Parking:  &domain.ParkingRef{ID: h.ParkingID, Address: addresses[h.ParkingID]},
			Duration: h.Duration,
			Time:     h.Time,
		})
	}
	return &domain.Profile{User: user, ParkingHistory: history}, nil
}

func (s *userService) UpdateProfile(ctx context.Context, caller Caller, req *domain.UpdateProfileRequest, image *storage.Upload) (*domain.User, error) {
	req.Normalize()
	if err := domain.Validate(req); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, domain.NotFoundError("User not found!")
	}

	if req.Username != "" && req.Username != user.Username {
		other, err := s.users.FindByUsername(ctx, req.Username)
		if err != nil {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
		if other != nil {
			return nil, domain.ConflictError("Username already exists")
		}
		user.Username = req.Username
	}
	if req.Email != "" && req.Email != user.Email {
		other, err := s.users.FindByEmail(ctx, req.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if other != nil {
			return nil, domain.ConflictError("Email already exists")
		}
		user.Email = req.Email
	}
	if req.VehicleNumber != "" {
		user.VehicleNumber = req.VehicleNumber
	}
	if req.Password != "" {
		hash, err := argon2id.CreateHash(req.Password, s.params)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	var previous *domain.Image
	if image != nil {
		uploaded, err := s.images.Upload(ctx, profileImageFolder, *image)
		if err != nil {
			return nil, fmt.Errorf("failed to upload profile image: %w", err)
		}
		previous = user.ProfileImage
		user.ProfileImage = &uploaded
	}

	user.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		if image != nil {
			s.discardImage(ctx, user.ProfileImage.PublicID)
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if previous != nil && previous.PublicID != "" {
		s.discardImage(ctx, previous.PublicID)
	}

	return user, nil
}

func (s *userService) discardImage(ctx context.Context, publicID string) {
	if err := s.images.Delete(ctx, publicID); err != nil {
		logger.WarnContext(ctx, "Failed to delete image", "public_id", publicID, "error", err)
	}
}
