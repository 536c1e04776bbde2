package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/platform/clock"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/internal/storage"
	"github.com/diagnosis/parkspot/pkg/events"
	"github.com/diagnosis/parkspot/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

const (
	listingImageFolder = "listings"
	maxNearbyDistanceM = 50000
	uploadConcurrency  = 3
)

// NearbyInput carries the raw query parameters of a nearby search.
type NearbyInput struct {
	Lat         string
	Lng         string
	VehicleType string
	MaxDistance string
	TimeOfDay   string
}

type ListingService interface {
	CreateListing(ctx context.Context, caller Caller, req *domain.CreateListingRequest, images []storage.Upload) (*domain.ListingView, error)
	ListAll(ctx context.Context) ([]*domain.ListingView, error)
	FindNearby(ctx context.Context, caller Caller, in NearbyInput) ([]*domain.ListingView, error)
	UpdateSurge(ctx context.Context, caller Caller, req *domain.UpdateSurgeRequest) (*domain.ListingView, error)
	GetListing(ctx context.Context, id string) (*domain.ListingView, error)
}

type ListingOptions struct {
	Peak     clock.PeakWindow
	MaxSurge float64
}

type listingService struct {
	listings repo.ListingRepository
	users    repo.UserRepository
	images   storage.ImageStore
	bus      events.Publisher
	clock    clock.Clock
	opts     ListingOptions
}

func NewListingService(
	listings repo.ListingRepository,
	users repo.UserRepository,
	images storage.ImageStore,
	bus events.Publisher,
	clk clock.Clock,
	opts ListingOptions,
) ListingService {
	return &listingService{listings: listings, users: users, images: images, bus: bus, clock: clk, opts: opts}
}

func (s *listingService) CreateListing(ctx context.Context, caller Caller, req *domain.CreateListingRequest, images []storage.Upload) (*domain.ListingView, error) {
	if !caller.IsOwner() {
		return nil, domain.AuthorizationError("Only owners can create parking!")
	}

	req.Normalize()
	lat, lng, err := domain.ParseCoordinates(req.Lat, req.Lng)
	if err != nil {
		return nil, err
	}
	if err := domain.Validate(req); err != nil {
		return nil, err
	}
	if len(images) > domain.MaxListingImages {
		return nil, domain.ValidationError(fmt.Sprintf("At most %d images are allowed", domain.MaxListingImages))
	}

	uploaded, err := s.uploadAll(ctx, images)
	if err != nil {
		return nil, err
	}

	vt, _ := domain.ParseVehicleType(req.VehicleType)
	now := s.clock.Now().UTC()
	listing := &domain.Listing{
		OwnerID:         caller.ID,
		Address:         req.Address,
		Description:     req.Description,
		Heading:         req.Heading,
		VehicleType:     vt,
		PricePerHour:    req.PricePerHour,
		Location:        domain.NewGeoPoint(lat, lng),
		Images:          uploaded,
		Availability:    true,
		SurgeMultiplier: domain.DefaultSurge,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.listings.Create(ctx, listing); err != nil {
		for _, img := range uploaded {
			s.discardImage(ctx, img.PublicID)
		}
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	logger.InfoContext(ctx, "Listing created", "listing_id", listing.ID.Hex(), "owner_id", caller.ID.Hex(), "images", len(uploaded))
	return listing.View(nil), nil
}

// uploadAll uploads in parallel and keeps the input order. On any failure the
// images that did upload are removed again.
func (s *listingService) uploadAll(ctx context.Context, files []storage.Upload) ([]domain.Image, error) {
	out := make([]domain.Image, len(files))
	if len(files) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	var done []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			img, err := s.images.Upload(gctx, listingImageFolder, f)
			if err != nil {
				return err
			}
			out[i] = img
			mu.Lock()
			done = append(done, img.PublicID)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, id := range done {
			s.discardImage(ctx, id)
		}
		return nil, fmt.Errorf("failed to upload images: %w", err)
	}
	return out, nil
}

func (s *listingService) discardImage(ctx context.Context, publicID string) {
	if err := s.images.Delete(ctx, publicID); err != nil {
		logger.WarnContext(ctx, "Failed to delete image", "public_id", publicID, "error", err)
	}
}

func (s *listingService) ListAll(ctx context.Context) ([]*domain.ListingView, error) {
	listings, err := s.listings.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list parking: %w", err)
	}
	return s.withOwners(ctx, listings)
}

func (s *listingService) FindNearby(ctx context.Context, caller Caller, in NearbyInput) ([]*domain.ListingView, error) {
	lat, lng, err := domain.ParseCoordinates(in.Lat, in.Lng)
	if err != nil {
		return nil, err
	}
	q := domain.NearbyQuery{
		Lat:         lat,
		Lng:         lng,
		MaxDistance: parseDistance(in.MaxDistance),
		MinSurge:    domain.SurgeFloor(in.TimeOfDay, s.opts.Peak.IsPeak(s.clock.Now())),
		Limit:       domain.NearbyResultLimit,
	}

	// An explicit type replaces the history preference rather than narrowing it.
	if strings.TrimSpace(in.VehicleType) != "" {
		vt, ok := domain.ParseVehicleType(in.VehicleType)
		if !ok {
			return nil, domain.ValidationError("Vehicle type must be small or medium or large.")
		}
		q.VehicleTypes = []domain.VehicleType{vt}
	} else {
		types, err := s.preferredTypes(ctx, caller.ID)
		if err != nil {
			return nil, err
		}
		q.VehicleTypes = types
	}

	listings, err := s.listings.Nearby(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search nearby parking: %w", err)
	}
	return s.withOwners(ctx, listings)
}

// preferredTypes derives a vehicle type filter from the caller's booking
// history. No history means no filter.
func (s *listingService) preferredTypes(ctx context.Context, userID primitive.ObjectID) ([]domain.VehicleType, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || len(user.ParkingHistory) == 0 {
		return nil, nil
	}

	ids := make([]primitive.ObjectID, 0, len(user.ParkingHistory))
	for _, h := range user.ParkingHistory {
		ids = append(ids, h.ParkingID)
	}
	past, err := s.listings.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load history listings: %w", err)
	}

	seen := map[domain.VehicleType]bool{}
	var types []domain.VehicleType
	for _, l := range past {
		if l.VehicleType != "" && !seen[l.VehicleType] {
			seen[l.VehicleType] = true
			types = append(types, l.VehicleType)
		}
	}
	if len(types) == 0 {
		return append([]domain.VehicleType(nil), domain.AllVehicleTypes...), nil
	}
	return types, nil
}

func parseDistance(raw string) int {
	d, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return domain.DefaultNearbyRadiusM
	}
	if d > maxNearbyDistanceM {
		return maxNearbyDistanceM
	}
	return d
}

func (s *listingService) UpdateSurge(ctx context.Context, caller Caller, req *domain.UpdateSurgeRequest) (*domain.ListingView, error) {
	id, err := parseID(req.ID(), "parking")
	if err != nil {
		return nil, err
	}

	listing, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, domain.NotFoundError("Parking not found!")
	}
	if listing.OwnerID != caller.ID {
		return nil, domain.AuthorizationError("Unauthorized!")
	}

	surge := domain.ParseSurge(req.SurgeMultiplier, s.opts.MaxSurge)
	now := s.clock.Now().UTC()
	updated, err := s.listings.UpdateSurge(ctx, id, surge, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update surge: %w", err)
	}
	if updated == nil {
		return nil, domain.NotFoundError("Parking not found!")
	}

	if err := s.bus.Publish(ctx, events.ListingSurgeChanged, events.ListingSurgeChangedEvent{
		ListingID:       id.Hex(),
		SurgeMultiplier: surge,
		ChangedAt:       now,
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish surge change", "listing_id", id.Hex(), "error", err)
	}
	return updated.View(nil), nil
}

func (s *listingService) GetListing(ctx context.Context, raw string) (*domain.ListingView, error) {
	id, err := parseID(raw, "parking")
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}
	if listing == nil {
		return nil, domain.NotFoundError("Parking not found!")
	}
	views, err := s.withOwners(ctx, []*domain.Listing{listing})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// withOwners resolves each listing's owner with a single batched lookup.
func (s *listingService) withOwners(ctx context.Context, listings []*domain.Listing) ([]*domain.ListingView, error) {
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, l := range listings {
		if !seen[l.OwnerID] {
			seen[l.OwnerID] = true
			ids = append(ids, l.OwnerID)
		}
	}
	owners, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load owners: %w", err)
	}

	views := make([]*domain.ListingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, l.View(owners[l.OwnerID]))
	}
	return views, nil
}
