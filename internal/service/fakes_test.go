package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/internal/platform/clock"
	"github.com/diagnosis/parkspot/internal/storage"
	"github.com/diagnosis/parkspot/pkg/events"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// cheapParams keep argon2id fast in tests.
var cheapParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// memStore is an in-memory implementation of every repository contract.
type memStore struct {
	mu       sync.Mutex
	users    map[primitive.ObjectID]*domain.User
	listings map[primitive.ObjectID]*domain.Listing
	bookings map[primitive.ObjectID]*domain.Booking

	failBookingCreate error
	failPushHistory   error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[primitive.ObjectID]*domain.User{},
		listings: map[primitive.ObjectID]*domain.Listing{},
		bookings: map[primitive.ObjectID]*domain.Booking{},
	}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.ParkingHistory = append([]domain.HistoryEntry(nil), u.ParkingHistory...)
	return &c
}

func cloneListing(l *domain.Listing) *domain.Listing {
	c := *l
	return &c
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	c := *b
	return &c
}

type userRepo struct{ *memStore }

func (r userRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.users {
		if other.Username == u.Username {
			return domain.ConflictError("Username already exists")
		}
		if other.Email == u.Email {
			return domain.ConflictError("Email already exists")
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r userRepo) FindByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

func (r userRepo) findBy(match func(*domain.User) bool) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			return cloneUser(u)
		}
	}
	return nil
}

func (r userRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.findBy(func(u *domain.User) bool { return u.Username == username }), nil
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.findBy(func(u *domain.User) bool { return u.Email == email }), nil
}

func (r userRepo) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[primitive.ObjectID]*domain.User{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (r userRepo) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[u.ID]
	if !ok {
		return domain.NotFoundError("User not found!")
	}
	history := stored.ParkingHistory
	c := cloneUser(u)
	c.ParkingHistory = history
	r.users[u.ID] = c
	return nil
}

func (r userRepo) PushHistory(_ context.Context, id primitive.ObjectID, e domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPushHistory != nil {
		return r.failPushHistory
	}
	u, ok := r.users[id]
	if !ok {
		return domain.NotFoundError("User not found!")
	}
	u.ParkingHistory = append(u.ParkingHistory, e)
	return nil
}

type listingRepo struct{ *memStore }

func (r listingRepo) Create(_ context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	r.listings[l.ID] = cloneListing(l)
	return nil
}

func (r listingRepo) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.listings[id]; ok {
		return cloneListing(l), nil
	}
	return nil, nil
}

func (r listingRepo) filter(match func(*domain.Listing) bool) []*domain.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Listing{}
	for _, l := range r.listings {
		if match(l) {
			out = append(out, cloneListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func (r listingRepo) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]*domain.Listing, error) {
	want := map[primitive.ObjectID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return r.filter(func(l *domain.Listing) bool { return want[l.ID] }), nil
}

func (r listingRepo) ListAvailable(context.Context) ([]*domain.Listing, error) {
	return r.filter(func(l *domain.Listing) bool { return l.Availability }), nil
}

func (r listingRepo) ListByOwner(_ context.Context, owner primitive.ObjectID) ([]*domain.Listing, error) {
	return r.filter(func(l *domain.Listing) bool { return l.OwnerID == owner }), nil
}

// Nearby ignores distance; tests place every listing within range.
func (r listingRepo) Nearby(_ context.Context, q domain.NearbyQuery) ([]*domain.Listing, error) {
	types := map[domain.VehicleType]bool{}
	for _, t := range q.VehicleTypes {
		types[t] = true
	}
	out := r.filter(func(l *domain.Listing) bool {
		if !l.Availability {
			return false
		}
		if len(types) > 0 && !types[l.VehicleType] {
			return false
		}
		if q.MinSurge != nil && l.SurgeMultiplier < *q.MinSurge {
			return false
		}
		return true
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r listingRepo) Reserve(_ context.Context, id primitive.ObjectID, now time.Time) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok || !l.Availability {
		return nil, nil
	}
	snapshot := cloneListing(l)
	l.Availability = false
	l.UpdatedAt = now
	snapshot.Availability = false
	return snapshot, nil
}

func (r listingRepo) Release(_ context.Context, id primitive.ObjectID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.listings[id]; ok {
		l.Availability = true
		l.UpdatedAt = now
	}
	return nil
}

func (r listingRepo) UpdateSurge(_ context.Context, id primitive.ObjectID, surge float64, now time.Time) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, nil
	}
	l.SurgeMultiplier = surge
	l.UpdatedAt = now
	return cloneListing(l), nil
}

func (r listingRepo) SetAverageDuration(_ context.Context, id primitive.ObjectID, avg float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.listings[id]; ok {
		l.AverageDuration = avg
	}
	return nil
}

func (r listingRepo) ListReservedIDs(_ context.Context, cutoff time.Time) ([]primitive.ObjectID, error) {
	var ids []primitive.ObjectID
	for _, l := range r.filter(func(l *domain.Listing) bool { return !l.Availability && l.UpdatedAt.Before(cutoff) }) {
		ids = append(ids, l.ID)
	}
	return ids, nil
}

func (r listingRepo) ReleaseStale(_ context.Context, id primitive.ObjectID, cutoff, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok || l.Availability || !l.UpdatedAt.Before(cutoff) {
		return false, nil
	}
	l.Availability = true
	l.UpdatedAt = now
	return true, nil
}

type bookingRepo struct{ *memStore }

func (r bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failBookingCreate != nil {
		return r.failBookingCreate
	}
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	r.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (r bookingRepo) FindByID(_ context.Context, id primitive.ObjectID) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bookings[id]; ok {
		return cloneBooking(b), nil
	}
	return nil, nil
}

func (r bookingRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, from, next domain.BookingStatus, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = next
	b.UpdatedAt = now
	return true, nil
}

func (r bookingRepo) ListForUser(_ context.Context, renter primitive.ObjectID, listingIDs []primitive.ObjectID) ([]*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owned := map[primitive.ObjectID]bool{}
	for _, id := range listingIDs {
		owned[id] = true
	}
	out := []*domain.Booking{}
	for _, b := range r.bookings {
		if b.RenterID == renter || owned[b.ParkingID] {
			out = append(out, cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r bookingRepo) AverageDuration(_ context.Context, listingID primitive.ObjectID) (float64, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum, n := 0.0, 0
	for _, b := range r.bookings {
		if b.ParkingID == listingID {
			sum += b.Duration
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return sum / float64(n), n, nil
}

func (r bookingRepo) ListingIDsWithBookings(context.Context) ([]primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[primitive.ObjectID]bool{}
	var ids []primitive.ObjectID
	for _, b := range r.bookings {
		if !seen[b.ParkingID] {
			seen[b.ParkingID] = true
			ids = append(ids, b.ParkingID)
		}
	}
	return ids, nil
}

func (r bookingRepo) HasOpenBooking(_ context.Context, listingID primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.ParkingID == listingID && !b.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

// memImages records uploads; failOn makes the nth upload fail.
type memImages struct {
	mu      sync.Mutex
	stored  map[string][]byte
	deleted []string
	failOn  int
	calls   int
}

func newMemImages() *memImages { return &memImages{stored: map[string][]byte{}} }

func (m *memImages) Upload(_ context.Context, folder string, f storage.Upload) (domain.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn > 0 && m.calls == m.failOn {
		return domain.Image{}, domain.UpstreamError("Image upload failed", errors.New("boom"))
	}
	data, _ := io.ReadAll(f.Body)
	id := fmt.Sprintf("%s/%d", folder, m.calls)
	m.stored[id] = data
	return domain.Image{URL: "https://img/" + id, PublicID: id}, nil
}

func (m *memImages) Delete(_ context.Context, publicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stored, publicID)
	m.deleted = append(m.deleted, publicID)
	return nil
}

func upload(name string) storage.Upload {
	return storage.Upload{Filename: name, Body: bytes.NewReader([]byte(name))}
}

// env wires every service over one memStore.
type env struct {
	store    *memStore
	images   *memImages
	bus      *events.MemoryBus
	clock    *clock.Fixed
	auth     *authService
	users    *userService
	listings *listingService
	bookings *bookingService
}

func newEnv(now time.Time) *env {
	st := newMemStore()
	imgs := newMemImages()
	bus := events.NewMemoryBus()
	clk := clock.NewFixed(now)

	peak, _ := clock.NewPeakWindow(8, 18, "UTC")
	e := &env{store: st, images: imgs, bus: bus, clock: clk}

	e.auth = NewAuthService(userRepo{st}, testAuthConfig, clk).(*authService)
	e.auth.params = cheapParams
	e.users = NewUserService(userRepo{st}, listingRepo{st}, imgs, clk).(*userService)
	e.users.params = cheapParams
	e.listings = NewListingService(listingRepo{st}, userRepo{st}, imgs, bus, clk, ListingOptions{Peak: peak, MaxSurge: 10}).(*listingService)
	e.bookings = NewBookingService(bookingRepo{st}, listingRepo{st}, userRepo{st}, bus, clk, BookingOptions{Location: time.UTC}).(*bookingService)
	return e
}

func (e *env) addUser(username, role string) Caller {
	u := &domain.User{Username: username, Email: username + "@x.io", Role: role}
	_ = userRepo{e.store}.Create(context.Background(), u)
	return Caller{ID: u.ID, Role: role}
}

func (e *env) addListing(owner Caller, vt domain.VehicleType, price, surge float64) *domain.Listing {
	l := &domain.Listing{
		OwnerID: owner.ID, Address: "1 Main St", Description: "covered", Heading: domain.DefaultHeading,
		VehicleType: vt, PricePerHour: price, Location: domain.NewGeoPoint(40.7, -74.0),
		Availability: true, SurgeMultiplier: surge,
	}
	_ = listingRepo{e.store}.Create(context.Background(), l)
	return l
}

func (e *env) listing(id primitive.ObjectID) *domain.Listing {
	l, _ := listingRepo{e.store}.FindByID(context.Background(), id)
	return l
}

func (e *env) user(id primitive.ObjectID) *domain.User {
	u, _ := userRepo{e.store}.FindByID(context.Background(), id)
	return u
}
