package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/parkspot/internal/domain"
	mw "github.com/diagnosis/parkspot/internal/http/middleware"
	"github.com/diagnosis/parkspot/internal/service"
	"github.com/diagnosis/parkspot/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type mockAuth struct{ mock.Mock }

func (m *mockAuth) Register(ctx context.Context, req *domain.RegisterRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *mockAuth) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*domain.LoginResponse)
	return resp, args.Error(1)
}

func (m *mockAuth) ResolveSession(ctx context.Context, token string) (service.Caller, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(service.Caller), args.Error(1)
}

type mockListings struct{ mock.Mock }

func (m *mockListings) CreateListing(ctx context.Context, caller service.Caller, req *domain.CreateListingRequest, images []storage.Upload) (*domain.ListingView, error) {
	args := m.Called(ctx, caller, req, images)
	v, _ := args.Get(0).(*domain.ListingView)
	return v, args.Error(1)
}

func (m *mockListings) ListAll(ctx context.Context) ([]*domain.ListingView, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]*domain.ListingView)
	return v, args.Error(1)
}

func (m *mockListings) FindNearby(ctx context.Context, caller service.Caller, in service.NearbyInput) ([]*domain.ListingView, error) {
	args := m.Called(ctx, caller, in)
	v, _ := args.Get(0).([]*domain.ListingView)
	return v, args.Error(1)
}

func (m *mockListings) UpdateSurge(ctx context.Context, caller service.Caller, req *domain.UpdateSurgeRequest) (*domain.ListingView, error) {
	args := m.Called(ctx, caller, req)
	v, _ := args.Get(0).(*domain.ListingView)
	return v, args.Error(1)
}

func (m *mockListings) GetListing(ctx context.Context, id string) (*domain.ListingView, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*domain.ListingView)
	return v, args.Error(1)
}

type mockBookings struct{ mock.Mock }

func (m *mockBookings) CreateBooking(ctx context.Context, caller service.Caller, req *domain.CreateBookingRequest) (*domain.Booking, error) {
	args := m.Called(ctx, caller, req)
	b, _ := args.Get(0).(*domain.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) CheckInOut(ctx context.Context, caller service.Caller, req *domain.CheckInOutRequest) (*domain.Booking, error) {
	args := m.Called(ctx, caller, req)
	b, _ := args.Get(0).(*domain.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) GetBooking(ctx context.Context, caller service.Caller, id string) (*domain.Booking, error) {
	args := m.Called(ctx, caller, id)
	b, _ := args.Get(0).(*domain.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) ListMine(ctx context.Context, caller service.Caller) ([]*domain.Booking, error) {
	args := m.Called(ctx, caller)
	b, _ := args.Get(0).([]*domain.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) ConfirmationQR(ctx context.Context, caller service.Caller, id string) ([]byte, error) {
	args := m.Called(ctx, caller, id)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) GetProfile(ctx context.Context, caller service.Caller) (*domain.Profile, error) {
	args := m.Called(ctx, caller)
	p, _ := args.Get(0).(*domain.Profile)
	return p, args.Error(1)
}

func (m *mockUsers) UpdateProfile(ctx context.Context, caller service.Caller, req *domain.UpdateProfileRequest, image *storage.Upload) (*domain.User, error) {
	args := m.Called(ctx, caller, req, image)
	u, _ := args.Get(0).(*domain.User)
	return u, args.Error(1)
}

const testToken = "good-token"

// authed mounts routes behind RequireAuth, resolving testToken to caller.
func authed(caller service.Caller, routes chi.Router) http.Handler {
	sessions := new(mockAuth)
	sessions.On("ResolveSession", mock.Anything, testToken).Return(caller, nil)
	sessions.On("ResolveSession", mock.Anything, mock.Anything).Return(service.Caller{}, domain.AuthError("Token is not valid!"))

	r := chi.NewRouter()
	r.Use(mw.RequireAuth(sessions, "accessToken"))
	r.Mount("/", routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	auth := new(mockAuth)
	auth.On("Register", mock.Anything, mock.MatchedBy(func(r *domain.RegisterRequest) bool {
		return r.Username == "alice" && r.Role == "renter"
	})).Return(nil)
	auth.On("Register", mock.Anything, mock.Anything).Return(domain.ConflictError("Username already exists"))

	h := NewAuthHandler(auth, CookieConfig{Name: "accessToken", TTL: time.Hour}, nil).Routes()

	rec := do(t, h, http.MethodPost, "/register", map[string]string{"username": "alice", "email": "a@x.io", "password": "secret1", "role": "renter"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":"User has been created."}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/register", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginSetsCookie(t *testing.T) {
	user := &domain.User{ID: primitive.NewObjectID(), Username: "alice", PasswordHash: "hash", Role: domain.RoleRenter}
	auth := new(mockAuth)
	auth.On("Login", mock.Anything, mock.MatchedBy(func(r *domain.LoginRequest) bool { return r.Password == "secret1" })).
		Return(&domain.LoginResponse{User: user, Token: "jwt-value"}, nil)
	auth.On("Login", mock.Anything, mock.Anything).Return(nil, domain.ErrBadCredentials)

	h := NewAuthHandler(auth, CookieConfig{Name: "accessToken", TTL: 24 * time.Hour, Secure: true}, nil).Routes()

	rec := do(t, h, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "jwt-value", body["token"])
	assert.Equal(t, "alice", body["username"])
	assert.NotContains(t, body, "password")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "accessToken", cookies[0].Name)
	assert.Equal(t, "jwt-value", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)
	assert.Equal(t, 86400, cookies[0].MaxAge)

	rec = do(t, h, http.MethodPost, "/login", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wrong password or username!")
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogoutClearsCookie(t *testing.T) {
	h := NewAuthHandler(new(mockAuth), CookieConfig{Name: "accessToken"}, nil).Routes()
	rec := do(t, h, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleRenter}
	h := authed(caller, NewBookingHandler(new(mockBookings), nil).Routes())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingHandler(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleRenter}
	listingID := primitive.NewObjectID()
	booking := &domain.Booking{ID: primitive.NewObjectID(), ParkingID: listingID, TotalPrice: 20, Status: domain.BookingPending}

	bookings := new(mockBookings)
	bookings.On("CreateBooking", mock.Anything, caller, mock.MatchedBy(func(r *domain.CreateBookingRequest) bool {
		return r.ParkingID == listingID.Hex() && r.Duration == 2
	})).Return(booking, nil).Once()
	bookings.On("CreateBooking", mock.Anything, caller, mock.Anything).
		Return(nil, domain.ValidationError("Parking not available!"))

	h := authed(caller, NewBookingHandler(bookings, nil).Routes())

	rec := do(t, h, http.MethodPost, "/", map[string]any{"parkingId": listingID.Hex(), "startTime": "2024-05-01T10:00:00Z", "duration": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	var got domain.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, booking.ID, got.ID)
	assert.Equal(t, domain.BookingPending, got.Status)

	rec = do(t, h, http.MethodPost, "/", map[string]any{"parkingId": listingID.Hex(), "startTime": "2024-05-01T10:00:00Z", "duration": 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Parking not available!","code":"INVALID_INPUT"}`, rec.Body.String())
}

func TestCreateBookingHandlerAcceptsWebClientPayload(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleRenter}
	listingID := primitive.NewObjectID()

	bookings := new(mockBookings)
	bookings.On("CreateBooking", mock.Anything, caller, mock.MatchedBy(func(r *domain.CreateBookingRequest) bool {
		return r.ParkingID == listingID.Hex() && r.Duration == 2
	})).Return(&domain.Booking{ID: primitive.NewObjectID(), Status: domain.BookingPending}, nil).Once()

	h := authed(caller, NewBookingHandler(bookings, nil).Routes())
	rec := do(t, h, http.MethodPost, "/", map[string]any{"parkingId": listingID.Hex(), "startTime": "2024-05-01T10:00", "duration": "2"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	bookings.AssertExpectations(t)
}

func TestCheckInOutHandler(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleRenter}
	bookings := new(mockBookings)
	bookings.On("CheckInOut", mock.Anything, caller, &domain.CheckInOutRequest{BookingID: "b1", Status: "active"}).
		Return(&domain.Booking{Status: domain.BookingActive}, nil)
	bookings.On("CheckInOut", mock.Anything, caller, &domain.CheckInOutRequest{BookingID: "b2", Status: "active"}).
		Return(nil, domain.AuthorizationError("Unauthorized!"))

	h := authed(caller, NewBookingHandler(bookings, nil).Routes())

	rec := do(t, h, http.MethodPut, "/checkinout", map[string]string{"bookingId": "b1", "status": "active"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"active"`)

	rec = do(t, h, http.MethodPut, "/checkinout", map[string]string{"bookingId": "b2", "status": "active"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBookingReadsAndQR(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleRenter}
	png := []byte("\x89PNG fake")
	bookings := new(mockBookings)
	bookings.On("ListMine", mock.Anything, caller).Return([]*domain.Booking{{Status: domain.BookingPending}}, nil)
	bookings.On("GetBooking", mock.Anything, caller, "missing").Return(nil, domain.NotFoundError("Booking not found!"))
	bookings.On("ConfirmationQR", mock.Anything, caller, "b1").Return(png, nil)

	h := authed(caller, NewBookingHandler(bookings, nil).Routes())

	rec := do(t, h, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = do(t, h, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/b1/qr", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, png, rec.Body.Bytes())
}

func TestNearbyHandlerPassesQuery(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleRenter}
	listings := new(mockListings)
	listings.On("FindNearby", mock.Anything, caller, service.NearbyInput{
		Lat: "40.7", Lng: "-74", VehicleType: "small", MaxDistance: "800", TimeOfDay: "peak",
	}).Return([]*domain.ListingView{}, nil)
	listings.On("FindNearby", mock.Anything, caller, mock.Anything).
		Return(nil, domain.ValidationError("Valid latitude and longitude are required"))

	h := authed(caller, NewParkingHandler(listings).Routes())

	rec := do(t, h, http.MethodGet, "/nearby?lat=40.7&lng=-74&vehicleType=small&maxDistance=800&timeOfDay=peak", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/nearby", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSurgeHandler(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleOwner}
	listings := new(mockListings)
	listings.On("UpdateSurge", mock.Anything, caller, mock.MatchedBy(func(r *domain.UpdateSurgeRequest) bool {
		return r.ID() == "l1" && r.SurgeMultiplier == "1.5"
	})).Return(&domain.ListingView{Listing: &domain.Listing{SurgeMultiplier: 1.5}}, nil)
	listings.On("UpdateSurge", mock.Anything, caller, mock.Anything).Return(nil, domain.NotFoundError("Parking not found!"))

	h := authed(caller, NewParkingHandler(listings).Routes())

	rec := do(t, h, http.MethodPut, "/surge", map[string]any{"listingId": "l1", "surgeMultiplier": "1.5"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"surgeMultiplier":1.5`)

	rec = do(t, h, http.MethodPut, "/surge", map[string]any{"listingId": "l2", "surgeMultiplier": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, data := range files {
		part, err := w.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestCreateListingMultipart(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleOwner}
	listings := new(mockListings)
	listings.On("CreateListing", mock.Anything, caller,
		mock.MatchedBy(func(r *domain.CreateListingRequest) bool {
			return r.Address == "1 Main St" && r.Headline == "Shaded" && r.PricePerHour == 12.5 && r.Lat == "40.7"
		}),
		mock.MatchedBy(func(files []storage.Upload) bool { return len(files) == 2 }),
	).Return(&domain.ListingView{Listing: &domain.Listing{Address: "1 Main St"}}, nil)

	h := authed(caller, NewParkingHandler(listings).Routes())

	body, contentType := multipartBody(t, map[string]string{
		"address": "1 Main St", "description": "covered", "headline": "Shaded",
		"vehicleType": "small", "pricePerHour": "12.5", "lat": "40.7", "lng": "-74",
	}, "images", map[string][]byte{"a.png": []byte("a"), "b.png": []byte("b")})

	req := httptest.NewRequest(http.MethodPost, "/create", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	listings.AssertExpectations(t)
}

func TestCreateListingBadPrice(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleOwner}
	h := authed(caller, NewParkingHandler(new(mockListings)).Routes())

	body, contentType := multipartBody(t, map[string]string{"pricePerHour": "ten"}, "images", nil)
	req := httptest.NewRequest(http.MethodPost, "/create", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileHandlers(t *testing.T) {
	caller := service.Caller{ID: primitive.NewObjectID(), Role: domain.RoleRenter}
	user := &domain.User{ID: caller.ID, Username: "rita", PasswordHash: "secret-hash"}
	users := new(mockUsers)
	users.On("GetProfile", mock.Anything, caller).Return(&domain.Profile{User: user, ParkingHistory: []domain.HistoryView{}}, nil)
	users.On("UpdateProfile", mock.Anything, caller,
		mock.MatchedBy(func(r *domain.UpdateProfileRequest) bool { return r.VehicleNumber == "AB-1" }),
		mock.MatchedBy(func(img *storage.Upload) bool { return img != nil && img.Filename == "me.png" }),
	).Return(user, nil)

	h := authed(caller, NewUserHandler(users).Routes())

	rec := do(t, h, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-hash")

	body, contentType := multipartBody(t, map[string]string{"vehicleNumber": "AB-1"}, "profileImage", map[string][]byte{"me.png": []byte("img")})
	req := httptest.NewRequest(http.MethodPut, "/profile", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
}
