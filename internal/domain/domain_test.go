package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRequestValidation(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := RegisterRequest{Username: "alice", Email: "a@b.co", Password: "secret", Role: "renter"}
		assert.NoError(t, Validate(&req))
	})

	t.Run("short username", func(t *testing.T) {
		req := RegisterRequest{Username: "al", Email: "a@b.co", Password: "secret", Role: "owner"}
		err := Validate(&req)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
		assert.Equal(t, "Username must be at least 3 characters.", err.Error())
	})

	t.Run("every field wrong", func(t *testing.T) {
		req := RegisterRequest{Username: "a", Email: "nope", Password: "123", Role: "admin"}
		err := Validate(&req)
		require.Error(t, err)
		assert.Equal(t,
			"Username must be at least 3 characters., Invalid email format., Password must be at least 6 characters., Role must be renter or owner.",
			err.Error())
	})
}

func TestAccountEmailFormat(t *testing.T) {
	tests := []struct {
		email string
		ok    bool
	}{
		{"a@b.co", true},
		{"first.last+tag@mail.example.org", true},
		{"user@@mail.io", true},
		{"ops@intranet.local", true},
		{"nope", false},
		{"a@b", false},
		{"a b@c.io", false},
		{"@b.io", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			req := RegisterRequest{Username: "alice", Email: tt.email, Password: "secret", Role: "renter"}
			err := Validate(&req)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, "Invalid email format.")
		})
	}

	upd := UpdateProfileRequest{Email: "a b@c.io"}
	assert.EqualError(t, Validate(&upd), "Invalid email format.")
	assert.NoError(t, Validate(&UpdateProfileRequest{}))
}

func TestCreateListingRequestValidation(t *testing.T) {
	req := CreateListingRequest{Address: "1 Main St", Description: "covered", VehicleType: "Huge", PricePerHour: 0, Lat: "1", Lng: "2"}
	req.Normalize()
	assert.Equal(t, DefaultHeading, req.Heading)

	err := Validate(&req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Vehicle type must be small or medium or large.")
	assert.Contains(t, err.Error(), "Price per hour must be greater than 0.")
}

func TestParseCoordinates(t *testing.T) {
	lat, lng, err := ParseCoordinates("40.7", "-74.0")
	require.NoError(t, err)
	assert.Equal(t, 40.7, lat)
	assert.Equal(t, -74.0, lng)

	for _, tc := range [][2]string{{"91", "0"}, {"0", "-181"}, {"abc", "1"}, {"", ""}, {"NaN", "1"}} {
		_, _, err := ParseCoordinates(tc[0], tc[1])
		assert.True(t, IsKind(err, KindValidation), "%v", tc)
	}
}

func TestGeoPointOrder(t *testing.T) {
	p := NewGeoPoint(40.7, -74.0)
	assert.Equal(t, []float64{-74.0, 40.7}, p.Coordinates)
	assert.Equal(t, 40.7, p.Lat())
	assert.Equal(t, -74.0, p.Lng())
}

func TestParseSurge(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{1.5, 1.5},
		{"2.25", 2.25},
		{"abc", 1},
		{nil, 1},
		{0.0, 1},
		{-3.0, 1},
		{42.0, 10},
		{true, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseSurge(tc.in, 10), "%v", tc.in)
	}
}

func TestSurgeFloor(t *testing.T) {
	assert.Nil(t, SurgeFloor("", false))
	assert.Nil(t, SurgeFloor("  ", false))
	assert.Equal(t, PeakSurgeThreshold, *SurgeFloor("", true))

	// the hint switches the filter on; the threshold still follows the clock
	assert.Equal(t, OffPeakSurgeFloor, *SurgeFloor("peak", false))
	assert.Equal(t, PeakSurgeThreshold, *SurgeFloor("off-peak", true))
	assert.Equal(t, OffPeakSurgeFloor, *SurgeFloor("evening", false))
}

func TestListingPrice(t *testing.T) {
	l := Listing{PricePerHour: 10, SurgeMultiplier: 1}
	assert.Equal(t, 20.0, l.PriceFor(2))
	l.SurgeMultiplier = 1.5
	assert.Equal(t, 30.0, l.PriceFor(2))
}

func TestBookingTransitions(t *testing.T) {
	legal := map[BookingStatus][]BookingStatus{
		BookingPending: {BookingActive, BookingCancelled},
		BookingActive:  {BookingCompleted, BookingCancelled},
	}
	all := []BookingStatus{BookingPending, BookingActive, BookingCompleted, BookingCancelled}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range legal[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}

	b := Booking{Status: BookingCompleted}
	err := b.Transition(BookingPending, time.Now())
	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, BookingCompleted, b.Status)

	assert.True(t, BookingCompleted.IsTerminal())
	assert.True(t, BookingCancelled.ReleasesListing())
	assert.False(t, BookingActive.ReleasesListing())
}

func TestParseBookingStatus(t *testing.T) {
	s, ok := ParseBookingStatus("Canceled")
	assert.True(t, ok)
	assert.Equal(t, BookingCancelled, s)

	_, ok = ParseBookingStatus("archived")
	assert.False(t, ok)
}

func TestCreateBookingRequestAliases(t *testing.T) {
	req := CreateBookingRequest{ParkingID: "abc", Duration: 2, StartTime: time.Now()}
	require.NoError(t, req.Normalize(time.UTC))
	assert.Equal(t, "abc", req.ListingID)
	assert.Equal(t, 2.0, req.DurationHours)
	assert.NoError(t, Validate(&req))

	bad := CreateBookingRequest{}
	require.NoError(t, bad.Normalize(time.UTC))
	err := Validate(&bad)
	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, "Parking id is required., Start time is required., Duration must be greater than 0.", err.Error())

	long := CreateBookingRequest{ListingID: "abc", StartTime: time.Now(), DurationHours: 721}
	assert.EqualError(t, Validate(&long), "Duration must be at most 720.")
}

func TestCreateBookingRequestDecoding(t *testing.T) {
	chicago := time.FixedZone("CDT", -5*60*60)

	tests := []struct {
		name      string
		body      string
		wantStart time.Time
		wantHours float64
	}{
		{
			name:      "rfc3339 and numeric duration",
			body:      `{"listingId":"abc","startTime":"2024-05-01T10:00:00Z","durationHours":2}`,
			wantStart: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			wantHours: 2,
		},
		{
			name:      "datetime-local with string duration",
			body:      `{"parkingId":"abc","startTime":"2024-05-01T10:00","duration":"2"}`,
			wantStart: time.Date(2024, 5, 1, 10, 0, 0, 0, chicago),
			wantHours: 2,
		},
		{
			name:      "seconds without zone",
			body:      `{"parkingId":"abc","startTime":"2024-05-01T10:00:30","duration":1.5}`,
			wantStart: time.Date(2024, 5, 1, 10, 0, 30, 0, chicago),
			wantHours: 1.5,
		},
		{
			name:      "explicit offset wins over zone",
			body:      `{"parkingId":"abc","startTime":"2024-05-01T10:00:00+02:00","durationHours":"3"}`,
			wantStart: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
			wantHours: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CreateBookingRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			require.NoError(t, req.Normalize(chicago))
			assert.Equal(t, "abc", req.ListingID)
			assert.True(t, tt.wantStart.Equal(req.StartTime), "start %s", req.StartTime)
			assert.Equal(t, tt.wantHours, req.DurationHours)
			assert.NoError(t, Validate(&req))
		})
	}
}

func TestCreateBookingRequestRejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"word duration", `{"parkingId":"abc","startTime":"2024-05-01T10:00","duration":"two"}`, "Duration must be a number."},
		{"boolean duration", `{"parkingId":"abc","startTime":"2024-05-01T10:00","duration":true}`, "Duration must be a number."},
		{"date only", `{"parkingId":"abc","startTime":"2024-05-01","duration":2}`, "Start time must be a valid date and time."},
		{"free text time", `{"parkingId":"abc","startTime":"tomorrow","duration":2}`, "Start time must be a valid date and time."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req CreateBookingRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			err := req.Normalize(time.UTC)
			assert.True(t, IsKind(err, KindValidation))
			assert.EqualError(t, err, tt.want)
		})
	}

	var req CreateBookingRequest
	assert.Error(t, json.Unmarshal([]byte(`{"startTime":12}`), &req))
}
