package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type VehicleType string

const (
	VehicleSmall  VehicleType = "small"
	VehicleMedium VehicleType = "medium"
	VehicleLarge  VehicleType = "large"
)

var AllVehicleTypes = []VehicleType{VehicleSmall, VehicleMedium, VehicleLarge}

func ParseVehicleType(s string) (VehicleType, bool) {
	switch VehicleType(strings.ToLower(strings.TrimSpace(s))) {
	case VehicleSmall:
		return VehicleSmall, true
	case VehicleMedium:
		return VehicleMedium, true
	case VehicleLarge:
		return VehicleLarge, true
	default:
		return "", false
	}
}

// Listing business rules
const (
	DefaultHeading       = "Parking Spot"
	MaxListingImages     = 5
	DefaultSurge         = 1.0
	PeakSurgeThreshold   = 1.2
	OffPeakSurgeFloor    = 1.0
	DefaultNearbyRadiusM = 5000
	NearbyResultLimit    = 10
)

// GeoPoint is a GeoJSON point; Coordinates are [lng, lat].
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

func (p GeoPoint) Lat() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

func (p GeoPoint) Lng() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[0]
}

type Listing struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	OwnerID         primitive.ObjectID `bson:"owner" json:"-"`
	Address         string             `bson:"address" json:"address"`
	Description     string             `bson:"description" json:"description"`
	Heading         string             `bson:"heading" json:"heading"`
	VehicleType     VehicleType        `bson:"vehicleType" json:"vehicleType"`
	PricePerHour    float64            `bson:"pricePerHour" json:"pricePerHour"`
	Location        GeoPoint           `bson:"location" json:"location"`
	Images          []Image            `bson:"images" json:"images"`
	Availability    bool               `bson:"availability" json:"availability"`
	SurgeMultiplier float64            `bson:"surgeMultiplier" json:"surgeMultiplier"`
	AverageDuration float64            `bson:"averageDuration" json:"averageDuration"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ListingView is a listing with its owner resolved, as served by the read endpoints.
type ListingView struct {
	*Listing
	Owner any `json:"owner"`
}

// View resolves the owner field; an unknown owner is rendered as its bare id.
func (l *Listing) View(owner *User) *ListingView {
	if owner == nil {
		return &ListingView{Listing: l, Owner: l.OwnerID}
	}
	return &ListingView{Listing: l, Owner: owner.Summary()}
}

// PriceFor is the frozen booking price for the given number of hours.
func (l *Listing) PriceFor(hours float64) float64 {
	return l.PricePerHour * hours * l.SurgeMultiplier
}

// CreateListingRequest is decoded from the multipart form; lat/lng stay strings
// until ParseCoordinates so non-numeric input is reported as a validation error.
type CreateListingRequest struct {
	Address      string  `json:"address" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Heading      string  `json:"heading" validate:"min=5,max=100"`
	Headline     string  `json:"headline" validate:"-"`
	VehicleType  string  `json:"vehicleType" validate:"required,oneof=small medium large"`
	PricePerHour float64 `json:"pricePerHour" validate:"gt=0"`
	Lat          string  `json:"lat" validate:"required"`
	Lng          string  `json:"lng" validate:"required"`
}

func (r *CreateListingRequest) Normalize() {
	r.Address = strings.TrimSpace(r.Address)
	r.Description = strings.TrimSpace(r.Description)
	r.Heading = strings.TrimSpace(r.Heading)
	if r.Heading == "" {
		r.Heading = strings.TrimSpace(r.Headline)
	}
	if r.Heading == "" {
		r.Heading = DefaultHeading
	}
	r.VehicleType = strings.ToLower(strings.TrimSpace(r.VehicleType))
}

// ParseCoordinates parses and range-checks a latitude/longitude pair.
func ParseCoordinates(latRaw, lngRaw string) (lat, lng float64, err error) {
	const msg = "Valid latitude and longitude are required"
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if errLat != nil || errLng != nil || math.IsNaN(lat) || math.IsNaN(lng) {
		return 0, 0, ValidationError(msg)
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, ValidationError(msg)
	}
	return lat, lng, nil
}

// ParseSurge turns client input into a stored multiplier. Unparseable, zero,
// negative and non-finite values fall back to 1; values above max are clamped.
func ParseSurge(raw any, max float64) float64 {
	var v float64
	switch t := raw.(type) {
	case float64:
		v = t
	case int:
		v = float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return DefaultSurge
		}
		v = f
	default:
		return DefaultSurge
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return DefaultSurge
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// NearbyQuery is the parsed form of GET /parking/nearby.
type NearbyQuery struct {
	Lat          float64
	Lng          float64
	VehicleTypes []VehicleType
	MaxDistance  int
	// MinSurge is nil when no surge filter applies.
	MinSurge *float64
	Limit    int
}

// SurgeFloor returns the minimum surge multiplier for nearby results, or nil
// when no surge filter applies. The filter is on during peak hours or when the
// client sent any timeOfDay value; the clock alone picks the threshold.
func SurgeFloor(timeOfDay string, clockPeak bool) *float64 {
	if !clockPeak && strings.TrimSpace(timeOfDay) == "" {
		return nil
	}
	floor := OffPeakSurgeFloor
	if clockPeak {
		floor = PeakSurgeThreshold
	}
	return &floor
}

// UpdateSurgeRequest accepts the multiplier as a JSON number or string.
type UpdateSurgeRequest struct {
	ListingID       string `json:"listingId"`
	ParkingID       string `json:"parkingId"`
	SurgeMultiplier any    `json:"surgeMultiplier"`
}

func (r *UpdateSurgeRequest) ID() string {
	if r.ListingID != "" {
		return r.ListingID
	}
	return r.ParkingID
}
