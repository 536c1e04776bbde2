package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(strings.ToLower(strings.TrimSpace(s))) {
	case BookingPending:
		return BookingPending, true
	case BookingActive:
		return BookingActive, true
	case BookingCompleted:
		return BookingCompleted, true
	case BookingCancelled, "canceled":
		return BookingCancelled, true
	default:
		return "", false
	}
}

// transitions lists the legal next states. Completed and cancelled are terminal.
var transitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingActive, BookingCancelled},
	BookingActive:    {BookingCompleted, BookingCancelled},
	BookingCompleted: nil,
	BookingCancelled: nil,
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// ReleasesListing reports whether entering this status frees the parking spot.
func (s BookingStatus) ReleasesListing() bool {
	return s == BookingCompleted || s == BookingCancelled
}

type Booking struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	RenterID     primitive.ObjectID `bson:"renter" json:"renter"`
	ParkingID    primitive.ObjectID `bson:"parking" json:"parking"`
	StartTime    time.Time          `bson:"startTime" json:"startTime"`
	EndTime      time.Time          `bson:"endTime" json:"endTime"`
	Duration     float64            `bson:"duration" json:"duration"`
	TotalPrice   float64            `bson:"totalPrice" json:"totalPrice"`
	Confirmation string             `bson:"confirmation" json:"confirmation"`
	QRCode       string             `bson:"qrCode" json:"qrCode"`
	Status       BookingStatus      `bson:"status" json:"status"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Transition moves the booking to next or explains why it cannot.
func (b *Booking) Transition(next BookingStatus, now time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return ValidationError(fmt.Sprintf("Cannot change booking from %s to %s", b.Status, next))
	}
	b.Status = next
	b.UpdatedAt = now
	return nil
}

func (b *Booking) IsRenter(userID primitive.ObjectID) bool {
	return b.RenterID == userID
}

// DurationHours is the booked span measured from the stored times.
func (b *Booking) DurationHours() float64 {
	return b.EndTime.Sub(b.StartTime).Hours()
}

// startTimeLayouts are tried in order. The zoneless forms come from
// datetime-local inputs and are read in the service's configured zone.
var startTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// CreateBookingRequest accepts both the documented field names and the ones the
// web client sends (parkingId, duration). Durations may arrive as numbers or
// numeric strings; the start time is kept raw until Normalize picks a zone.
type CreateBookingRequest struct {
	ListingID     string    `json:"listingId" label:"parkingId" validate:"required"`
	ParkingID     string    `json:"parkingId"`
	StartTime     time.Time `json:"startTime" validate:"required"`
	DurationHours float64   `json:"durationHours" label:"duration" validate:"gt=0,lte=720"`
	Duration      float64   `json:"duration"`

	startRaw    string
	badDuration bool
}

func (r *CreateBookingRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		ListingID     string          `json:"listingId"`
		ParkingID     string          `json:"parkingId"`
		StartTime     *string         `json:"startTime"`
		DurationHours json.RawMessage `json:"durationHours"`
		Duration      json.RawMessage `json:"duration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = CreateBookingRequest{ListingID: raw.ListingID, ParkingID: raw.ParkingID}
	if raw.StartTime != nil {
		r.startRaw = strings.TrimSpace(*raw.StartTime)
	}
	var ok bool
	if r.DurationHours, ok = flexFloat(raw.DurationHours); !ok {
		r.badDuration = true
	}
	if r.Duration, ok = flexFloat(raw.Duration); !ok {
		r.badDuration = true
	}
	return nil
}

// flexFloat reads a JSON number or numeric string. Absent and null read as 0.
func flexFloat(m json.RawMessage) (float64, bool) {
	text := strings.TrimSpace(string(m))
	if text == "" || text == "null" {
		return 0, true
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		text = strings.TrimSpace(s)
		if text == "" {
			return 0, true
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseStartTime accepts RFC 3339 and the zoneless datetime-local forms, which
// are interpreted in loc (UTC when nil).
func ParseStartTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range startTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ValidationError("Start time must be a valid date and time.")
}

// Normalize applies the field aliases and resolves the raw start time in loc.
func (r *CreateBookingRequest) Normalize(loc *time.Location) error {
	r.ListingID = strings.TrimSpace(r.ListingID)
	if r.ListingID == "" {
		r.ListingID = strings.TrimSpace(r.ParkingID)
	}
	if r.badDuration {
		return ValidationError("Duration must be a number.")
	}
	if r.DurationHours == 0 {
		r.DurationHours = r.Duration
	}
	if r.startRaw != "" {
		t, err := ParseStartTime(r.startRaw, loc)
		if err != nil {
			return err
		}
		r.StartTime = t
	}
	return nil
}

type CheckInOutRequest struct {
	BookingID string `json:"bookingId" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

// ConfirmationPayload is what the booking QR code encodes. BookingID carries the
// creation timestamp, as the check-in scanner expects.
type ConfirmationPayload struct {
	BookingID string `json:"bookingId"`
	ParkingID string `json:"parkingId"`
	RenterID  string `json:"renterId"`
}
