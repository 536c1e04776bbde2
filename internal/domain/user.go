package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleRenter = "renter"
	RoleOwner  = "owner"
)

var validRoles = map[string]bool{
	RoleRenter: true,
	RoleOwner:  true,
}

func IsValidRole(role string) bool {
	return validRoles[role]
}

type Image struct {
	URL      string `bson:"url" json:"url"`
	PublicID string `bson:"publicId" json:"publicId"`
}

type Rating struct {
	Rating int                `bson:"rating" json:"rating"`
	Review string             `bson:"review" json:"review"`
	ByUser primitive.ObjectID `bson:"byUser" json:"byUser"`
}

// HistoryEntry is appended to a renter once per booking and never rewritten.
type HistoryEntry struct {
	ParkingID primitive.ObjectID `bson:"parkingId" json:"parkingId"`
	Duration  float64            `bson:"duration" json:"duration"`
	Time      time.Time          `bson:"time" json:"time"`
}

type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Username       string             `bson:"username" json:"username"`
	Email          string             `bson:"email" json:"email"`
	PasswordHash   string             `bson:"password" json:"-"`
	Role           string             `bson:"role" json:"role"`
	VehicleNumber  string             `bson:"vehicleNumber" json:"vehicleNumber"`
	ProfileImage   *Image             `bson:"profileImage,omitempty" json:"profileImage,omitempty"`
	Ratings        []Rating           `bson:"ratings" json:"ratings"`
	Verified       bool               `bson:"verified" json:"verified"`
	TrustedParker  bool               `bson:"trustedParker" json:"trustedParker"`
	ParkingHistory []HistoryEntry     `bson:"parkingHistory" json:"parkingHistory"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OwnerSummary is what listings expose about their owner.
type OwnerSummary struct {
	ID       primitive.ObjectID `json:"_id"`
	Username string             `json:"username"`
	Ratings  []Rating           `json:"ratings"`
}

func (u *User) Summary() *OwnerSummary {
	ratings := u.Ratings
	if ratings == nil {
		ratings = []Rating{}
	}
	return &OwnerSummary{ID: u.ID, Username: u.Username, Ratings: ratings}
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,account_email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"oneof=renter owner"`
}

func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

// LoginResponse flattens the user next to the token, matching what the web client reads.
type LoginResponse struct {
	*User
	Token string `json:"token"`
}

// UpdateProfileRequest holds the optional profile fields; empty means unchanged.
type UpdateProfileRequest struct {
	Username      string `json:"username" validate:"omitempty,min=3"`
	Email         string `json:"email" validate:"omitempty,account_email"`
	VehicleNumber string `json:"vehicleNumber" validate:"omitempty,max=20"`
	Password      string `json:"password" validate:"omitempty,min=6"`
}

func (r *UpdateProfileRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.VehicleNumber = strings.TrimSpace(r.VehicleNumber)
}

// HistoryView is a history entry with the referenced listing's address resolved.
type HistoryView struct {
	Parking  *ParkingRef `json:"parkingId"`
	Duration float64     `json:"duration"`
	Time     time.Time   `json:"time"`
}

type ParkingRef struct {
	ID      primitive.ObjectID `json:"_id"`
	Address string             `json:"address,omitempty"`
}

// Profile is the user as returned by GET /user/profile.
type Profile struct {
	*User
	ParkingHistory []HistoryView `json:"parkingHistory"`
}
