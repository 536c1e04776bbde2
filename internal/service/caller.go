package service

import (
	"github.com/diagnosis/parkspot/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Caller is the authenticated user behind a request.
type Caller struct {
	ID   primitive.ObjectID
	Role string
}

func (c Caller) IsOwner() bool { return c.Role == domain.RoleOwner }

// parseID turns a client-supplied id into an ObjectID; what names the entity
// in the error message.
func parseID(raw, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, domain.ValidationError("Invalid " + what + " id")
	}
	return id, nil
}
