package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlaceholderUserName is shown when a user record cannot be resolved.
const PlaceholderUserName = "User"

// User is the subset of the account record this service reads. Accounts are
// created and authenticated elsewhere.
type User struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email" json:"email"`
}

// Actor identifies the caller of a mutation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// CanModify reports whether the actor may change an issue owned by ownerID.
func (a Actor) CanModify(ownerID string) bool {
	return a.IsAdmin || a.UserID == ownerID
}
