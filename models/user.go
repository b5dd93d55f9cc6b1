package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Role values stored on users and conversation participants.
const (
	RoleCoach  = "coach"
	RolePlayer = "player"
	RoleScout  = "scout"
)

// User holds the structure for the user collection in mongo
type User struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UserDetails `json:"user" bson:"user"`
	Version int32       `json:"__v" bson:"__v"`
}

// UserDetails holds the structure for the inner user structure as defined in the user collection in mongo
type UserDetails struct {
	FirstName    string             `json:"firstName" bson:"firstName"`
	LastName     string             `json:"lastName" bson:"lastName"`
	Email        string             `json:"email" bson:"email"`
	Password     string             `json:"password" bson:"password"`
	Role         string             `json:"role" bson:"role"`
	ProfileImage string             `json:"profileImage" bson:"profileImage"`
	IsApproved   bool               `json:"isApproved" bson:"isApproved"`
	CreatedAt    primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt    primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// ParticipantInfo is the directory view of the other side of a conversation,
// returned inside conversation list responses.
type ParticipantInfo struct {
	ID           string `json:"_id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	ProfileImage string `json:"profileImage"`
}
