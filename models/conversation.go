package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Participant identifies one side of a conversation
type Participant struct {
	UserID string `json:"userId" bson:"userId"`
	Role   string `json:"role" bson:"role"`
}

// LastMessage is the denormalized preview snapshot stored on the conversation,
// refreshed on every send so list views never join against messages
type LastMessage struct {
	Text        string             `json:"text" bson:"text"`
	MessageType string             `json:"messageType" bson:"messageType"`
	FileName    string             `json:"fileName,omitempty" bson:"fileName,omitempty"`
	SenderID    string             `json:"senderId" bson:"senderId"`
	SenderRole  string             `json:"senderRole" bson:"senderRole"`
	CreatedAt   primitive.DateTime `json:"createdAt" bson:"createdAt"`
}

// Conversation holds the structure for the conversations collection in mongo.
// A coach/scout and a player have at most one conversation; the (coachID,
// playerID) pair carries a unique index.
type Conversation struct {
	ID               primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	CoachID          string             `json:"coachId" bson:"coachID"`
	PlayerID         string             `json:"playerId" bson:"playerID"`
	Participants     []Participant      `json:"participants" bson:"participants"`
	InitiatedBy      Participant        `json:"initiatedBy" bson:"initiatedBy"`
	IsUnlocked       bool               `json:"isUnlocked" bson:"isUnlocked"`
	HasPlayerReplied bool               `json:"hasPlayerReplied" bson:"hasPlayerReplied"`
	HasCoachReplied  bool               `json:"hasCoachReplied" bson:"hasCoachReplied"`
	LastMessage      *LastMessage       `json:"lastMessage,omitempty" bson:"lastMessage,omitempty"`
	DeletedFor       []string           `json:"deletedFor" bson:"deletedFor"`
	CreatedAt        primitive.DateTime `json:"createdAt" bson:"createdAt"`
	UpdatedAt        primitive.DateTime `json:"updatedAt" bson:"updatedAt"`
}

// IsParticipant reports whether the user appears in the participant list
func (c *Conversation) IsParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant entry whose userID differs from the
// given one. The second return is false when the record has fewer than two
// participants, which the unique pair index should make impossible.
func (c *Conversation) OtherParticipant(userID string) (Participant, bool) {
	if len(c.Participants) < 2 {
		return Participant{}, false
	}
	for _, p := range c.Participants {
		if p.UserID != userID {
			return p, true
		}
	}
	return Participant{}, false
}

// ConversationView is a conversation enriched for list responses with the
// other participant's directory entry and the viewer's unread count
type ConversationView struct {
	Conversation
	OtherUser   ParticipantInfo `json:"otherUser"`
	UnreadCount int64           `json:"unreadCount"`
}
