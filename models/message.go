package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Message types derived from the attachment MIME type at send time
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// MessageFile holds attachment metadata for image and file messages
type MessageFile struct {
	URL  string `json:"url" bson:"url"`
	Name string `json:"name" bson:"name"`
	Size int64  `json:"size" bson:"size"`
}

// Message holds the structure for the messages collection in mongo
type Message struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	ConversationID string             `json:"conversationId" bson:"conversationID"`
	SenderID       string             `json:"senderId" bson:"senderID"`
	SenderRole     string             `json:"senderRole" bson:"senderRole"`
	ReceiverID     string             `json:"receiverId" bson:"receiverID"`
	MessageType    string             `json:"messageType" bson:"messageType"`
	Text           string             `json:"text,omitempty" bson:"text,omitempty"`
	File           *MessageFile       `json:"file,omitempty" bson:"file,omitempty"`
	IsRead         bool               `json:"isRead" bson:"isRead"`
	ReadAt         primitive.DateTime `json:"readAt,omitempty" bson:"readAt,omitempty"`
	CreatedAt      primitive.DateTime `json:"createdAt" bson:"createdAt"`
}

// Preview builds the denormalized snapshot stored on the parent conversation
func (m *Message) Preview() *LastMessage {
	lm := &LastMessage{
		Text:        m.Text,
		MessageType: m.MessageType,
		SenderID:    m.SenderID,
		SenderRole:  m.SenderRole,
		CreatedAt:   m.CreatedAt,
	}
	if m.File != nil {
		lm.FileName = m.File.Name
	}
	return lm
}
