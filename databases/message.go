package databases

// go generate: mockery --name MessageDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/scoutbase/recruiting-api/models"
)

const messageName = "messages"

// MessageDatabase contains the methods to use with the message database
type MessageDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Message, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Message, error)
	Page(ctx context.Context, conversationID string, page, limit int) ([]models.Message, error)
	InsertOne(ctx context.Context, message models.Message) (InsertOneResultHelper, error)
	MarkConversationRead(ctx context.Context, conversationID, receiverID string) ([]models.Message, error)
	UnreadCount(ctx context.Context, conversationID, userID string) (int64, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) error
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type messageDatabase struct {
	db DatabaseHelper
}

// NewMessageDatabase initializes a new instance of message database with the provided db connection
func NewMessageDatabase(db DatabaseHelper) MessageDatabase {
	return &messageDatabase{
		db: db,
	}
}

func (m *messageDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Message, error) {
	message := &models.Message{}
	err := m.db.Collection(messageName).FindOne(ctx, filter, opts...).Decode(&message)
	if err != nil {
		return nil, err
	}
	return message, nil
}

func (m *messageDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Message, error) {
	var messages []models.Message
	curr, err := m.db.Collection(messageName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Page fetches one page of a conversation most-recent-first, then reverses it
// so clients render oldest to newest.
func (m *messageDatabase) Page(ctx context.Context, conversationID string, page, limit int) ([]models.Message, error) {
	// pages are zero-based at the API surface, one-based in the paginator
	opts := newMongoPaginate(limit, page+1).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})

	messages, err := m.Find(ctx, bson.M{"conversationID": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (m *messageDatabase) InsertOne(ctx context.Context, message models.Message) (InsertOneResultHelper, error) {
	res, err := m.db.Collection(messageName).InsertOne(ctx, message)
	return res, err
}

// MarkConversationRead flips every unread message addressed to receiverID in
// the conversation and returns the affected messages so callers can notify
// each original sender.
func (m *messageDatabase) MarkConversationRead(ctx context.Context, conversationID, receiverID string) ([]models.Message, error) {
	filter := bson.M{
		"conversationID": conversationID,
		"receiverID":     receiverID,
		"isRead":         false,
	}

	unread, err := m.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(unread) == 0 {
		return nil, nil
	}

	_, err = m.db.Collection(messageName).UpdateMany(ctx, filter, bson.M{"$set": bson.M{
		"isRead": true,
		"readAt": primitive.NewDateTimeFromTime(time.Now()),
	}})
	if err != nil {
		return nil, err
	}
	return unread, nil
}

func (m *messageDatabase) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	return m.db.Collection(messageName).CountDocuments(ctx, bson.M{
		"conversationID": conversationID,
		"receiverID":     userID,
		"isRead":         false,
	})
}

func (m *messageDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) error {
	return m.db.Collection(messageName).DeleteOne(ctx, filter, opts...)
}

func (m *messageDatabase) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error) {
	return m.db.Collection(messageName).DeleteMany(ctx, filter, opts...)
}

// EnsureIndexes backs the per-conversation page reads and the unread counters.
func (m *messageDatabase) EnsureIndexes(ctx context.Context) error {
	return m.db.Collection(messageName).CreateIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationID", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "conversationID", Value: 1}, {Key: "receiverID", Value: 1}, {Key: "isRead", Value: 1}}},
	})
}
