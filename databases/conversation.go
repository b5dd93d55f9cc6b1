package databases

// go generate: mockery --name ConversationDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/scoutbase/recruiting-api/models"
)

const conversationName = "conversations"

// Errors surfaced to the REST and socket layers so they can map them to the
// right status code / error event without string matching.
var (
	ErrNotParticipant     = errors.New("user is not a participant of this conversation")
	ErrConversationLocked = errors.New("conversation is locked for player messages")
	ErrNotSender          = errors.New("only the sender can delete a message")
)

// ConversationDatabase contains the methods to use with the conversation database
type ConversationDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Conversation, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Conversation, error)
	FindOrCreate(ctx context.Context, coachID, playerID string, initiator models.Participant) (*models.Conversation, error)
	RecordMessageSent(ctx context.Context, conversationID primitive.ObjectID, message *models.Message) error
	SoftDelete(ctx context.Context, conversationID primitive.ObjectID, userID string) (bool, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type conversationDatabase struct {
	db DatabaseHelper
}

// NewConversationDatabase initializes a new instance of conversation database with the provided db connection
func NewConversationDatabase(db DatabaseHelper) ConversationDatabase {
	return &conversationDatabase{
		db: db,
	}
}

func (c *conversationDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Conversation, error) {
	conversation := &models.Conversation{}
	err := c.db.Collection(conversationName).FindOne(ctx, filter, opts...).Decode(&conversation)
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

func (c *conversationDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Conversation, error) {
	var conversations []models.Conversation
	curr, err := c.db.Collection(conversationName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &conversations)
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// FindOrCreate returns the one conversation for the (coach, player) pair,
// inserting it atomically when absent. Conversations only come into existence
// through a coach/scout-initiated send, so new records start unlocked. A lost
// upsert race trips the unique pair index; the retry re-runs the find instead
// of surfacing the duplicate-key error.
func (c *conversationDatabase) FindOrCreate(ctx context.Context, coachID, playerID string, initiator models.Participant) (*models.Conversation, error) {
	now := primitive.NewDateTimeFromTime(time.Now())
	filter := bson.M{"coachID": coachID, "playerID": playerID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"coachID":  coachID,
			"playerID": playerID,
			"participants": []models.Participant{
				{UserID: coachID, Role: initiator.Role},
				{UserID: playerID, Role: models.RolePlayer},
			},
			"initiatedBy":      initiator,
			"isUnlocked":       true,
			"hasPlayerReplied": false,
			"hasCoachReplied":  false,
			"deletedFor":       []string{},
			"createdAt":        now,
			"updatedAt":        now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		conversation := &models.Conversation{}
		err := c.db.Collection(conversationName).FindOneAndUpdate(ctx, filter, update, opts).Decode(&conversation)
		if err == nil {
			return conversation, nil
		}
		lastErr = err
		if !mongo.IsDuplicateKeyError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// RecordMessageSent refreshes the denormalized lastMessage snapshot and marks
// the sender's side as having replied. Scouts count on the coach side.
func (c *conversationDatabase) RecordMessageSent(ctx context.Context, conversationID primitive.ObjectID, message *models.Message) error {
	repliedField := "hasCoachReplied"
	if message.SenderRole == models.RolePlayer {
		repliedField = "hasPlayerReplied"
	}
	update := bson.M{"$set": bson.M{
		"lastMessage": message.Preview(),
		"updatedAt":   message.CreatedAt,
		repliedField:  true,
	}}
	_, err := c.db.Collection(conversationName).UpdateOne(ctx, bson.M{"_id": conversationID}, update)
	return err
}

// SoftDelete hides the conversation from one participant. The filter scopes
// the write to conversations the user actually belongs to, so a forged ID is
// a silent no-op rather than a data change.
func (c *conversationDatabase) SoftDelete(ctx context.Context, conversationID primitive.ObjectID, userID string) (bool, error) {
	res, err := c.db.Collection(conversationName).UpdateOne(ctx,
		bson.M{"_id": conversationID, "participants.userId": userID},
		bson.M{"$addToSet": bson.M{"deletedFor": userID}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (c *conversationDatabase) DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error) {
	return c.db.Collection(conversationName).DeleteMany(ctx, filter, opts...)
}

// EnsureIndexes creates the unique (coachID, playerID) pair index that backs
// the find-or-create race resolution.
func (c *conversationDatabase) EnsureIndexes(ctx context.Context) error {
	unique := true
	return c.db.Collection(conversationName).CreateIndexes(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "coachID", Value: 1}, {Key: "playerID", Value: 1}},
			Options: &options.IndexOptions{Unique: &unique},
		},
		{
			Keys: bson.D{{Key: "participants.userId", Value: 1}, {Key: "updatedAt", Value: -1}},
		},
	})
}
