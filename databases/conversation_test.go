package databases_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/scoutbase/recruiting-api/databases"
	"github.com/scoutbase/recruiting-api/databases/mocks"
	"github.com/scoutbase/recruiting-api/models"
)

func TestConversationDatabase_FindOneError(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}

	singleResultHelper.On("Decode", mock.Anything).Return(errors.New("mocked-error"))
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	db.On("Collection", "conversations").Return(conn)

	conversationDatabase := databases.NewConversationDatabase(db)

	conversation, err := conversationDatabase.FindOne(context.Background(), bson.M{"_id": primitive.NewObjectID()})
	assert.Nil(t, conversation)
	assert.EqualError(t, err, "mocked-error")
}

func TestConversationDatabase_FindOne(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}

	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Conversation)
		(*arg).CoachID = "coach-1"
		(*arg).PlayerID = "player-1"
	})
	conn.On("FindOne", mock.Anything, mock.Anything).Return(singleResultHelper)
	db.On("Collection", "conversations").Return(conn)

	conversationDatabase := databases.NewConversationDatabase(db)

	conversation, err := conversationDatabase.FindOne(context.Background(), bson.M{"coachID": "coach-1"})
	assert.NoError(t, err)
	assert.Equal(t, "coach-1", conversation.CoachID)
	assert.Equal(t, "player-1", conversation.PlayerID)
}

func TestConversationDatabase_FindOrCreateUpsertShape(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	singleResultHelper := &mocks.SingleResultHelper{}

	var capturedFilter, capturedUpdate interface{}
	singleResultHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Conversation)
		(*arg).CoachID = "coach-1"
		(*arg).PlayerID = "player-1"
		(*arg).IsUnlocked = true
	})
	conn.On("FindOneAndUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(singleResultHelper).
		Run(func(args mock.Arguments) {
			capturedFilter = args.Get(1)
			capturedUpdate = args.Get(2)
		})
	db.On("Collection", "conversations").Return(conn)

	conversationDatabase := databases.NewConversationDatabase(db)

	initiator := models.Participant{UserID: "coach-1", Role: models.RoleCoach}
	conversation, err := conversationDatabase.FindOrCreate(context.Background(), "coach-1", "player-1", initiator)
	assert.NoError(t, err)
	assert.True(t, conversation.IsUnlocked)

	filter := capturedFilter.(bson.M)
	assert.Equal(t, "coach-1", filter["coachID"])
	assert.Equal(t, "player-1", filter["playerID"])

	insert := capturedUpdate.(bson.M)["$setOnInsert"].(bson.M)
	assert.Equal(t, true, insert["isUnlocked"])
	assert.Equal(t, initiator, insert["initiatedBy"])
	participants := insert["participants"].([]models.Participant)
	assert.Equal(t, models.RoleCoach, participants[0].Role)
	assert.Equal(t, models.RolePlayer, participants[1].Role)
}

func TestConversationDatabase_FindOrCreateRetriesOnDuplicateKey(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	failedResult := &mocks.SingleResultHelper{}
	successResult := &mocks.SingleResultHelper{}

	// lost upsert race: first attempt trips the unique pair index
	dupErr := mongo.CommandError{Code: 11000, Message: "duplicate key error"}
	failedResult.On("Decode", mock.Anything).Return(dupErr)
	successResult.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(**models.Conversation)
		(*arg).CoachID = "coach-1"
	})

	conn.On("FindOneAndUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(failedResult).Once()
	conn.On("FindOneAndUpdate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(successResult).Once()
	db.On("Collection", "conversations").Return(conn)

	conversationDatabase := databases.NewConversationDatabase(db)

	initiator := models.Participant{UserID: "coach-1", Role: models.RoleCoach}
	conversation, err := conversationDatabase.FindOrCreate(context.Background(), "coach-1", "player-1", initiator)
	assert.NoError(t, err)
	assert.Equal(t, "coach-1", conversation.CoachID)
	conn.AssertNumberOfCalls(t, "FindOneAndUpdate", 2)
}

func TestConversationDatabase_RecordMessageSentFlipsPlayerFlag(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	var capturedUpdate interface{}
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil).
		Run(func(args mock.Arguments) {
			capturedUpdate = args.Get(2)
		})
	db.On("Collection", "conversations").Return(conn)

	conversationDatabase := databases.NewConversationDatabase(db)

	message := &models.Message{
		SenderID:    "player-1",
		SenderRole:  models.RolePlayer,
		MessageType: models.MessageTypeText,
		Text:        "hi back",
	}
	err := conversationDatabase.RecordMessageSent(context.Background(), primitive.NewObjectID(), message)
	assert.NoError(t, err)

	set := capturedUpdate.(bson.M)["$set"].(bson.M)
	assert.Equal(t, true, set["hasPlayerReplied"])
	assert.NotContains(t, set, "hasCoachReplied")
	assert.Equal(t, message.Preview(), set["lastMessage"])
}

func TestConversationDatabase_RecordMessageSentFlipsCoachFlagForScout(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	var capturedUpdate interface{}
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil).
		Run(func(args mock.Arguments) {
			capturedUpdate = args.Get(2)
		})
	db.On("Collection", "conversations").Return(conn)

	conversationDatabase := databases.NewConversationDatabase(db)

	message := &models.Message{SenderID: "scout-1", SenderRole: models.RoleScout, Text: "hello"}
	err := conversationDatabase.RecordMessageSent(context.Background(), primitive.NewObjectID(), message)
	assert.NoError(t, err)

	set := capturedUpdate.(bson.M)["$set"].(bson.M)
	assert.Equal(t, true, set["hasCoachReplied"])
	assert.NotContains(t, set, "hasPlayerReplied")
}

func TestConversationDatabase_SoftDelete(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	var capturedFilter interface{}
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 1}, nil).
		Run(func(args mock.Arguments) {
			capturedFilter = args.Get(1)
		})
	db.On("Collection", "conversations").Return(conn)

	conversationDatabase := databases.NewConversationDatabase(db)

	id := primitive.NewObjectID()
	ok, err := conversationDatabase.SoftDelete(context.Background(), id, "player-1")
	assert.NoError(t, err)
	assert.True(t, ok)

	// the write is scoped to conversations the user belongs to
	filter := capturedFilter.(bson.M)
	assert.Equal(t, id, filter["_id"])
	assert.Equal(t, "player-1", filter["participants.userId"])
}

func TestConversationDatabase_SoftDeleteNotParticipant(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 0}, nil)
	db.On("Collection", "conversations").Return(conn)

	conversationDatabase := databases.NewConversationDatabase(db)

	ok, err := conversationDatabase.SoftDelete(context.Background(), primitive.NewObjectID(), "stranger")
	assert.NoError(t, err)
	assert.False(t, ok)
}
