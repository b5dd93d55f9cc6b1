package databases_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/scoutbase/recruiting-api/databases"
	"github.com/scoutbase/recruiting-api/databases/mocks"
	"github.com/scoutbase/recruiting-api/models"
)

func testMessage(text string, at time.Time) models.Message {
	return models.Message{
		ID:          primitive.NewObjectID(),
		SenderID:    "coach-1",
		SenderRole:  models.RoleCoach,
		ReceiverID:  "player-1",
		MessageType: models.MessageTypeText,
		Text:        text,
		CreatedAt:   primitive.NewDateTimeFromTime(at),
	}
}

func TestMessageDatabase_PageReversesOrder(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	now := time.Now()
	newest := testMessage("third", now)
	middle := testMessage("second", now.Add(-time.Minute))
	oldest := testMessage("first", now.Add(-2*time.Minute))

	// the store returns the page most-recent-first
	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Message)
		*arg = []models.Message{newest, middle, oldest}
	})
	cursor.On("Close", mock.Anything).Return(nil)
	conn.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(cursor, nil)
	db.On("Collection", "messages").Return(conn)

	messageDatabase := databases.NewMessageDatabase(db)

	messages, err := messageDatabase.Page(context.Background(), "conv-1", 0, 50)
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, []string{messages[0].Text, messages[1].Text, messages[2].Text})
}

func TestMessageDatabase_MarkConversationRead(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	unread := []models.Message{testMessage("one", time.Now()), testMessage("two", time.Now())}

	var capturedFilter, capturedUpdate interface{}
	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(1).(*[]models.Message)
		*arg = unread
	})
	cursor.On("Close", mock.Anything).Return(nil)
	conn.On("Find", mock.Anything, mock.Anything).Return(cursor, nil).Run(func(args mock.Arguments) {
		capturedFilter = args.Get(1)
	})
	conn.On("UpdateMany", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{ModifiedCount: 2}, nil).
		Run(func(args mock.Arguments) {
			capturedUpdate = args.Get(2)
		})
	db.On("Collection", "messages").Return(conn)

	messageDatabase := databases.NewMessageDatabase(db)

	read, err := messageDatabase.MarkConversationRead(context.Background(), "conv-1", "player-1")
	assert.NoError(t, err)
	assert.Len(t, read, 2)

	filter := capturedFilter.(bson.M)
	assert.Equal(t, "conv-1", filter["conversationID"])
	assert.Equal(t, "player-1", filter["receiverID"])
	assert.Equal(t, false, filter["isRead"])

	set := capturedUpdate.(bson.M)["$set"].(bson.M)
	assert.Equal(t, true, set["isRead"])
	assert.Contains(t, set, "readAt")
}

func TestMessageDatabase_MarkConversationReadNoUnread(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}

	cursor.On("All", mock.Anything, mock.Anything).Return(nil)
	cursor.On("Close", mock.Anything).Return(nil)
	conn.On("Find", mock.Anything, mock.Anything).Return(cursor, nil)
	db.On("Collection", "messages").Return(conn)

	messageDatabase := databases.NewMessageDatabase(db)

	read, err := messageDatabase.MarkConversationRead(context.Background(), "conv-1", "player-1")
	assert.NoError(t, err)
	assert.Nil(t, read)
	// nothing unread means no write at all
	conn.AssertNotCalled(t, "UpdateMany", mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageDatabase_UnreadCount(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}

	var capturedFilter interface{}
	conn.On("CountDocuments", mock.Anything, mock.Anything).Return(int64(3), nil).Run(func(args mock.Arguments) {
		capturedFilter = args.Get(1)
	})
	db.On("Collection", "messages").Return(conn)

	messageDatabase := databases.NewMessageDatabase(db)

	count, err := messageDatabase.UnreadCount(context.Background(), "conv-1", "coach-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)

	filter := capturedFilter.(bson.M)
	assert.Equal(t, "coach-1", filter["receiverID"])
	assert.Equal(t, false, filter["isRead"])
}

func TestMessageDatabase_InsertOne(t *testing.T) {
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	insertResult := &mocks.InsertOneResultHelper{}

	conn.On("InsertOne", mock.Anything, mock.Anything).Return(insertResult, nil)
	db.On("Collection", "messages").Return(conn)

	messageDatabase := databases.NewMessageDatabase(db)

	res, err := messageDatabase.InsertOne(context.Background(), testMessage("hello", time.Now()))
	assert.NoError(t, err)
	assert.Equal(t, insertResult, res)
}
