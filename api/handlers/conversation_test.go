package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/scoutbase/recruiting-api/api"
	"github.com/scoutbase/recruiting-api/api/handlers"
	"github.com/scoutbase/recruiting-api/config"
	"github.com/scoutbase/recruiting-api/databases/mocks"
	"github.com/scoutbase/recruiting-api/models"
)

func authedRequest(t *testing.T, method, target string, body []byte, user api.AuthUser) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return req.WithContext(api.WithAuthUser(req.Context(), user))
}

func pairConversation(coachID, playerID string) *models.Conversation {
	return &models.Conversation{
		ID:       primitive.NewObjectID(),
		CoachID:  coachID,
		PlayerID: playerID,
		Participants: []models.Participant{
			{UserID: coachID, Role: models.RoleCoach},
			{UserID: playerID, Role: models.RolePlayer},
		},
		InitiatedBy: models.Participant{UserID: coachID, Role: models.RoleCoach},
		IsUnlocked:  true,
		DeletedFor:  []string{},
	}
}

func TestConversation_StartConversationHandlerForbiddenForPlayer(t *testing.T) {
	c := handlers.Conversation{}

	body, _ := json.Marshal(map[string]string{"playerId": "player-1"})
	req := authedRequest(t, "POST", "/api/v1/conversations/start", body, api.AuthUser{ID: "player-2", Role: models.RolePlayer})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.StartConversationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestConversation_StartConversationHandlerRequiresText(t *testing.T) {
	conversationDB := &mocks.ConversationDatabase{}
	userDB := &mocks.UserDatabase{}

	c := handlers.Conversation{DB: conversationDB, UDB: userDB}

	// a conversation only comes into existence through a first message
	body, _ := json.Marshal(map[string]string{"playerId": "player-1"})
	req := authedRequest(t, "POST", "/api/v1/conversations/start", body, api.AuthUser{ID: "coach-1", Role: models.RoleCoach})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.StartConversationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	conversationDB.AssertNotCalled(t, "FindOrCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConversation_StartConversationHandlerWithFirstMessage(t *testing.T) {
	conversationDB := &mocks.ConversationDatabase{}
	messageDB := &mocks.MessageDatabase{}
	userDB := &mocks.UserDatabase{}

	player := &models.User{ID: "player-1", Details: models.UserDetails{Role: models.RolePlayer}}
	conversation := pairConversation("coach-1", "player-1")

	userDB.On("FindOne", mock.Anything, mock.Anything).Return(player, nil)
	conversationDB.On("FindOrCreate", mock.Anything, "coach-1", "player-1",
		models.Participant{UserID: "coach-1", Role: models.RoleCoach}).Return(conversation, nil)
	messageDB.On("InsertOne", mock.Anything, mock.Anything).Return(nil, nil)
	conversationDB.On("RecordMessageSent", mock.Anything, conversation.ID, mock.Anything).Return(nil)
	messageDB.On("UnreadCount", mock.Anything, conversation.ID.Hex(), "player-1").Return(int64(1), nil)

	c := handlers.Conversation{DB: conversationDB, MDB: messageDB, UDB: userDB}

	body, _ := json.Marshal(map[string]string{"playerId": "player-1", "text": "Hello"})
	req := authedRequest(t, "POST", "/api/v1/conversations/start", body, api.AuthUser{ID: "coach-1", Role: models.RoleCoach})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.StartConversationHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Conversation models.Conversation `json:"conversation"`
		Message      *models.Message     `json:"message"`
	}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Conversation.HasCoachReplied)
	assert.False(t, resp.Conversation.HasPlayerReplied)
	assert.NotNil(t, resp.Message)
	assert.Equal(t, "coach-1", resp.Message.SenderID)
	assert.Equal(t, "player-1", resp.Message.ReceiverID)
	assert.Equal(t, models.MessageTypeText, resp.Message.MessageType)
	assert.Equal(t, "Hello", resp.Conversation.LastMessage.Text)
	conversationDB.AssertCalled(t, "RecordMessageSent", mock.Anything, conversation.ID, mock.Anything)
}

func TestConversation_ConversationsHandlerEnrichesList(t *testing.T) {
	conversationDB := &mocks.ConversationDatabase{}
	messageDB := &mocks.MessageDatabase{}
	userDB := &mocks.UserDatabase{}

	conversation := *pairConversation("coach-1", "player-1")
	coach := &models.User{ID: "coach-1", Details: models.UserDetails{
		FirstName:    "Casey",
		LastName:     "Jones",
		Role:         models.RoleCoach,
		ProfileImage: "/uploads/casey.png",
	}}

	conversationDB.On("Find", mock.Anything, mock.Anything, mock.Anything).Return([]models.Conversation{conversation}, nil)
	userDB.On("FindOne", mock.Anything, mock.Anything).Return(coach, nil)
	messageDB.On("UnreadCount", mock.Anything, conversation.ID.Hex(), "player-1").Return(int64(2), nil)

	c := handlers.Conversation{
		DB:     conversationDB,
		MDB:    messageDB,
		UDB:    userDB,
		Config: &config.Config{BaseURL: "https://api.scoutbase.app"},
	}

	req := authedRequest(t, "GET", "/api/v1/conversations", nil, api.AuthUser{ID: "player-1", Role: models.RolePlayer})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ConversationsHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var views []models.ConversationView
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	assert.Len(t, views, 1)
	assert.Equal(t, "Casey", views[0].OtherUser.FirstName)
	assert.Equal(t, "https://api.scoutbase.app/uploads/casey.png", views[0].OtherUser.ProfileImage)
	assert.Equal(t, int64(2), views[0].UnreadCount)
}

func TestConversation_ConversationsHandlerEmptyList(t *testing.T) {
	conversationDB := &mocks.ConversationDatabase{}

	conversationDB.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	c := handlers.Conversation{DB: conversationDB}

	req := authedRequest(t, "GET", "/api/v1/conversations", nil, api.AuthUser{ID: "coach-1", Role: models.RoleCoach})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.ConversationsHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", rr.Body.String())
}

func TestConversation_DeleteConversationsHandler(t *testing.T) {
	conversationDB := &mocks.ConversationDatabase{}

	conversation := pairConversation("coach-1", "player-1")

	conversationDB.On("FindOne", mock.Anything, mock.Anything).Return(conversation, nil)
	conversationDB.On("SoftDelete", mock.Anything, conversation.ID, "player-1").Return(true, nil)

	c := handlers.Conversation{DB: conversationDB}

	body, _ := json.Marshal(map[string][]string{"conversationIds": {conversation.ID.Hex()}})
	req := authedRequest(t, "DELETE", "/api/v1/conversations", body, api.AuthUser{ID: "player-1", Role: models.RolePlayer})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.DeleteConversationsHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"deleted": 1}`, rr.Body.String())
}

func TestConversation_DeleteConversationsHandlerSkipsInvalidIDs(t *testing.T) {
	conversationDB := &mocks.ConversationDatabase{}

	c := handlers.Conversation{DB: conversationDB}

	body, _ := json.Marshal(map[string][]string{"conversationIds": {"not-an-object-id"}})
	req := authedRequest(t, "DELETE", "/api/v1/conversations", body, api.AuthUser{ID: "player-1", Role: models.RolePlayer})

	rr := httptest.NewRecorder()
	http.HandlerFunc(c.DeleteConversationsHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"deleted": 0}`, rr.Body.String())
	conversationDB.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything)
}
