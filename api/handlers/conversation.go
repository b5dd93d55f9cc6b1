package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/scoutbase/recruiting-api/api"
	"github.com/scoutbase/recruiting-api/config"
	"github.com/scoutbase/recruiting-api/databases"
	"github.com/scoutbase/recruiting-api/models"
)

// Conversation exported for testing purposes
type Conversation struct {
	DB     databases.ConversationDatabase
	MDB    databases.MessageDatabase
	UDB    databases.UserDatabase
	PTDB   databases.PushTokenDatabase
	Config *config.Config
}

type startConversationRequest struct {
	PlayerID string `json:"playerId"`
	Text     string `json:"text"`
}

type startConversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
	Message      *models.Message      `json:"message,omitempty"`
}

// StartConversationHandler finds or creates the one conversation between the
// calling coach/scout and a player. Conversations only come into existence
// through a first message, so text is required. Players cannot initiate.
func (c Conversation) StartConversationHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing authenticated user", http.StatusUnauthorized, w, errors.New("no identity in context"))
		return
	}
	if user.Role != models.RoleCoach && user.Role != models.RoleScout {
		config.ErrorStatus("only a coach or scout can start a conversation", http.StatusForbidden, w, errors.New("role "+user.Role+" cannot initiate"))
		return
	}

	var body startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if body.PlayerID == "" {
		config.ErrorStatus("playerId is required", http.StatusBadRequest, w, errors.New("empty playerId"))
		return
	}
	if body.Text == "" {
		config.ErrorStatus("text is required", http.StatusBadRequest, w, errors.New("a conversation starts with a first message"))
		return
	}

	player, err := c.UDB.FindOne(r.Context(), bson.M{"_id": body.PlayerID, "user.role": models.RolePlayer})
	if err != nil {
		config.ErrorStatus("failed to find player", http.StatusNotFound, w, err)
		return
	}

	conversation, err := c.DB.FindOrCreate(r.Context(), user.ID, player.ID, models.Participant{UserID: user.ID, Role: user.Role})
	if err != nil {
		config.ErrorStatus("failed to create conversation", http.StatusInternalServerError, w, err)
		return
	}

	message, err := deliverMessage(r.Context(), c.DB, c.MDB, c.PTDB, conversation, user, models.MessageTypeText, body.Text, nil)
	if err != nil {
		config.ErrorStatus("failed to send message", http.StatusInternalServerError, w, err)
		return
	}
	// mirror what RecordMessageSent wrote so the response is current
	conversation.LastMessage = message.Preview()
	conversation.UpdatedAt = message.CreatedAt
	conversation.HasCoachReplied = true

	resp := startConversationResponse{Conversation: conversation, Message: message}

	b, err := json.Marshal(resp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ConversationsHandler returns the caller's visible conversations, most
// recently updated first, each enriched with the other participant's
// directory entry and the caller's unread count. `?type=request` restricts to
// conversations initiated by the opposite role that the caller's role has not
// replied to yet.
func (c Conversation) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing authenticated user", http.StatusUnauthorized, w, errors.New("no identity in context"))
		return
	}

	filter := bson.M{
		"participants.userId": user.ID,
		"deletedFor":          bson.M{"$ne": user.ID},
	}
	if r.URL.Query().Get("type") == "request" {
		if user.Role == models.RolePlayer {
			filter["initiatedBy.role"] = bson.M{"$in": []string{models.RoleCoach, models.RoleScout}}
			filter["hasPlayerReplied"] = false
		} else {
			filter["initiatedBy.role"] = models.RolePlayer
			filter["hasCoachReplied"] = false
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	dbResp, err := c.DB.Find(r.Context(), filter, opts)
	if err != nil {
		config.ErrorStatus("failed to get conversations", http.StatusInternalServerError, w, err)
		return
	}

	views := make([]models.ConversationView, 0, len(dbResp))
	for _, conversation := range dbResp {
		view := models.ConversationView{Conversation: conversation}
		if other, ok := conversation.OtherParticipant(user.ID); ok {
			view.OtherUser = c.participantInfo(r, other.UserID)
		}
		unread, err := c.MDB.UnreadCount(r.Context(), conversation.ID.Hex(), user.ID)
		if err != nil {
			zap.S().Warnw("failed to count unread messages",
				"conversationId", conversation.ID.Hex(),
				"error", err)
		}
		view.UnreadCount = unread
		views = append(views, view)
	}

	b, err := json.Marshal(views)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type deleteConversationsRequest struct {
	ConversationIDs []string `json:"conversationIds"`
}

// DeleteConversationsHandler soft-deletes a batch of conversations for the
// caller only. Records stay in place for the other participant; each one they
// can still see gets a conversationDeleted event.
func (c Conversation) DeleteConversationsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing authenticated user", http.StatusUnauthorized, w, errors.New("no identity in context"))
		return
	}

	var body deleteConversationsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if len(body.ConversationIDs) == 0 {
		config.ErrorStatus("conversationIds is required", http.StatusBadRequest, w, errors.New("empty conversationIds"))
		return
	}

	deleted := 0
	for _, conversationID := range body.ConversationIDs {
		cID, err := primitive.ObjectIDFromHex(conversationID)
		if err != nil {
			zap.S().Warnw("skipping invalid conversation id", "conversationId", conversationID)
			continue
		}
		conversation, err := c.DB.FindOne(r.Context(), bson.M{"_id": cID})
		if err != nil {
			zap.S().Warnw("skipping unknown conversation", "conversationId", conversationID)
			continue
		}
		ok, err := c.DB.SoftDelete(r.Context(), cID, user.ID)
		if err != nil {
			config.ErrorStatus("failed to delete conversation", http.StatusInternalServerError, w, err)
			return
		}
		if !ok {
			continue
		}
		deleted++
		if other, found := conversation.OtherParticipant(user.ID); found {
			EmitConversationDeleted(other.UserID, conversationID, user.ID)
		}
	}

	b, _ := json.Marshal(map[string]int{"deleted": deleted})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// participantInfo resolves the directory entry shown for the other side of a
// conversation. Lookups that fail leave the entry empty rather than failing
// the whole list.
func (c Conversation) participantInfo(r *http.Request, userID string) models.ParticipantInfo {
	u, err := c.UDB.FindOne(r.Context(), bson.M{"_id": userID})
	if err != nil {
		zap.S().Warnw("failed to load participant", "userId", userID, "error", err)
		return models.ParticipantInfo{ID: userID}
	}
	return models.ParticipantInfo{
		ID:           u.ID,
		FirstName:    u.Details.FirstName,
		LastName:     u.Details.LastName,
		ProfileImage: absoluteImageURL(c.Config, u.Details.ProfileImage),
	}
}

// absoluteImageURL prefixes relative profile image paths with the API base URL
func absoluteImageURL(conf *config.Config, image string) string {
	if image == "" || strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		return image
	}
	if conf == nil || conf.BaseURL == "" {
		return image
	}
	return strings.TrimSuffix(conf.BaseURL, "/") + "/" + strings.TrimPrefix(image, "/")
}
