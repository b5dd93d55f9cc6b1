package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/scoutbase/recruiting-api/api"
	"github.com/scoutbase/recruiting-api/config"
	"github.com/scoutbase/recruiting-api/databases"
	"github.com/scoutbase/recruiting-api/models"
)

// maxUploadSize caps chat attachments at 10MB
const maxUploadSize = 10 << 20

// Message exported for testing purposes
type Message struct {
	DB       databases.MessageDatabase
	CDB      databases.ConversationDatabase
	PTDB     databases.PushTokenDatabase
	Uploader *Uploader
	Config   *config.Config
}

// MessagesByConversationHandler returns one page of a conversation's messages,
// oldest first, for participants only
func (m Message) MessagesByConversationHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing authenticated user", http.StatusUnauthorized, w, errors.New("no identity in context"))
		return
	}
	conversationID := mux.Vars(r)["conversation_id"]

	conversation, err := m.participantConversation(r.Context(), conversationID, user.ID)
	if err != nil {
		config.ErrorStatus("failed to get conversation", http.StatusForbidden, w, err)
		return
	}

	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || Limit <= 0 {
		Limit = 50
	}
	Page := getPage(0, r)

	dbResp, err := m.DB.Page(r.Context(), conversation.ID.Hex(), Page, Limit)
	if err != nil {
		config.ErrorStatus("failed to get messages", http.StatusInternalServerError, w, err)
		return
	}
	if len(dbResp) == 0 {
		dbResp = []models.Message{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// SendMessageHandler sends a message into an existing conversation. The body
// is multipart so an attachment can ride along with the text.
func (m Message) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing authenticated user", http.StatusUnauthorized, w, errors.New("no identity in context"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		config.ErrorStatus("failed to parse multipart form", http.StatusBadRequest, w, err)
		return
	}
	conversationID := r.FormValue("conversationId")
	text := r.FormValue("text")

	conversation, err := m.participantConversation(r.Context(), conversationID, user.ID)
	if err != nil {
		config.ErrorStatus("failed to get conversation", http.StatusForbidden, w, err)
		return
	}

	messageType := models.MessageTypeText
	var attachment *models.MessageFile
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		if m.Uploader == nil {
			config.ErrorStatus("file uploads are not configured", http.StatusInternalServerError, w, errors.New("uploader not initialized"))
			return
		}
		attachment, err = m.Uploader.Upload(r.Context(), file, header)
		if err != nil {
			config.ErrorStatus("failed to upload attachment", http.StatusInternalServerError, w, err)
			return
		}
		messageType = models.MessageTypeFile
		if strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
			messageType = models.MessageTypeImage
		}
	}

	if text == "" && attachment == nil {
		config.ErrorStatus("message text or file is required", http.StatusBadRequest, w, errors.New("empty message"))
		return
	}

	message, err := deliverMessage(r.Context(), m.CDB, m.DB, m.PTDB, conversation, user, messageType, text, attachment)
	if err != nil {
		if errors.Is(err, databases.ErrNotParticipant) || errors.Is(err, databases.ErrConversationLocked) {
			config.ErrorStatus("message rejected", http.StatusForbidden, w, err)
			return
		}
		config.ErrorStatus("failed to send message", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(message)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// MarkAsReadHandler flips every unread message addressed to the caller in the
// given conversation and notifies the original sender
func (m Message) MarkAsReadHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing authenticated user", http.StatusUnauthorized, w, errors.New("no identity in context"))
		return
	}

	var body struct {
		ConversationID string `json:"conversationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}

	conversation, err := m.participantConversation(r.Context(), body.ConversationID, user.ID)
	if err != nil {
		config.ErrorStatus("failed to get conversation", http.StatusForbidden, w, err)
		return
	}

	read, err := m.DB.MarkConversationRead(r.Context(), conversation.ID.Hex(), user.ID)
	if err != nil {
		config.ErrorStatus("failed to mark conversation as read", http.StatusInternalServerError, w, err)
		return
	}

	if len(read) > 0 {
		messageIDs := make([]string, 0, len(read))
		for _, msg := range read {
			messageIDs = append(messageIDs, msg.ID.Hex())
		}
		if other, ok := conversation.OtherParticipant(user.ID); ok {
			EmitMessageRead(other.UserID, conversation.ID.Hex(), messageIDs, user.ID)
		}
		EmitUnreadUpdate(user.ID, conversation.ID.Hex(), 0)
	}

	b, _ := json.Marshal(map[string]int{"read": len(read)})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DeleteMessageHandler removes a message. Only the original sender may delete,
// and any attached file is destroyed best-effort.
func (m Message) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing authenticated user", http.StatusUnauthorized, w, errors.New("no identity in context"))
		return
	}
	messageID := mux.Vars(r)["message_id"]

	mID, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return
	}

	message, err := m.DB.FindOne(r.Context(), bson.M{"_id": mID})
	if err != nil {
		config.ErrorStatus("failed to get message by ID", http.StatusNotFound, w, err)
		return
	}
	if message.SenderID != user.ID {
		config.ErrorStatus("cannot delete message", http.StatusForbidden, w, databases.ErrNotSender)
		return
	}

	// an orphan file beats blocking the delete
	if message.File != nil && m.Uploader != nil {
		if err := m.Uploader.Destroy(r.Context(), message.File.URL); err != nil {
			zap.S().Warnw("failed to delete attachment from storage",
				"messageId", messageID,
				"error", err)
		}
	}

	if err := m.DB.DeleteOne(r.Context(), bson.M{"_id": mID}); err != nil {
		config.ErrorStatus("failed to delete message", http.StatusInternalServerError, w, err)
		return
	}

	EmitMessageDeleted(message.ReceiverID, message.ConversationID, messageID)

	b, _ := json.Marshal(map[string]bool{"deleted": true})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// participantConversation loads a conversation and enforces that the caller
// belongs to it. Unknown IDs come back as the membership error so the handler
// responds 403 either way and does not leak existence.
func (m Message) participantConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	cID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, databases.ErrNotParticipant
	}
	conversation, err := m.CDB.FindOne(ctx, bson.M{"_id": cID})
	if err != nil {
		return nil, databases.ErrNotParticipant
	}
	if !conversation.IsParticipant(userID) {
		return nil, databases.ErrNotParticipant
	}
	return conversation, nil
}

// deliverMessage persists a message into the conversation, refreshes the
// denormalized snapshot and fans out events to the receiver. Used by both the
// REST and socket surfaces so the two stay in lockstep.
func deliverMessage(ctx context.Context, cdb databases.ConversationDatabase, mdb databases.MessageDatabase, ptdb databases.PushTokenDatabase, conversation *models.Conversation, sender api.AuthUser, messageType, text string, file *models.MessageFile) (*models.Message, error) {
	if !conversation.IsParticipant(sender.ID) {
		return nil, databases.ErrNotParticipant
	}
	if sender.Role == models.RolePlayer && !conversation.IsUnlocked {
		return nil, databases.ErrConversationLocked
	}
	other, ok := conversation.OtherParticipant(sender.ID)
	if !ok {
		return nil, databases.ErrNotParticipant
	}

	message := models.Message{
		ID:             primitive.NewObjectID(),
		ConversationID: conversation.ID.Hex(),
		SenderID:       sender.ID,
		SenderRole:     sender.Role,
		ReceiverID:     other.UserID,
		MessageType:    messageType,
		Text:           text,
		File:           file,
		CreatedAt:      primitive.NewDateTimeFromTime(time.Now()),
	}

	if _, err := mdb.InsertOne(ctx, message); err != nil {
		return nil, err
	}
	if err := cdb.RecordMessageSent(ctx, conversation.ID, &message); err != nil {
		// message is persisted; the stale preview heals on the next send
		zap.S().Errorw("failed to update conversation snapshot",
			"conversationId", message.ConversationID,
			"error", err)
	}

	EmitNewMessage(other.UserID, &message)
	if unread, err := mdb.UnreadCount(ctx, message.ConversationID, other.UserID); err == nil {
		EmitUnreadUpdate(other.UserID, message.ConversationID, unread)
	}
	notifyOfflineReceiver(ctx, ptdb, other.UserID, &message)

	return &message, nil
}

// notifyOfflineReceiver pushes a notification to the receiver's devices when
// no live socket connection could deliver the newMessage event
func notifyOfflineReceiver(ctx context.Context, ptdb databases.PushTokenDatabase, receiverID string, message *models.Message) {
	if ptdb == nil || UserOnline(receiverID) {
		return
	}

	registered, err := ptdb.Find(ctx, bson.M{"userId": receiverID})
	if err != nil {
		zap.S().Warnw("failed to load push tokens", "userId", receiverID, "error", err)
		return
	}
	if len(registered) == 0 {
		return
	}

	tokens := make([]string, 0, len(registered))
	for _, t := range registered {
		tokens = append(tokens, t.Token)
	}

	body := message.Text
	if message.MessageType != models.MessageTypeText {
		body = "Sent you an attachment"
	}
	go func() {
		_ = SendExpoPushNotifications(tokens, "New message", body, map[string]interface{}{
			"conversationId": message.ConversationID,
		})
	}()
}
