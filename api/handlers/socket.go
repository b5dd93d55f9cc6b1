package handlers

import (
	"context"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/scoutbase/recruiting-api/api"
	"github.com/scoutbase/recruiting-api/config"
	"github.com/scoutbase/recruiting-api/databases"
	"github.com/scoutbase/recruiting-api/models"
	"github.com/scoutbase/recruiting-api/presence"
)

// Room layout: every authenticated connection sits in its personal user room
// and the shared presence room. Chat rooms carry only ephemeral typing
// signals; message delivery always goes through personal rooms.
const (
	presenceRoom   = "presence"
	userRoomPrefix = "user_"
	chatRoomPrefix = "chat_"
)

// Gateway owns the Socket.IO server, the presence registry and the store
// handles the event handlers validate against.
type Gateway struct {
	server        *socketio.Server
	registry      *presence.Registry
	conversations databases.ConversationDatabase
	messages      databases.MessageDatabase
	pushTokens    databases.PushTokenDatabase
	secret        []byte
}

var gateway *Gateway

// InitializeGateway initializes the Socket.IO server and its event handlers
func InitializeGateway(conf *config.Config, cdb databases.ConversationDatabase, mdb databases.MessageDatabase, ptdb databases.PushTokenDatabase) *socketio.Server {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			polling.Default,
			websocket.Default,
		},
	})

	gateway = &Gateway{
		server:        server,
		registry:      presence.NewRegistry(),
		conversations: cdb,
		messages:      mdb,
		pushTokens:    ptdb,
		secret:        []byte(conf.JWTSecret),
	}
	gateway.registerHandlers()

	go func() {
		if err := server.Serve(); err != nil {
			zap.S().Fatalf("socket server error: %v", err)
		}
	}()

	return server
}

// GetSocketIOServer returns the Socket.IO server instance
func GetSocketIOServer() *socketio.Server {
	if gateway == nil {
		return nil
	}
	return gateway.server
}

func (g *Gateway) registerHandlers() {
	g.server.OnConnect("/", g.onConnect)
	g.server.OnDisconnect("/", g.onDisconnect)

	g.server.OnError("/", func(s socketio.Conn, e error) {
		zap.S().Errorw("socket error", "error", e)
	})

	g.server.OnEvent("/", "sendMessage", g.onSendMessage)
	g.server.OnEvent("/", "joinChat", g.onJoinChat)
	g.server.OnEvent("/", "joinConversation", g.onJoinChat)
	g.server.OnEvent("/", "leaveChat", g.onLeaveChat)
	g.server.OnEvent("/", "typing", g.onTyping)
	g.server.OnEvent("/", "stopTyping", g.onStopTyping)
	g.server.OnEvent("/", "markAsRead", g.onMarkAsRead)
}

// onConnect authenticates the handshake and announces presence. Returning an
// error rejects the connection.
func (g *Gateway) onConnect(s socketio.Conn) error {
	u := s.URL()
	token := u.Query().Get("token")
	if token == "" {
		header := s.RemoteHeader().Get("Authorization")
		if len(header) > 7 && header[:7] == "Bearer " {
			token = header[7:]
		}
	}

	claims, err := api.ParseToken(g.secret, token)
	if err != nil {
		zap.S().Warnw("socket handshake rejected", "error", err)
		return err
	}

	user := api.AuthUser{ID: claims.UserID, Role: claims.Role}
	s.SetContext(user)
	s.Join(userRoomPrefix + user.ID)
	s.Join(presenceRoom)

	if g.registry.Connect(user.ID, s.ID()) {
		g.server.BroadcastToRoom("/", presenceRoom, "userOnline", map[string]interface{}{
			"userId": user.ID,
		})
	}
	s.Emit("onlineUsers", g.registry.Online())

	zap.S().Debugw("socket connected", "userId", user.ID, "connId", s.ID())
	return nil
}

func (g *Gateway) onDisconnect(s socketio.Conn, reason string) {
	user, ok := s.Context().(api.AuthUser)
	if !ok {
		return
	}
	// only the last connection of a user emits userOffline
	if g.registry.Disconnect(user.ID, s.ID()) {
		g.server.BroadcastToRoom("/", presenceRoom, "userOffline", map[string]interface{}{
			"userId": user.ID,
		})
	}
	zap.S().Debugw("socket disconnected", "userId", user.ID, "reason", reason)
}

// onSendMessage handles text sends over the socket. Attachment sends go
// through the REST surface because of the multipart upload.
func (g *Gateway) onSendMessage(s socketio.Conn, msg map[string]interface{}) {
	user, ok := s.Context().(api.AuthUser)
	if !ok {
		return
	}
	conversationID, _ := msg["conversationId"].(string)
	text, _ := msg["text"].(string)
	if conversationID == "" || text == "" {
		s.Emit("error", map[string]interface{}{"message": "conversationId and text are required"})
		return
	}

	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()

	conversation, err := g.authorizedConversation(ctx, conversationID, user.ID)
	if err != nil {
		s.Emit("error", map[string]interface{}{"message": err.Error()})
		return
	}

	message, err := deliverMessage(ctx, g.conversations, g.messages, g.pushTokens, conversation, user, models.MessageTypeText, text, nil)
	if err != nil {
		s.Emit("error", map[string]interface{}{"message": err.Error()})
		return
	}
	s.Emit("messageSent", message)
}

func (g *Gateway) onJoinChat(s socketio.Conn, msg map[string]interface{}) {
	user, ok := s.Context().(api.AuthUser)
	if !ok {
		return
	}
	conversationID, _ := msg["conversationId"].(string)
	if conversationID == "" {
		return
	}

	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()

	if _, err := g.authorizedConversation(ctx, conversationID, user.ID); err != nil {
		s.Emit("error", map[string]interface{}{"message": err.Error()})
		return
	}
	s.Join(chatRoomPrefix + conversationID)
}

func (g *Gateway) onLeaveChat(s socketio.Conn, msg map[string]interface{}) {
	if conversationID, ok := msg["conversationId"].(string); ok && conversationID != "" {
		s.Leave(chatRoomPrefix + conversationID)
	}
}

func (g *Gateway) onTyping(s socketio.Conn, msg map[string]interface{}) {
	g.relayTyping(s, msg, "typing")
}

func (g *Gateway) onStopTyping(s socketio.Conn, msg map[string]interface{}) {
	g.relayTyping(s, msg, "stopTyping")
}

// relayTyping forwards typing signals to the chat room. No persistence and no
// authorization round-trip: joining the room already required membership.
func (g *Gateway) relayTyping(s socketio.Conn, msg map[string]interface{}, event string) {
	user, ok := s.Context().(api.AuthUser)
	if !ok {
		return
	}
	conversationID, _ := msg["conversationId"].(string)
	if conversationID == "" {
		return
	}
	g.server.BroadcastToRoom("/", chatRoomPrefix+conversationID, event, map[string]interface{}{
		"conversationId": conversationID,
		"userId":         user.ID,
	})
}

func (g *Gateway) onMarkAsRead(s socketio.Conn, msg map[string]interface{}) {
	user, ok := s.Context().(api.AuthUser)
	if !ok {
		return
	}
	conversationID, _ := msg["conversationId"].(string)
	if conversationID == "" {
		return
	}

	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()

	conversation, err := g.authorizedConversation(ctx, conversationID, user.ID)
	if err != nil {
		s.Emit("error", map[string]interface{}{"message": err.Error()})
		return
	}

	read, err := g.messages.MarkConversationRead(ctx, conversationID, user.ID)
	if err != nil {
		zap.S().Errorw("failed to mark conversation read", "conversationId", conversationID, "error", err)
		s.Emit("error", map[string]interface{}{"message": "failed to mark conversation as read"})
		return
	}
	if len(read) == 0 {
		return
	}

	messageIDs := make([]string, 0, len(read))
	for _, m := range read {
		messageIDs = append(messageIDs, m.ID.Hex())
	}
	if other, ok := conversation.OtherParticipant(user.ID); ok {
		EmitMessageRead(other.UserID, conversationID, messageIDs, user.ID)
	}
	// reader's other devices drop their badge too
	EmitUnreadUpdate(user.ID, conversationID, 0)
}

// authorizedConversation loads a conversation and enforces membership. Unknown
// IDs surface as the membership error so callers cannot probe for existence.
func (g *Gateway) authorizedConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	id, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, databases.ErrNotParticipant
	}
	conversation, err := g.conversations.FindOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, databases.ErrNotParticipant
	}
	if !conversation.IsParticipant(userID) {
		return nil, databases.ErrNotParticipant
	}
	return conversation, nil
}

// UserOnline reports whether the user has a live socket connection. Without a
// running gateway it reports true so callers skip offline-only side effects.
func UserOnline(userID string) bool {
	if gateway == nil {
		return true
	}
	return gateway.registry.IsOnline(userID)
}

// The Emit helpers below are shared with the REST handlers so fan-out is
// identical whichever surface performed the write. All are no-ops without a
// running gateway.

// EmitNewMessage emits a newMessage event to the receiver's personal room
func EmitNewMessage(receiverID string, message *models.Message) {
	if gateway == nil {
		return
	}
	gateway.server.BroadcastToRoom("/", userRoomPrefix+receiverID, "newMessage", message)
}

// EmitUnreadUpdate emits an unreadUpdate event to the user's personal room
func EmitUnreadUpdate(userID, conversationID string, unreadCount int64) {
	if gateway == nil {
		return
	}
	gateway.server.BroadcastToRoom("/", userRoomPrefix+userID, "unreadUpdate", map[string]interface{}{
		"conversationId": conversationID,
		"unreadCount":    unreadCount,
	})
}

// EmitMessageRead notifies the original sender that their messages were read
func EmitMessageRead(senderID, conversationID string, messageIDs []string, readerID string) {
	if gateway == nil {
		return
	}
	gateway.server.BroadcastToRoom("/", userRoomPrefix+senderID, "messageRead", map[string]interface{}{
		"conversationId": conversationID,
		"messageIds":     messageIDs,
		"readBy":         readerID,
	})
}

// EmitConversationDeleted notifies a participant that the other side removed
// the conversation from their list
func EmitConversationDeleted(userID, conversationID, deletedBy string) {
	if gateway == nil {
		return
	}
	gateway.server.BroadcastToRoom("/", userRoomPrefix+userID, "conversationDeleted", map[string]interface{}{
		"conversationId": conversationID,
		"deletedBy":      deletedBy,
	})
}

// EmitMessageDeleted notifies a participant that a message was removed
func EmitMessageDeleted(userID, conversationID, messageID string) {
	if gateway == nil {
		return
	}
	gateway.server.BroadcastToRoom("/", userRoomPrefix+userID, "messageDeleted", map[string]interface{}{
		"conversationId": conversationID,
		"messageId":      messageID,
	})
}
