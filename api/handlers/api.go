package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/scoutbase/recruiting-api/api"
	"github.com/scoutbase/recruiting-api/api/scheduler"
	"github.com/scoutbase/recruiting-api/config"
	"github.com/scoutbase/recruiting-api/databases"
	"github.com/scoutbase/recruiting-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router    *mux.Router
	Config    config.Config
	dbHelper  databases.DatabaseHelper
	scheduler *scheduler.Scheduler
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	api.SetupAuth(a.Config.JWTSecret)

	r := mux.NewRouter()

	conversationDB := databases.NewConversationDatabase(a.dbHelper)
	messageDB := databases.NewMessageDatabase(a.dbHelper)
	userDB := databases.NewUserDatabase(a.dbHelper)
	pushTokenDB := databases.NewPushTokenDatabase(a.dbHelper)

	up, err := NewUploader()
	if err != nil {
		zap.S().Warnw("cloudinary uploader not configured, attachment sends disabled", "error", err)
		up = nil
	}

	c := Conversation{DB: conversationDB, MDB: messageDB, UDB: userDB, PTDB: pushTokenDB, Config: &a.Config}
	m := Message{DB: messageDB, CDB: conversationDB, PTDB: pushTokenDB, Uploader: up, Config: &a.Config}
	u := User{DB: userDB, PTDB: pushTokenDB, Config: &a.Config}
	cloudinaryHandler := CloudinaryHandler{}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/auth/token", http.HandlerFunc(u.AuthTokenHandler)).Methods("POST")

	apiCreate.Handle("/conversations/start", api.Middleware(http.HandlerFunc(c.StartConversationHandler))).Methods("POST")
	apiCreate.Handle("/conversations", api.Middleware(http.HandlerFunc(c.ConversationsHandler))).Methods("GET")
	apiCreate.Handle("/conversations", api.Middleware(http.HandlerFunc(c.DeleteConversationsHandler))).Methods("DELETE")

	apiCreate.Handle("/messages/send", api.Middleware(http.HandlerFunc(m.SendMessageHandler))).Methods("POST")
	apiCreate.Handle("/messages/read", api.Middleware(http.HandlerFunc(m.MarkAsReadHandler))).Methods("PATCH")
	apiCreate.Handle("/messages/{conversation_id}", api.Middleware(http.HandlerFunc(m.MessagesByConversationHandler))).Methods("GET")
	apiCreate.Handle("/message/{message_id}", api.Middleware(http.HandlerFunc(m.DeleteMessageHandler))).Methods("DELETE")

	apiCreate.Handle("/user/push-token", api.Middleware(http.HandlerFunc(u.PushTokenHandler))).Methods("PUT")
	apiCreate.Handle("/user/{user_id}", api.Middleware(http.HandlerFunc(u.UserHandler))).Methods("GET")

	apiCreate.Handle("/generate-signature", api.Middleware(http.HandlerFunc(cloudinaryHandler.GenerateSignature))).Methods("POST")
	apiCreate.Handle("/metrics", api.Middleware(http.HandlerFunc(metricsHandler))).Methods("GET")

	if server := GetSocketIOServer(); server != nil {
		r.Handle("/socket.io/", server)
	}

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("recruiting-api has connected to the database")

	conversationDB := databases.NewConversationDatabase(a.dbHelper)
	messageDB := databases.NewMessageDatabase(a.dbHelper)
	userDB := databases.NewUserDatabase(a.dbHelper)
	pushTokenDB := databases.NewPushTokenDatabase(a.dbHelper)

	ctx, cancel := context.WithTimeout(context.Background(), api.QueryTimeout)
	defer cancel()
	if err := conversationDB.EnsureIndexes(ctx); err != nil {
		zap.S().Warnw("failed to ensure conversation indexes", "error", err)
	}
	if err := messageDB.EnsureIndexes(ctx); err != nil {
		zap.S().Warnw("failed to ensure message indexes", "error", err)
	}

	InitializeGateway(&a.Config, conversationDB, messageDB, pushTokenDB)

	a.scheduler = scheduler.NewScheduler(conversationDB, messageDB, userDB)
	a.scheduler.Start()

	// initialize api router
	a.initializeRoutes()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

// Shutdown stops the background scheduler and the socket server
func (a *App) Shutdown() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if server := GetSocketIOServer(); server != nil {
		_ = server.Close()
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	b, err := json.Marshal(api.GetMetrics().Summary())
	if err != nil {
		config.ErrorStatus("failed to marshal metrics", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
