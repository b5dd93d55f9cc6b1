package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"

	"github.com/scoutbase/recruiting-api/api"
	"github.com/scoutbase/recruiting-api/config"
	"github.com/scoutbase/recruiting-api/databases"
	"github.com/scoutbase/recruiting-api/models"
)

// User exported for testing purposes
type User struct {
	DB     databases.UserDatabase
	PTDB   databases.PushTokenDatabase
	Config *config.Config
}

type authTokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthTokenHandler exchanges email/password credentials for a signed bearer
// token used on both the REST and socket surfaces
func (u User) AuthTokenHandler(w http.ResponseWriter, r *http.Request) {
	var body authTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if body.Email == "" || body.Password == "" {
		config.ErrorStatus("email and password are required", http.StatusBadRequest, w, errors.New("missing credentials"))
		return
	}

	dbResp, err := u.DB.FindOne(r.Context(), bson.M{"user.email": body.Email})
	if err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(dbResp.Details.Password), []byte(body.Password)); err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
		return
	}

	token, err := api.IssueToken([]byte(u.Config.JWTSecret), dbResp.ID, dbResp.Details.Role, dbResp.Details.Email)
	if err != nil {
		config.ErrorStatus("failed to issue token", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(map[string]interface{}{
		"token": token,
		"user": models.ParticipantInfo{
			ID:           dbResp.ID,
			FirstName:    dbResp.Details.FirstName,
			LastName:     dbResp.Details.LastName,
			ProfileImage: absoluteImageURL(u.Config, dbResp.Details.ProfileImage),
		},
	})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UserHandler returns a user by ID with the password hash blanked
func (u User) UserHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	dbResp, err := u.DB.FindOne(r.Context(), bson.M{"_id": userID})
	if err != nil {
		config.ErrorStatus("failed to get user by ID", http.StatusNotFound, w, err)
		return
	}
	dbResp.Details.Password = ""
	dbResp.Details.ProfileImage = absoluteImageURL(u.Config, dbResp.Details.ProfileImage)

	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// PushTokenHandler registers an Expo push token for the caller's device.
// Re-registration on app start is idempotent.
func (u User) PushTokenHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := api.UserFromContext(r.Context())
	if !ok {
		config.ErrorStatus("missing authenticated user", http.StatusUnauthorized, w, errors.New("no identity in context"))
		return
	}

	var body pushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if body.Token == "" {
		config.ErrorStatus("token is required", http.StatusBadRequest, w, errors.New("empty token"))
		return
	}

	if err := u.PTDB.Upsert(r.Context(), user.ID, body.Token, body.Platform); err != nil {
		config.ErrorStatus("failed to register push token", http.StatusInternalServerError, w, err)
		return
	}

	b, _ := json.Marshal(map[string]bool{"registered": true})
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}
