package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := IssueToken(secret, "coach-1", "coach", "casey@example.com")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ParseToken(secret, token)
	assert.NoError(t, err)
	assert.Equal(t, "coach-1", claims.UserID)
	assert.Equal(t, "coach", claims.Role)
	assert.Equal(t, "casey@example.com", claims.Email)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("test-secret"), "coach-1", "coach", "casey@example.com")
	assert.NoError(t, err)

	_, err = ParseToken([]byte("other-secret"), token)
	assert.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := ParseToken([]byte("test-secret"), "not.a.token")
	assert.Error(t, err)
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	SetupAuth("test-secret")

	token, err := IssueToken([]byte("test-secret"), "player-1", "player", "pat@example.com")
	assert.NoError(t, err)

	var got AuthUser
	var found bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	Middleware(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, found)
	assert.Equal(t, AuthUser{ID: "player-1", Role: "player"}, got)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	SetupAuth("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	rr := httptest.NewRecorder()

	Middleware(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareRejectsForgedToken(t *testing.T) {
	SetupAuth("test-secret")

	forged, err := IssueToken([]byte("attacker-secret"), "coach-1", "coach", "x@example.com")
	assert.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	req := httptest.NewRequest("GET", "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rr := httptest.NewRecorder()

	Middleware(next).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/messages/:id", normalizePath("/api/v1/messages/5fc51f58c72ff10004dca382"))
	assert.Equal(t, "/api/v1/conversations", normalizePath("/api/v1/conversations"))
}
