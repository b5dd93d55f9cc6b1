package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
)

// jwtStrategyKey identifies the signed-token strategy on the authenticator
const jwtStrategyKey = auth.StrategyKey("jwt.cached.strategy")

// tokenTTL is how long an issued token stays valid
const tokenTTL = 7 * 24 * time.Hour

var authenticator auth.Authenticator
var cache store.Cache

// TokenClaims is the identity carried inside a signed bearer token. The same
// token authenticates REST requests and socket handshakes.
type TokenClaims struct {
	UserID string
	Role   string
	Email  string
}

// jwtStrategy verifies HS256 bearer tokens. Verified tokens are cached in the
// go-guardian FIFO store so repeated requests skip signature checks.
type jwtStrategy struct {
	secret []byte
}

func (s jwtStrategy) Authenticate(ctx context.Context, r *http.Request) (auth.Info, error) {
	token, err := bearerToken(r)
	if err != nil {
		return nil, err
	}

	if cached, ok, _ := cache.Load(token, r); ok {
		if info, isInfo := cached.(auth.Info); isInfo {
			return info, nil
		}
	}

	claims, err := ParseToken(s.secret, token)
	if err != nil {
		return nil, err
	}

	info := auth.NewDefaultUser(claims.Email, claims.UserID, []string{claims.Role}, nil)
	_ = cache.Store(token, info, r)
	return info, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("missing bearer token")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("missing bearer token")
	}
	return token, nil
}

// SetupAuth sets up the go-guardian middleware with the signed-token strategy
func SetupAuth(secret string) {
	authenticator = auth.New()
	cache = store.NewFIFO(context.Background(), tokenTTL)
	authenticator.EnableStrategy(jwtStrategyKey, jwtStrategy{secret: []byte(secret)})
}

// Middleware adds bearer token authentication around accessing the routes and
// stashes the caller's identity in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		user, err := authenticator.Authenticate(r)
		if err != nil {
			zap.S().Errorw("unauthorized",
				"url", r.URL)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "unauthorized"}`))
			return
		}

		role := ""
		if groups := user.Groups(); len(groups) > 0 {
			role = groups[0]
		}
		ctx := WithAuthUser(r.Context(), AuthUser{ID: user.ID(), Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseToken verifies the signature and expiry of a bearer token and unpacks
// the identity claims.
func ParseToken(secret []byte, tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || role == "" {
		return nil, fmt.Errorf("token missing identity claims")
	}

	return &TokenClaims{UserID: sub, Role: role, Email: email}, nil
}

// IssueToken signs a bearer token for the given identity
func IssueToken(secret []byte, userID, role, email string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"role":  role,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
