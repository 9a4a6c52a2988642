package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/25x8/carrental/internal/carrental/models"
)

type contextKey string

const (
	// ActorKey is the key for the authenticated actor in the request context
	ActorKey contextKey = "actor"

	jwtExpirationTime = 24 * time.Hour
	authCookieName    = "auth_token"
	bearerSchema      = "Bearer "
)

// UserStore is the part of the repository the middleware needs.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
}

// JWTConfig contains configuration for JWT authentication
type JWTConfig struct {
	SecretKey string
	Users     UserStore
	Log       logrus.FieldLogger
}

// JWTClaims are the identity claims of the external token issuer
type JWTClaims struct {
	UserID int64       `json:"user_id"`
	Name   string      `json:"name,omitempty"`
	Email  string      `json:"email,omitempty"`
	Role   models.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for user. Production tokens come from the
// identity provider; this is for tests and local tooling.
func GenerateToken(user models.User, secretKey string) (string, error) {
	claims := JWTClaims{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(jwtExpirationTime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

func parseToken(tokenString, secretKey string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token has no user_id")
	}
	return claims, nil
}

// AuthMiddleware verifies the bearer token, mirrors the caller into the user
// directory and stores the actor in the request context.
func AuthMiddleware(cfg *JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractToken(r)
			if tokenString == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing token")
				return
			}

			claims, err := parseToken(tokenString, cfg.SecretKey)
			if err != nil {
				cfg.Log.WithError(err).Debug("token rejected")
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
				return
			}

			role := models.RoleUser
			if claims.Role == models.RoleAdmin {
				role = models.RoleAdmin
			}

			ctx := r.Context()
			_, err = cfg.Users.UpsertUser(ctx, &models.User{
				ID:    claims.UserID,
				Name:  claims.Name,
				Email: claims.Email,
				Role:  role,
			})
			if err != nil {
				cfg.Log.WithError(err).WithField("user_id", claims.UserID).Error("user upsert failed")
				writeError(w, http.StatusInternalServerError, "internal", "internal error")
				return
			}

			ctx = context.WithValue(ctx, ActorKey, models.Actor{UserID: claims.UserID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers without the admin role. It must run after
// AuthMiddleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing token")
			return
		}
		if !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, "authorization", "admin capability required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken extracts JWT token from Authorization header or cookie
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, bearerSchema) {
		return strings.TrimPrefix(authHeader, bearerSchema)
	}

	cookie, err := r.Cookie(authCookieName)
	if err == nil {
		return cookie.Value
	}

	return ""
}

// ActorFromContext returns the authenticated caller
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(models.Actor)
	return actor, ok
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"kind": kind, "message": message},
	})
}
