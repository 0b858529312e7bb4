package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"groupbuy-be/pkg/errors"
	"groupbuy-be/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

// AdminContextKey is the key for the authenticated admin identity.
const AdminContextKey ContextKey = "admin"

// AdminClaims is the JWT payload for back-office operators.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth validates a Bearer JWT signed with the shared secret and
// requires the admin role. The operator's username lands in the
// request context for audit fields.
func AdminAuth(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeErrorResponse(w, errors.NewAuthenticationError("Authorization header is required"), log)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeErrorResponse(w, errors.NewAuthenticationError("Invalid authorization header format"), log)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" {
				writeErrorResponse(w, errors.NewAuthenticationError("Token is required"), log)
				return
			}

			claims := &AdminClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				log.WithError(err).Warn("admin token validation failed")
				writeErrorResponse(w, errors.NewAuthenticationError("Invalid or expired token"), log)
				return
			}
			if claims.Role != "admin" {
				writeErrorResponse(w, errors.NewAuthenticationError("Admin role required"), log)
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminUser returns the authenticated admin username from the context.
func AdminUser(ctx context.Context) string {
	if v, ok := ctx.Value(AdminContextKey).(string); ok {
		return v
	}
	return ""
}

// writeErrorResponse writes an authentication failure in the standard
// error shape.
func writeErrorResponse(w http.ResponseWriter, appErr *errors.AppError, log *logger.Logger) {
	var resp errors.ErrorResponse
	resp.Error.Type = appErr.Type
	resp.Error.Message = appErr.Message
	resp.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).Error("failed to encode auth error response")
	}
}
