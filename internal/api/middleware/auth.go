package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Rrens/chatvault/internal/api/response"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/Rrens/chatvault/internal/security"
	"github.com/Rrens/chatvault/internal/service"
)

type contextKey string

const (
	SubjectKey contextKey = "subject"
	EmailKey   contextKey = "email"
	SessionKey contextKey = "session"
)

// AuthMiddleware handles session token authentication
type AuthMiddleware struct {
	jwtManager *security.JWTManager
	sessions   *service.SessionManager
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *security.JWTManager, sessions *service.SessionManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager, sessions: sessions}
}

// Authenticate validates the session token and loads the profile's session.
// A token whose profile has signed out is rejected.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Unauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			response.Unauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.jwtManager.ValidateSessionToken(parts[1])
		if err != nil {
			response.Unauthorized(w, "invalid or expired token: "+err.Error())
			return
		}

		sess, err := m.sessions.Get(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, domain.ErrNoSession) {
				response.Unauthorized(w, "signed out")
				return
			}
			response.FromError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), SubjectKey, claims.Subject)
		ctx = context.WithValue(ctx, EmailKey, claims.Email)
		ctx = context.WithValue(ctx, SessionKey, sess)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSubject gets the profile subject from context
func GetSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectKey).(string)
	return subject, ok && subject != ""
}

// GetEmail gets the profile email from context
func GetEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(EmailKey).(string)
	return email, ok
}

// GetSession gets the live session from context
func GetSession(ctx context.Context) (*service.Session, bool) {
	sess, ok := ctx.Value(SessionKey).(*service.Session)
	return sess, ok && sess != nil
}
