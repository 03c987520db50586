package handler

import (
	"net/http"

	"github.com/Rrens/chatvault/internal/api/middleware"
	"github.com/Rrens/chatvault/internal/api/response"
	"github.com/Rrens/chatvault/internal/domain"
	"github.com/Rrens/chatvault/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// SignIn exchanges an identity token for a session token
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var input domain.SignInRequest
	if !decodeAndValidate(w, r, &input) {
		return
	}

	result, err := h.authService.SignIn(r.Context(), input)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, result)
}

// SignOut flushes pending backups and clears the profile's local state
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.GetSubject(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	if err := h.authService.SignOut(r.Context(), subject); err != nil {
		response.FromError(w, err)
		return
	}

	response.OK(w, map[string]string{
		"message": "signed out",
	})
}

// UpdateAccessToken replaces the storage bearer token
func (h *AuthHandler) UpdateAccessToken(w http.ResponseWriter, r *http.Request) {
	subject, ok := middleware.GetSubject(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var input domain.AccessTokenUpdate
	if !decodeAndValidate(w, r, &input) {
		return
	}

	if err := h.authService.UpdateAccessToken(r.Context(), subject, input.AccessToken); err != nil {
		response.FromError(w, err)
		return
	}

	response.NoContent(w)
}

// Me returns the signed-in profile
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	profile, err := sess.Profile(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	if profile == nil {
		response.Unauthorized(w, "signed out")
		return
	}

	response.OK(w, profile)
}
