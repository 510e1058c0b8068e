package handler

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/freeeve/warcore/internal/auth"
	"github.com/freeeve/warcore/internal/model"
	"github.com/freeeve/warcore/internal/repository"
)

const maxDisplayName = 40

// publicUser is what other players see of a user.
type publicUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// UserHandler handles user profile endpoints.
type UserHandler struct {
	userRepo repository.UserRepository
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userRepo repository.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// load writes the error response itself and returns nil when the user
// cannot be served.
func (h *UserHandler) load(w http.ResponseWriter, r *http.Request, id string) *model.User {
	user, err := h.userRepo.FindByID(r.Context(), id)
	switch {
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case user == nil:
		writeError(w, http.StatusNotFound, "user not found")
	}
	return user
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	if user := h.load(w, r, auth.UserIDFromContext(r.Context())); user != nil {
		writeJSON(w, http.StatusOK, user)
	}
}

// UpdateMe handles PATCH /api/v1/users/me. Only the display name can change.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	switch {
	case name == "":
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	case utf8.RuneCountInString(name) > maxDisplayName:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("display_name is longer than %d characters", maxDisplayName))
		return
	}
	if err := h.userRepo.UpdateDisplayName(r.Context(), userID, name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if user := h.load(w, r, userID); user != nil {
		writeJSON(w, http.StatusOK, user)
	}
}

// GetUser handles GET /api/v1/users/{id}. Login provider details stay private.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	if user := h.load(w, r, r.PathValue("id")); user != nil {
		writeJSON(w, http.StatusOK, publicUser{ID: user.ID, DisplayName: user.DisplayName, AvatarURL: user.AvatarURL})
	}
}
