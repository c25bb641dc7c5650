package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
)

type registerRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user data")
		return
	}
	if len(req.Username) < 3 || len(req.Password) < 3 || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Invalid user data")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleSurveyor
	}
	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid user data")
		return
	}
	if _, err := h.store.GetUserByUsername(r.Context(), req.Username); err == nil {
		writeError(w, http.StatusConflict, "Username already exists")
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	user, err := h.store.CreateUser(r.Context(), req.Username, hash, req.Name, req.Role)
	if err != nil {
		h.logger.Error("failed to create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	token, err := h.issueToken(user)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}
	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !checkPassword(req.Password, user.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := h.issueToken(user)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (h *Handlers) currentUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	user, err := h.store.GetUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type updateUserRequest struct {
	Name     *string      `json:"name"`
	Username *string      `json:"username"`
	Role     *models.Role `json:"role"`
	Password *string      `json:"password"`
}

func (h *Handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	var req updateUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user data")
		return
	}
	if req.Role != nil && !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid user data")
		return
	}
	upd := store.UserUpdate{Name: req.Name, Username: req.Username, Role: req.Role}
	if req.Password != nil {
		if len(*req.Password) < 3 {
			writeError(w, http.StatusBadRequest, "Invalid user data")
			return
		}
		hash, err := hashPassword(*req.Password)
		if err != nil {
			h.logger.Error("failed to hash password", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		upd.Password = &hash
	}

	user, err := h.store.UpdateUser(r.Context(), id, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("failed to update user", zap.Int("user_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("failed to delete user", zap.Int("user_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error deleting user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}
