package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pos-service/internal/auth"
	"pos-service/internal/models"
	"pos-service/internal/repository"
)

type AuthHandler struct {
	repo   repository.AdminRepository
	tokens *auth.TokenManager
}

func NewAuthHandler(repo repository.AdminRepository, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{repo: repo, tokens: tokens}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			"a valid email, a name and a password of at least 8 characters are required", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to register admin", nil)
		return
	}

	admin := models.Admin{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
	}
	if err := h.repo.Create(r.Context(), &admin); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			writeError(w, http.StatusConflict, "duplicate", "an admin with this email already exists", nil)
		case errors.Is(err, repository.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			slog.Error("failed to create admin", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to register admin", nil)
		}
		return
	}

	token, err := h.tokens.Issue(admin.ID, admin.Email)
	if err != nil {
		slog.Error("failed to issue token", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to issue token", nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"admin": admin,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "email and password are required", nil)
		return
	}

	admin, err := h.repo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password", nil)
			return
		}
		slog.Error("failed to load admin", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to log in", nil)
		return
	}

	if !auth.CheckPassword(admin.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password", nil)
		return
	}

	if !admin.IsActive {
		writeError(w, http.StatusForbidden, "forbidden", "account is deactivated", nil)
		return
	}

	token, err := h.tokens.Issue(admin.ID, admin.Email)
	if err != nil {
		slog.Error("failed to issue token", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to issue token", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"admin": admin,
	})
}

// Verify echoes back the admin the middleware resolved from the bearer token.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	admin := auth.AdminFromContext(r.Context())
	if admin == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"admin": admin,
	})
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

type updateUserRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,min=8"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (h *AuthHandler) Users(w http.ResponseWriter, r *http.Request) {
	admins, err := h.repo.List(r.Context())
	if err != nil {
		slog.Error("failed to list admins", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list users", nil)
		return
	}
	if admins == nil {
		admins = []models.Admin{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": admins})
}

func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			"email, password, name and role are required", nil)
		return
	}
	if !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "validation_error",
			"invalid role, must be admin, operator, or security", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create user", nil)
		return
	}

	admin := models.Admin{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         req.Role,
	}
	if err := h.repo.Create(r.Context(), &admin); err != nil {
		writeAdminError(w, err, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": admin})
}

func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid user id", nil)
		return
	}

	var req updateUserRequest
	if ok := decodeJSON(w, r, &req); !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	if req.Role != "" && !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "validation_error",
			"invalid role, must be admin, operator, or security", nil)
		return
	}

	params := repository.UpdateAdminParams{
		ID:    id,
		Email: req.Email,
		Name:  req.Name,
		Role:  req.Role,
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			slog.Error("failed to hash password", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to update user", nil)
			return
		}
		params.PasswordHash = hash
	}

	admin, err := h.repo.Update(r.Context(), params)
	if err != nil {
		writeAdminError(w, err, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": admin})
}

func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid user id", nil)
		return
	}

	if acting := auth.AdminFromContext(r.Context()); acting != nil && acting.ID == id {
		writeError(w, http.StatusBadRequest, "invalid_state", "cannot delete your own account", nil)
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeAdminError(w, err, "failed to delete user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted successfully"})
}

func (h *AuthHandler) ToggleUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid user id", nil)
		return
	}

	admin, err := h.repo.ToggleActive(r.Context(), id)
	if err != nil {
		writeAdminError(w, err, "failed to toggle user status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": admin})
}

func writeAdminError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "user not found", nil)
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, http.StatusConflict, "duplicate", "a user with this email already exists", nil)
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		slog.Error(fallback, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
