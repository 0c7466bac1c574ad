package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/models"
)

// CreateUserRequest is the request body for POST /admin/api/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// UserStatusRequest is the request body for setting a user's enabled flag.
type UserStatusRequest struct {
	Enabled bool `json:"enabled"`
}

// ResetPasswordRequest is the request body for resetting a user's password.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// UserRoleRequest is the request body for assigning a user's role.
type UserRoleRequest struct {
	Role string `json:"role"`
}

// CreateRoleRequest is the request body for POST /admin/api/roles.
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// RolePermissionsRequest is the request body for replacing a role's
// permission set.
type RolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// ListUsers handles GET /admin/api/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list users")
		return
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userToResponse(u))
	}
	WriteJSONOK(w, out)
}

// CreateUser handles POST /admin/api/users.
// New users default to the member role when none is given.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Username == "" {
		BadRequest(w, "username is required")
		return
	}
	if err := models.ValidatePassword(req.Password); err != nil {
		BadRequest(w, err.Error())
		return
	}

	roleName := req.Role
	if roleName == "" {
		roleName = models.MemberRoleName
	}
	role, err := h.store.GetRole(r.Context(), roleName)
	if err != nil {
		BadRequest(w, "Unknown role "+roleName)
		return
	}

	hash, err := models.HashPassword(req.Password)
	if err != nil {
		InternalServerError(w, "Failed to hash password")
		return
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		PasswordHash: hash,
		Enabled:      true,
		RoleID:       &role.ID,
	}
	if _, err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, models.ErrDuplicateUser) {
			Conflict(w, "Username already exists")
			return
		}
		InternalServerError(w, "Failed to create user")
		return
	}

	logger.InfoCtx(r.Context(), "user created",
		"username", req.Username, "role", roleName, "admin", sessionUsername(r))

	created, err := h.store.GetUser(r.Context(), req.Username)
	if err != nil {
		InternalServerError(w, "Failed to fetch created user")
		return
	}
	WriteJSONCreated(w, userToResponse(created))
}

// SetUserStatus handles PUT /admin/api/users/{username}/status.
// The bootstrap admin account cannot be disabled.
func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req UserStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if username == models.AdminUsername && !req.Enabled {
		Forbidden(w, "The bootstrap admin account cannot be disabled")
		return
	}

	user, err := h.store.GetUser(r.Context(), username)
	if err != nil {
		NotFound(w, "User not found")
		return
	}

	user.Enabled = req.Enabled
	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		InternalServerError(w, "Failed to update user")
		return
	}

	logger.InfoCtx(r.Context(), "user status changed",
		"username", username, "enabled", req.Enabled, "admin", sessionUsername(r))
	WriteNoContent(w)
}

// ResetPassword handles PUT /admin/api/users/{username}/reset-password.
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req ResetPasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := models.ValidatePassword(req.NewPassword); err != nil {
		BadRequest(w, err.Error())
		return
	}

	hash, err := models.HashPassword(req.NewPassword)
	if err != nil {
		InternalServerError(w, "Failed to hash password")
		return
	}

	if err := h.store.UpdatePassword(r.Context(), username, hash); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "User not found")
			return
		}
		InternalServerError(w, "Failed to reset password")
		return
	}

	logger.InfoCtx(r.Context(), "password reset",
		"username", username, "admin", sessionUsername(r))
	WriteNoContent(w)
}

// SetUserRole handles PUT /admin/api/users/{username}/role.
// The bootstrap admin account's role cannot be changed.
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req UserRoleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if username == models.AdminUsername {
		Forbidden(w, "The bootstrap admin account's role cannot be changed")
		return
	}

	role, err := h.store.GetRole(r.Context(), req.Role)
	if err != nil {
		BadRequest(w, "Unknown role "+req.Role)
		return
	}

	user, err := h.store.GetUser(r.Context(), username)
	if err != nil {
		NotFound(w, "User not found")
		return
	}

	user.RoleID = &role.ID
	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		InternalServerError(w, "Failed to update user")
		return
	}

	logger.InfoCtx(r.Context(), "user role changed",
		"username", username, "role", req.Role, "admin", sessionUsername(r))
	WriteNoContent(w)
}

// DeleteUser handles DELETE /admin/api/users/{username}.
// The bootstrap admin account cannot be deleted. File history survives the
// deletion with the user reference nulled.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if username == models.AdminUsername {
		Forbidden(w, "The bootstrap admin account cannot be deleted")
		return
	}

	if err := h.store.DeleteUser(r.Context(), username); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			NotFound(w, "User not found")
			return
		}
		InternalServerError(w, "Failed to delete user")
		return
	}

	logger.InfoCtx(r.Context(), "user deleted",
		"username", username, "admin", sessionUsername(r))
	WriteNoContent(w)
}

// ListRoles handles GET /admin/api/roles.
func (h *AdminHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list roles")
		return
	}
	WriteJSONOK(w, roles)
}

// CreateRole handles POST /admin/api/roles.
func (h *AdminHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}

	role := &models.Role{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		if errors.Is(err, models.ErrDuplicateRole) {
			Conflict(w, "Role already exists")
			return
		}
		InternalServerError(w, "Failed to create role")
		return
	}

	if len(req.Permissions) > 0 {
		updated, err := h.store.SetRolePermissions(r.Context(), req.Name, req.Permissions)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		role = updated
	}

	logger.InfoCtx(r.Context(), "role created",
		"role", req.Name, "admin", sessionUsername(r))
	WriteJSONCreated(w, role)
}

// SetRolePermissions handles PUT /admin/api/roles/{name}/permissions.
// System roles cannot be modified.
func (h *AdminHandler) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req RolePermissionsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	role, err := h.store.SetRolePermissions(r.Context(), name, req.Permissions)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRoleNotFound):
			NotFound(w, "Role not found")
		case errors.Is(err, models.ErrSystemRole):
			Forbidden(w, "System roles cannot be modified")
		default:
			BadRequest(w, err.Error())
		}
		return
	}

	logger.InfoCtx(r.Context(), "role permissions changed",
		"role", name, "admin", sessionUsername(r))
	WriteJSONOK(w, role)
}

// DeleteRole handles DELETE /admin/api/roles/{name}.
// System roles cannot be deleted.
func (h *AdminHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.store.DeleteRole(r.Context(), name); err != nil {
		switch {
		case errors.Is(err, models.ErrRoleNotFound):
			NotFound(w, "Role not found")
		case errors.Is(err, models.ErrSystemRole):
			Forbidden(w, "System roles cannot be deleted")
		case errors.Is(err, models.ErrRoleInUse):
			Conflict(w, "Role is still assigned to users")
		default:
			InternalServerError(w, "Failed to delete role")
		}
		return
	}

	logger.InfoCtx(r.Context(), "role deleted",
		"role", name, "admin", sessionUsername(r))
	WriteNoContent(w)
}
