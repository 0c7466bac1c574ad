package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/admin"
	"github.com/versesync/versesync/pkg/sync/api/middleware"
	"github.com/versesync/versesync/pkg/sync/engine"
	"github.com/versesync/versesync/pkg/sync/models"
	"github.com/versesync/versesync/pkg/sync/store"
)

// AdminHandler handles the browser-facing admin control plane: session
// login, operation monitoring, ignore patterns, settings and user
// management. Everything except login requires a session cookie.
type AdminHandler struct {
	store    *store.GORMStore
	engine   *engine.Engine
	sessions *admin.Manager
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(s *store.GORMStore, e *engine.Engine, sessions *admin.Manager) *AdminHandler {
	return &AdminHandler{store: s, engine: e, sessions: sessions}
}

// AdminLoginRequest is the request body for POST /admin/login.
type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /admin/login.
// Only users whose role carries the admin permission can open a session.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req AdminLoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	user, err := h.store.ValidateCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, models.ErrUserDisabled) {
			Forbidden(w, "User account is disabled")
			return
		}
		Unauthorized(w, "Invalid username or password")
		return
	}
	if !user.IsAdmin() {
		Forbidden(w, "Admin access required")
		return
	}

	session, err := h.sessions.Create(user.ID, user.Username)
	if err != nil {
		InternalServerError(w, "Failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     admin.CookieName,
		Value:    session.ID,
		Path:     "/admin",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	WriteJSONOK(w, map[string]string{"username": user.Username})
}

// Logout handles POST /admin/logout.
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(admin.CookieName); err == nil {
		h.sessions.Delete(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     admin.CookieName,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	WriteNoContent(w)
}

// ActiveOperations handles GET /admin/api/operations/active.
// Lists every open transaction with its holder and progress counts.
func (h *AdminHandler) ActiveOperations(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, h.engine.ActiveTransactions())
}

// CancelOperation handles POST /admin/api/operations/{id}/cancel.
// Force-terminates a stuck transaction; the owning client discovers the
// cancellation on its next call.
func (h *AdminHandler) CancelOperation(w http.ResponseWriter, r *http.Request) {
	txnID := chi.URLParam(r, "id")

	if err := h.engine.Cancel(r.Context(), txnID); err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			NotFound(w, "Transaction not found")
			return
		}
		InternalServerError(w, "Failed to cancel transaction")
		return
	}

	logger.InfoCtx(r.Context(), "transaction cancelled",
		"transaction_id", txnID, "admin", sessionUsername(r))
	WriteNoContent(w)
}

// OperationEntry is one row of the operation history response.
type OperationEntry struct {
	ID          uint                   `json:"id"`
	Username    string                 `json:"username,omitempty"`
	Operation   models.OperationType   `json:"operation_type"`
	Service     models.ServiceType     `json:"service_type"`
	Status      models.OperationStatus `json:"status"`
	LockedAt    time.Time              `json:"locked_utc"`
	CompletedAt *time.Time             `json:"completed_utc,omitempty"`
	FilesPulled *int                   `json:"files_pulled,omitempty"`
	FilesPushed *int                   `json:"files_pushed,omitempty"`
}

// OperationHistory handles GET /admin/api/operations?limit=N.
// Returns recent operation records, newest first.
func (h *AdminHandler) OperationHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ops, err := h.store.ListOperations(r.Context(), limit)
	if err != nil {
		InternalServerError(w, "Failed to list operations")
		return
	}

	entries := make([]OperationEntry, 0, len(ops))
	for _, op := range ops {
		entry := OperationEntry{
			ID:          op.ID,
			Operation:   op.Operation,
			Service:     op.Service,
			Status:      op.Status,
			LockedAt:    op.LockedAt,
			CompletedAt: op.CompletedAt,
			FilesPulled: op.FilesPulled,
			FilesPushed: op.FilesPushed,
		}
		if op.User != nil {
			entry.Username = op.User.Username
		}
		entries = append(entries, entry)
	}
	WriteJSONOK(w, entries)
}

// IgnorePatternRequest is the request body for creating an ignore pattern.
type IgnorePatternRequest struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description,omitempty"`
}

// ListIgnorePatterns handles GET /admin/api/ignore-patterns.
func (h *AdminHandler) ListIgnorePatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.store.ListIgnorePatterns(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list ignore patterns")
		return
	}
	WriteJSONOK(w, patterns)
}

// CreateIgnorePattern handles POST /admin/api/ignore-patterns.
func (h *AdminHandler) CreateIgnorePattern(w http.ResponseWriter, r *http.Request) {
	var req IgnorePatternRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Pattern == "" {
		BadRequest(w, "pattern is required")
		return
	}

	pattern := &models.IgnorePattern{
		Pattern:     req.Pattern,
		Description: req.Description,
	}
	if err := h.store.CreateIgnorePattern(r.Context(), pattern); err != nil {
		InternalServerError(w, "Failed to create ignore pattern")
		return
	}

	WriteJSONCreated(w, pattern)
}

// DeleteIgnorePattern handles DELETE /admin/api/ignore-patterns/{id}.
func (h *AdminHandler) DeleteIgnorePattern(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		BadRequest(w, "Invalid pattern ID")
		return
	}

	if err := h.store.DeleteIgnorePattern(r.Context(), uint(id)); err != nil {
		if errors.Is(err, models.ErrPatternNotFound) {
			NotFound(w, "Ignore pattern not found")
			return
		}
		InternalServerError(w, "Failed to delete ignore pattern")
		return
	}

	WriteNoContent(w)
}

// ListSettings handles GET /admin/api/settings.
// Returns every setting as a key/value map.
func (h *AdminHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.ListSettings(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list settings")
		return
	}

	out := make(map[string]string, len(settings))
	for _, s := range settings {
		out[s.Key] = s.Value
	}
	WriteJSONOK(w, out)
}

// integerSettings lists setting keys whose values must parse as positive
// integers.
var integerSettings = map[string]bool{
	models.SettingLockTimeoutSeconds:    true,
	models.SettingMinLockTimeoutSeconds: true,
	models.SettingMaxRevisions:          true,
	models.SettingJWTExpirationHours:    true,
	models.SettingLogRetentionDays:      true,
}

// UpdateSettings handles POST /admin/api/settings.
// Accepts a key/value map and updates each setting; numeric settings are
// validated before anything is written.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !decodeJSONBody(w, r, &req) {
		return
	}

	for key, value := range req {
		if integerSettings[key] {
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				BadRequest(w, key+" must be a positive integer")
				return
			}
		}
		if key == models.SettingReconcileRespectsDeletes {
			if _, err := strconv.ParseBool(value); err != nil {
				BadRequest(w, key+" must be a boolean")
				return
			}
		}
	}

	for key, value := range req {
		if err := h.store.SetSetting(r.Context(), key, value); err != nil {
			InternalServerError(w, "Failed to update setting "+key)
			return
		}
	}

	logger.InfoCtx(r.Context(), "settings updated", "admin", sessionUsername(r), "count", len(req))
	WriteNoContent(w)
}

// DeleteFile handles POST /admin/api/files/delete.
// Tombstones a file outside any transaction.
func (h *AdminHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service models.ServiceType `json:"service_type"`
		Path    string             `json:"path"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !req.Service.IsValid() {
		BadRequest(w, "Unknown or missing service")
		return
	}
	if req.Path == "" {
		BadRequest(w, "path is required")
		return
	}

	user, ok := h.sessionUser(w, r)
	if !ok {
		return
	}

	if err := h.engine.DeleteFile(r.Context(), user, req.Service, req.Path); err != nil {
		switch {
		case errors.Is(err, models.ErrFileNotFound):
			NotFound(w, "File not found")
		case errors.Is(err, models.ErrFileDeleted):
			Conflict(w, "File is already deleted")
		case errors.Is(err, models.ErrInvalidPath):
			BadRequest(w, err.Error())
		default:
			InternalServerError(w, "Failed to delete file")
		}
		return
	}

	WriteNoContent(w)
}

// DeleteRevision handles POST /admin/api/files/delete-revision.
// Permanently removes one historical revision.
func (h *AdminHandler) DeleteRevision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Service  models.ServiceType `json:"service_type"`
		Path     string             `json:"path"`
		Revision int                `json:"revision"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !req.Service.IsValid() {
		BadRequest(w, "Unknown or missing service")
		return
	}
	if req.Path == "" {
		BadRequest(w, "path is required")
		return
	}

	if err := h.engine.DeleteRevision(r.Context(), req.Service, req.Path, req.Revision); err != nil {
		switch {
		case errors.Is(err, models.ErrRevisionNotFound), errors.Is(err, models.ErrFileNotFound):
			NotFound(w, "Revision not found")
		case errors.Is(err, models.ErrInvalidPath):
			BadRequest(w, err.Error())
		default:
			BadRequest(w, err.Error())
		}
		return
	}

	WriteNoContent(w)
}

// sessionFromRequest returns the admin session attached by the session
// middleware, or nil.
func sessionFromRequest(r *http.Request) *admin.Session {
	return middleware.GetAdminSessionFromContext(r.Context())
}

// sessionUsername returns the admin session's username for audit logging.
func sessionUsername(r *http.Request) string {
	if s := sessionFromRequest(r); s != nil {
		return s.Username
	}
	return ""
}

// sessionUser resolves the admin session to a fresh user row, writing an
// error response on failure.
func (h *AdminHandler) sessionUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	session := sessionFromRequest(r)
	if session == nil {
		Unauthorized(w, "Admin session required")
		return nil, false
	}
	user, err := h.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		Unauthorized(w, "User not found")
		return nil, false
	}
	return user, true
}
