package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/versesync/versesync/pkg/sync/api/middleware"
	"github.com/versesync/versesync/pkg/sync/engine"
	"github.com/versesync/versesync/pkg/sync/models"
	"github.com/versesync/versesync/pkg/sync/store"
)

// TransactionHandler handles the transactional sync endpoints: begin,
// upload, download, delete, commit and rollback.
type TransactionHandler struct {
	store  *store.GORMStore
	engine *engine.Engine
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(s *store.GORMStore, e *engine.Engine) *TransactionHandler {
	return &TransactionHandler{store: s, engine: e}
}

// BeginRequest is the request body for POST /api/transactions/begin.
// ClientFiles is required for Reconcile and optional for Pull.
type BeginRequest struct {
	Operation   models.OperationType         `json:"operation_type"`
	Service     models.ServiceType           `json:"service_type"`
	Description string                       `json:"description,omitempty"`
	ClientFiles map[string]engine.ClientFile `json:"client_files,omitempty"`
}

// BeginResponse is the response body for POST /api/transactions/begin.
type BeginResponse struct {
	TransactionID  string   `json:"transaction_id"`
	LockAcquired   bool     `json:"lock_acquired"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	FilesToPull    []string `json:"files_to_pull,omitempty"`
	FilesToPush    []string `json:"files_to_push,omitempty"`
}

// UploadResponse is the response body for a staged upload.
type UploadResponse struct {
	FileHash string `json:"file_hash"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

// DeleteRequest is the request body for marking a file for deletion.
type DeleteRequest struct {
	Path string `json:"path"`
}

// DeleteResponse acknowledges a deletion mark.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

// CommitResponse is the response body for a commit.
type CommitResponse struct {
	Success     bool `json:"success"`
	FilesTotal  int  `json:"files_total"`
	FilesPulled *int `json:"files_pulled,omitempty"`
	FilesPushed *int `json:"files_pushed,omitempty"`
}

// RollbackResponse is the response body for a rollback.
type RollbackResponse struct {
	Success bool `json:"success"`
}

// maxUploadFormMemory bounds how much of a multipart upload stays in memory
// before spilling to a temp file.
const maxUploadFormMemory = 1 << 20

// operationPermissions maps operation types to the permission needed to
// begin them. Pull requires authentication only.
var operationPermissions = map[models.OperationType]string{
	models.OperationPush:      models.PermissionPush,
	models.OperationReconcile: models.PermissionReconcile,
}

// Begin handles POST /api/transactions/begin.
// Acquires the exclusive sync lock and opens a transaction.
func (h *TransactionHandler) Begin(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	var req BeginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if !req.Operation.IsValid() {
		BadRequest(w, fmt.Sprintf("Unknown operation type %q", req.Operation))
		return
	}
	if !req.Service.IsValid() {
		BadRequest(w, fmt.Sprintf("Unknown service type %q", req.Service))
		return
	}
	if perm, ok := operationPermissions[req.Operation]; ok && !claims.HasPermission(perm) {
		Forbidden(w, fmt.Sprintf("%s operations require the %s permission", req.Operation, perm))
		return
	}

	// Fetch a fresh user row so disabled accounts cannot open transactions
	// with a still-valid token.
	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		Unauthorized(w, "User not found")
		return
	}
	if !user.Enabled {
		Forbidden(w, "User account is disabled")
		return
	}

	result, err := h.engine.Begin(r.Context(), engine.BeginParams{
		User:        user,
		Operation:   req.Operation,
		Service:     req.Service,
		Description: req.Description,
		ClientFiles: req.ClientFiles,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	WriteJSONOK(w, BeginResponse{
		TransactionID:  result.Transaction.ID,
		LockAcquired:   true,
		TimeoutSeconds: result.TimeoutSeconds,
		FilesToPull:    result.FilesToPull,
		FilesToPush:    result.FilesToPush,
	})
}

// Upload handles POST /api/transactions/{id}/files/upload.
// The body is multipart/form-data with a "path" text field and a "file"
// binary field, streamed into staging.
func (h *TransactionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxUploadFormMemory); err != nil {
		BadRequest(w, "Request must be multipart/form-data with path and file fields")
		return
	}
	relPath := r.FormValue("path")
	if relPath == "" {
		BadRequest(w, "path form field is required")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, "file form field is required")
		return
	}
	defer file.Close()

	txnID := chi.URLParam(r, "id")
	staged, err := h.engine.StageUpload(r.Context(), txnID, claims.UserID, relPath, file)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	WriteJSONOK(w, UploadResponse{FileHash: staged.Hash, Path: staged.Path, Size: staged.Size})
}

// Download handles GET /api/transactions/{id}/files/download?path=...
// Streams the current revision of a file.
func (h *TransactionHandler) Download(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	relPath := r.URL.Query().Get("path")
	if relPath == "" {
		BadRequest(w, "path query parameter is required")
		return
	}

	txnID := chi.URLParam(r, "id")
	f, rev, err := h.engine.OpenCurrentFile(r.Context(), txnID, claims.UserID, relPath)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-File-Hash", rev.HashString())
	w.Header().Set("X-File-Modified", rev.ModifiedAt.UTC().Format(http.TimeFormat))
	http.ServeContent(w, r, rev.Path, rev.ModifiedAt, f)
}

// Delete handles POST /api/transactions/{id}/files/delete.
// Marks a path for tombstoning at commit; nothing is removed before then.
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	var req DeleteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		BadRequest(w, "path is required")
		return
	}

	txnID := chi.URLParam(r, "id")
	if err := h.engine.MarkDelete(r.Context(), txnID, claims.UserID, req.Path); err != nil {
		writeEngineError(w, err)
		return
	}

	WriteJSONOK(w, DeleteResponse{Success: true, Path: req.Path})
}

// Commit handles POST /api/transactions/{id}/commit.
// Atomically publishes every staged change and releases the lock.
func (h *TransactionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	txnID := chi.URLParam(r, "id")
	result, err := h.engine.Commit(r.Context(), txnID, claims.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	WriteJSONOK(w, CommitResponse{
		Success:     true,
		FilesTotal:  result.FilesTotal,
		FilesPulled: result.FilesPulled,
		FilesPushed: result.FilesPushed,
	})
}

// Status handles GET /api/transactions/{id}/status.
// The owning client polls this to learn whether an admin cancelled the
// transaction: live transactions answer 200, cancelled ones 409 with the
// distinguished error body.
func (h *TransactionHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	txnID := chi.URLParam(r, "id")
	status, err := h.engine.Status(r.Context(), txnID, claims.UserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	WriteJSONOK(w, status)
}

// Rollback handles POST /api/transactions/{id}/rollback.
// Discards staged changes and releases the lock.
func (h *TransactionHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	txnID := chi.URLParam(r, "id")
	if err := h.engine.Rollback(r.Context(), txnID, claims.UserID); err != nil {
		writeEngineError(w, err)
		return
	}

	WriteJSONOK(w, RollbackResponse{Success: true})
}

// writeCancelled emits the distinguished 409 body for admin cancellation.
// Clients match on the "error" member to run their local rollback, so the
// shape is fixed and not a problem+json response.
func writeCancelled(w http.ResponseWriter) {
	WriteJSON(w, http.StatusConflict, map[string]string{
		"error":   "transaction_cancelled_by_admin",
		"message": "Transaction was cancelled by an administrator",
	})
}

// writeEngineError maps engine and store errors onto problem responses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrTransactionNotFound):
		NotFound(w, "Transaction not found")
	case errors.Is(err, models.ErrTransactionCancelled):
		writeCancelled(w)
	case errors.Is(err, models.ErrPermissionDenied):
		Forbidden(w, "Transaction belongs to another user")
	case errors.Is(err, models.ErrLockHeld):
		Conflict(w, err.Error())
	case errors.Is(err, models.ErrInvalidPath):
		BadRequest(w, err.Error())
	case errors.Is(err, models.ErrPathIgnored):
		BadRequest(w, err.Error())
	case errors.Is(err, models.ErrFileNotFound):
		NotFound(w, "File not found")
	case errors.Is(err, models.ErrFileDeleted):
		NotFound(w, "File has been deleted")
	case errors.Is(err, models.ErrRevisionNotFound):
		NotFound(w, "Revision not found")
	default:
		InternalServerError(w, err.Error())
	}
}
