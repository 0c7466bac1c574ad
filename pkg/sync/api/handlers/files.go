package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/api/middleware"
	"github.com/versesync/versesync/pkg/sync/blob"
	"github.com/versesync/versesync/pkg/sync/engine"
	"github.com/versesync/versesync/pkg/sync/models"
	"github.com/versesync/versesync/pkg/sync/store"
)

// FileHandler handles the read-side file endpoints: listings, revision
// history, direct downloads and revision restore. These run outside the
// transactional lock.
type FileHandler struct {
	store  *store.GORMStore
	blobs  *blob.Store
	engine *engine.Engine
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(s *store.GORMStore, b *blob.Store, e *engine.Engine) *FileHandler {
	return &FileHandler{store: s, blobs: b, engine: e}
}

// FileEntry is one file in a listing or revision history response.
type FileEntry struct {
	Path       string    `json:"path"`
	Revision   int       `json:"revision"`
	Hash       string    `json:"hash,omitempty"`
	Size       int64     `json:"size"`
	IsDeleted  bool      `json:"is_deleted,omitempty"`
	ModifiedAt time.Time `json:"modified_utc"`
	Username   string    `json:"username,omitempty"`
}

// RestoreRequest is the request body for POST /api/files/restore_revision.
type RestoreRequest struct {
	Service  models.ServiceType `json:"service_type"`
	Path     string             `json:"path"`
	Revision int                `json:"revision"`
}

// List handles GET /api/files/list?service_type=...&include_deleted=...
// Returns the current revision of every file in a service, filtered through
// the stored ignore patterns.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	service, ok := serviceParam(w, r.URL.Query().Get("service_type"))
	if !ok {
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	files, err := h.store.ListCurrentFiles(r.Context(), service, includeDeleted)
	if err != nil {
		InternalServerError(w, "Failed to list files")
		return
	}

	matcher, err := h.engine.IgnoreMatcher(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to load ignore patterns")
		return
	}

	entries := make([]FileEntry, 0, len(files))
	for _, rev := range files {
		if matcher.ShouldIgnore(rev.Path) {
			continue
		}
		entries = append(entries, revisionToEntry(rev))
	}
	WriteJSONOK(w, entries)
}

// Revisions handles GET /api/files/revisions?service_type=...&path=...
// Returns the full revision history for one path, newest first.
func (h *FileHandler) Revisions(w http.ResponseWriter, r *http.Request) {
	service, ok := serviceParam(w, r.URL.Query().Get("service_type"))
	if !ok {
		return
	}
	relPath := r.URL.Query().Get("path")
	if relPath == "" {
		BadRequest(w, "path query parameter is required")
		return
	}

	revs, err := h.store.ListRevisions(r.Context(), service, relPath)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			NotFound(w, "File not found")
			return
		}
		InternalServerError(w, "Failed to list revisions")
		return
	}

	entries := make([]FileEntry, 0, len(revs))
	for _, rev := range revs {
		entries = append(entries, revisionToEntry(rev))
	}
	WriteJSONOK(w, entries)
}

// Download handles GET /api/files/download?service_type=...&path=...
// Streams the current revision of a file.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	service, ok := serviceParam(w, r.URL.Query().Get("service_type"))
	if !ok {
		return
	}
	relPath := r.URL.Query().Get("path")
	if relPath == "" {
		BadRequest(w, "path query parameter is required")
		return
	}

	rev, err := h.store.GetCurrentFile(r.Context(), service, relPath)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			NotFound(w, "File not found")
			return
		}
		InternalServerError(w, "Failed to look up file")
		return
	}
	if rev.IsDeleted {
		NotFound(w, "File has been deleted")
		return
	}

	h.serveRevision(w, r, rev)
}

// DownloadRevision handles GET /api/files/download_revision?service_type=...&path=...&revision=N
// Streams a specific historical revision of a file.
func (h *FileHandler) DownloadRevision(w http.ResponseWriter, r *http.Request) {
	service, ok := serviceParam(w, r.URL.Query().Get("service_type"))
	if !ok {
		return
	}
	relPath := r.URL.Query().Get("path")
	if relPath == "" {
		BadRequest(w, "path query parameter is required")
		return
	}
	revision, err := strconv.Atoi(r.URL.Query().Get("revision"))
	if err != nil || revision < 0 {
		BadRequest(w, "revision must be a non-negative integer")
		return
	}

	rev, err := h.store.GetRevision(r.Context(), service, relPath, revision)
	if err != nil {
		if errors.Is(err, models.ErrRevisionNotFound) {
			NotFound(w, "Revision not found")
			return
		}
		InternalServerError(w, "Failed to look up revision")
		return
	}
	if rev.IsDeleted {
		NotFound(w, "Revision is a deletion marker")
		return
	}

	h.serveRevision(w, r, rev)
}

// Restore handles POST /api/files/restore_revision.
// Makes an old revision the current version without rewriting history.
func (h *FileHandler) Restore(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	var req RestoreRequest
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

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		Unauthorized(w, "User not found")
		return
	}

	if err := h.engine.Restore(r.Context(), user, req.Service, req.Path, req.Revision); err != nil {
		switch {
		case errors.Is(err, models.ErrFileNotFound):
			NotFound(w, "File not found")
		case errors.Is(err, models.ErrRevisionNotFound):
			NotFound(w, "Revision not found")
		case errors.Is(err, models.ErrFileDeleted):
			Conflict(w, "Cannot restore a deletion marker")
		case errors.Is(err, models.ErrInvalidPath):
			BadRequest(w, err.Error())
		default:
			BadRequest(w, err.Error())
		}
		return
	}

	logger.InfoCtx(r.Context(), "revision restore requested",
		"user", claims.Username, "service", req.Service, "path", req.Path, "revision", req.Revision)
	WriteNoContent(w)
}

// serveRevision streams a revision's blob with its metadata headers.
func (h *FileHandler) serveRevision(w http.ResponseWriter, r *http.Request, rev *models.FileRevision) {
	f, err := h.blobs.OpenRevision(rev.Service, rev.Path, rev.Revision)
	if err != nil {
		if errors.Is(err, models.ErrRevisionNotFound) {
			NotFound(w, "Revision content missing")
			return
		}
		InternalServerError(w, "Failed to open file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-File-Hash", rev.HashString())
	w.Header().Set("X-File-Revision", strconv.Itoa(rev.Revision))
	http.ServeContent(w, r, rev.Path, rev.ModifiedAt, f)
}

// revisionToEntry converts a FileRevision to its API representation.
func revisionToEntry(rev *models.FileRevision) FileEntry {
	entry := FileEntry{
		Path:       rev.Path,
		Revision:   rev.Revision,
		Hash:       rev.HashString(),
		Size:       rev.SizeBytes(),
		IsDeleted:  rev.IsDeleted,
		ModifiedAt: rev.ModifiedAt,
	}
	if rev.User != nil {
		entry.Username = rev.User.Username
	}
	return entry
}
