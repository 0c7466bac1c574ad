package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/versesync/versesync/pkg/sync/engine"
	"github.com/versesync/versesync/pkg/sync/models"
	"github.com/versesync/versesync/pkg/sync/store"
)

// StatusHandler handles health, lock status, last-operation and client
// version endpoints. These are unauthenticated so sync clients can probe
// the server before logging in.
type StatusHandler struct {
	store         *store.GORMStore
	engine        *engine.Engine
	serverVersion string
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(s *store.GORMStore, e *engine.Engine, serverVersion string) *StatusHandler {
	return &StatusHandler{store: s, engine: e, serverVersion: serverVersion}
}

// LastOperationResponse is the response body for GET /api/status/last_operation.
type LastOperationResponse struct {
	Username    *string               `json:"username,omitempty"`
	Operation   *models.OperationType `json:"operation_type,omitempty"`
	Service     *models.ServiceType   `json:"service_type,omitempty"`
	CompletedAt *time.Time            `json:"completed_utc,omitempty"`
	FileCount   *int                  `json:"file_count,omitempty"`
}

// LockStatusResponse is the response body for GET /api/status/lock.
type LockStatusResponse struct {
	Locked         bool   `json:"locked"`
	Username       string `json:"username,omitempty"`
	Operation      string `json:"operation_type,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// VersionCheckResponse is the response body for GET /api/version/check.
type VersionCheckResponse struct {
	UpdateAvailable bool   `json:"update_available"`
	LatestVersion   string `json:"latest_version,omitempty"`
}

// VersionInfoResponse is the response body for GET /api/version/info.
type VersionInfoResponse struct {
	ServerVersion string `json:"server_version"`
	LatestVersion string `json:"latest_version,omitempty"`
	DownloadsPath string `json:"downloads_path,omitempty"`
}

// Health handles GET /health.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, map[string]string{"status": "ok"})
}

// LastOperation handles GET /api/status/last_operation.
// Returns the most recent completed sync, or empty fields when none has run.
func (h *StatusHandler) LastOperation(w http.ResponseWriter, r *http.Request) {
	last, err := h.store.GetLastOperation(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to read last operation")
		return
	}
	if last == nil {
		WriteJSONOK(w, LastOperationResponse{})
		return
	}

	WriteJSONOK(w, LastOperationResponse{
		Username:    last.Username,
		Operation:   last.Operation,
		Service:     last.Service,
		CompletedAt: last.Timestamp,
		FileCount:   last.FileCount,
	})
}

// Lock handles GET /api/status/lock.
// Reports whether a sync is in progress and who holds the lock.
func (h *StatusHandler) Lock(w http.ResponseWriter, r *http.Request) {
	info := h.engine.LockStatus()
	if info == nil {
		WriteJSONOK(w, LockStatusResponse{Locked: false})
		return
	}

	WriteJSONOK(w, LockStatusResponse{
		Locked:         true,
		Username:       info.Username,
		Operation:      string(info.Operation),
		ElapsedSeconds: int(info.Elapsed().Seconds()),
		TimeoutSeconds: int(info.Timeout.Seconds()),
	})
}

// VersionCheck handles GET /api/version/check?current=X.
// Reports whether the client's version differs from the published one.
func (h *StatusHandler) VersionCheck(w http.ResponseWriter, r *http.Request) {
	latest, err := h.store.GetSetting(r.Context(), models.SettingLatestClientVersion)
	if err != nil {
		InternalServerError(w, "Failed to read version setting")
		return
	}

	current := r.URL.Query().Get("current")
	WriteJSONOK(w, VersionCheckResponse{
		UpdateAvailable: latest != "" && current != latest,
		LatestVersion:   latest,
	})
}

// VersionInfo handles GET /api/version/info.
func (h *StatusHandler) VersionInfo(w http.ResponseWriter, r *http.Request) {
	latest, err := h.store.GetSetting(r.Context(), models.SettingLatestClientVersion)
	if err != nil {
		InternalServerError(w, "Failed to read version setting")
		return
	}
	downloads, err := h.store.GetSetting(r.Context(), models.SettingClientDownloadsPath)
	if err != nil {
		InternalServerError(w, "Failed to read downloads setting")
		return
	}

	WriteJSONOK(w, VersionInfoResponse{
		ServerVersion: h.serverVersion,
		LatestVersion: latest,
		DownloadsPath: downloads,
	})
}

// VersionDownload handles GET /api/version/download.
// Streams the published client executable, if one is configured.
func (h *StatusHandler) VersionDownload(w http.ResponseWriter, r *http.Request) {
	execPath, err := h.store.GetSetting(r.Context(), models.SettingClientExecutablePath)
	if err != nil {
		InternalServerError(w, "Failed to read executable setting")
		return
	}
	if execPath == "" {
		NotFound(w, "No client executable is published")
		return
	}

	f, err := os.Open(execPath)
	if err != nil {
		NotFound(w, "Client executable not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		InternalServerError(w, "Failed to stat client executable")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(execPath)+`"`)
	http.ServeContent(w, r, filepath.Base(execPath), info.ModTime(), f)
}
