// Package api wires the HTTP surface of the sync server: the client-facing
// transactional API, the read-side file endpoints and the admin control
// plane.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/admin"
	"github.com/versesync/versesync/pkg/sync/api/auth"
	"github.com/versesync/versesync/pkg/sync/api/handlers"
	"github.com/versesync/versesync/pkg/sync/api/middleware"
	"github.com/versesync/versesync/pkg/sync/blob"
	"github.com/versesync/versesync/pkg/sync/engine"
	"github.com/versesync/versesync/pkg/sync/models"
	"github.com/versesync/versesync/pkg/sync/store"
)

// RouterConfig carries the dependencies of the HTTP router.
type RouterConfig struct {
	Store         *store.GORMStore
	Engine        *engine.Engine
	Blobs         *blob.Store
	Sessions      *admin.Manager
	JWTService    *auth.JWTService
	ServerVersion string

	// MetricsHandler, when non-nil, is mounted at /metrics.
	MetricsHandler http.Handler
}

// NewRouter creates the main HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	authHandler := handlers.NewAuthHandler(cfg.Store, cfg.JWTService)
	txnHandler := handlers.NewTransactionHandler(cfg.Store, cfg.Engine)
	fileHandler := handlers.NewFileHandler(cfg.Store, cfg.Blobs, cfg.Engine)
	statusHandler := handlers.NewStatusHandler(cfg.Store, cfg.Engine, cfg.ServerVersion)
	adminHandler := handlers.NewAdminHandler(cfg.Store, cfg.Engine, cfg.Sessions)

	r.Get("/health", statusHandler.Health)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(middleware.JWTAuth(cfg.JWTService))
				r.Get("/me", authHandler.Me)
				r.Post("/change-password", authHandler.ChangePassword)
			})
		})

		// Unauthenticated probes used by clients before login.
		r.Route("/status", func(r chi.Router) {
			r.Get("/last_operation", statusHandler.LastOperation)
			r.Get("/lock", statusHandler.Lock)
		})
		r.Route("/version", func(r chi.Router) {
			r.Get("/check", statusHandler.VersionCheck)
			r.Get("/info", statusHandler.VersionInfo)
			r.Get("/download", statusHandler.VersionDownload)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(cfg.JWTService))

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/begin", txnHandler.Begin)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/status", txnHandler.Status)
					r.Post("/commit", txnHandler.Commit)
					r.Post("/rollback", txnHandler.Rollback)
					r.Post("/files/upload", txnHandler.Upload)
					r.Get("/files/download", txnHandler.Download)
					r.Post("/files/delete", txnHandler.Delete)
				})
			})

			r.Route("/files", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(models.PermissionViewFiles))
					r.Get("/list", fileHandler.List)
					r.Get("/revisions", fileHandler.Revisions)
					r.Get("/download", fileHandler.Download)
					r.Get("/download_revision", fileHandler.DownloadRevision)
				})

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequirePermission(models.PermissionPush))
					r.Post("/restore_revision", fileHandler.Restore)
				})
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", adminHandler.Login)
		r.Post("/logout", adminHandler.Logout)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.AdminSession(cfg.Sessions))

			r.Route("/operations", func(r chi.Router) {
				r.Get("/", adminHandler.OperationHistory)
				r.Get("/active", adminHandler.ActiveOperations)
				r.Post("/{id}/cancel", adminHandler.CancelOperation)
			})

			r.Route("/ignore-patterns", func(r chi.Router) {
				r.Get("/", adminHandler.ListIgnorePatterns)
				r.Post("/", adminHandler.CreateIgnorePattern)
				r.Delete("/{id}", adminHandler.DeleteIgnorePattern)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", adminHandler.ListUsers)
				r.Post("/", adminHandler.CreateUser)
				r.Put("/{username}/status", adminHandler.SetUserStatus)
				r.Put("/{username}/reset-password", adminHandler.ResetPassword)
				r.Put("/{username}/role", adminHandler.SetUserRole)
				r.Delete("/{username}", adminHandler.DeleteUser)
			})

			r.Route("/roles", func(r chi.Router) {
				r.Get("/", adminHandler.ListRoles)
				r.Post("/", adminHandler.CreateRole)
				r.Put("/{name}/permissions", adminHandler.SetRolePermissions)
				r.Delete("/{name}", adminHandler.DeleteRole)
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", adminHandler.ListSettings)
				r.Post("/", adminHandler.UpdateSettings)
			})

			r.Route("/files", func(r chi.Router) {
				r.Get("/", fileHandler.List)
				r.Get("/revisions", fileHandler.Revisions)
				r.Post("/delete", adminHandler.DeleteFile)
				r.Post("/delete-revision", adminHandler.DeleteRevision)
			})
		})
	})

	return r
}

// requestLogger logs each HTTP request with method, path, status and timing.
// Health and metrics probes log at debug to keep the log readable.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logFn := logger.Info
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			logFn = logger.Debug
		}
		logFn("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", chimiddleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}
