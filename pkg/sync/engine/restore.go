package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/models"
)

// Restore makes an old revision the current version of a path without
// rewriting history:
//
//  1. the current revision's content is archived as a new revision,
//     preserving its original timestamp and author
//  2. the requested revision's content is copied to the next revision,
//     stamped with the current time and the restoring user
//
// Both inserts run under the per-path mutex so the two revisions stay
// adjacent. Restore runs outside the global sync lock: it only appends
// revisions and never disturbs an in-flight transaction's staged state.
func (e *Engine) Restore(ctx context.Context, user *models.User, service models.ServiceType, relPath string, revision int) error {
	relPath, err := sanitizePath(relPath)
	if err != nil {
		return err
	}
	if revision < 0 {
		return fmt.Errorf("revision number must be >= 0")
	}

	mu := e.pathLock(service, relPath)
	mu.Lock()
	defer mu.Unlock()

	current, err := e.store.GetCurrentFile(ctx, service, relPath)
	if err != nil {
		return err
	}
	if revision == current.Revision {
		return fmt.Errorf("revision %d is already the current version", revision)
	}

	target, err := e.store.GetRevision(ctx, service, relPath, revision)
	if err != nil {
		return err
	}
	if target.IsDeleted {
		return models.ErrFileDeleted
	}

	// Step 1: archive the current content under the next revision number,
	// keeping its original metadata so history stays truthful.
	archiveRev := current.Revision + 1
	if !current.IsDeleted {
		if err := e.blobs.CopyRevision(service, relPath, current.Revision, archiveRev); err != nil {
			return fmt.Errorf("failed to archive current revision: %w", err)
		}
	}
	archive := &models.FileRevision{
		Service:    service,
		Path:       relPath,
		Revision:   archiveRev,
		Hash:       current.Hash,
		Size:       current.Size,
		IsDeleted:  current.IsDeleted,
		ModifiedAt: current.ModifiedAt,
		UserID:     current.UserID,
	}
	if err := e.store.CreateFileRevision(ctx, archive); err != nil {
		return fmt.Errorf("failed to record archived revision: %w", err)
	}

	// Step 2: the restored content becomes the new current revision, owned
	// by the restoring user with a fresh timestamp.
	restoreRev := archiveRev + 1
	if err := e.blobs.CopyRevision(service, relPath, revision, restoreRev); err != nil {
		return fmt.Errorf("failed to copy restored revision: %w", err)
	}
	restored := &models.FileRevision{
		Service:    service,
		Path:       relPath,
		Revision:   restoreRev,
		Hash:       target.Hash,
		Size:       target.Size,
		ModifiedAt: time.Now().UTC(),
		UserID:     &user.ID,
	}
	if err := e.store.CreateFileRevision(ctx, restored); err != nil {
		return fmt.Errorf("failed to record restored revision: %w", err)
	}

	logger.Info("revision restored",
		"user", user.Username,
		"service", service,
		"path", relPath,
		"restored_revision", revision,
		"archived_as", archiveRev,
		"new_current", restoreRev)

	return e.pruneRevisions(ctx, service, relPath)
}
