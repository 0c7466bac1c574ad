package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/models"
)

// DeleteFile tombstones a path on behalf of an administrator, outside any
// transaction. The previous content stays on disk as history, exactly as a
// transactional delete would leave it.
func (e *Engine) DeleteFile(ctx context.Context, user *models.User, service models.ServiceType, relPath string) error {
	relPath, err := sanitizePath(relPath)
	if err != nil {
		return err
	}

	mu := e.pathLock(service, relPath)
	mu.Lock()
	defer mu.Unlock()

	current, err := e.store.GetCurrentFile(ctx, service, relPath)
	if err != nil {
		return err
	}
	if current.IsDeleted {
		return models.ErrFileDeleted
	}

	if _, err := e.archiveAndTombstone(ctx, current, &user.ID, nil); err != nil {
		return err
	}

	logger.Info("file deleted by admin",
		"user", user.Username, "service", service, "path", relPath)
	return e.pruneRevisions(ctx, service, relPath)
}

// DeleteRevision permanently removes one historical revision's blob and
// metadata row. The current revision cannot be removed this way.
func (e *Engine) DeleteRevision(ctx context.Context, service models.ServiceType, relPath string, revision int) error {
	relPath, err := sanitizePath(relPath)
	if err != nil {
		return err
	}

	mu := e.pathLock(service, relPath)
	mu.Lock()
	defer mu.Unlock()

	current, err := e.store.GetCurrentFile(ctx, service, relPath)
	if err != nil && !errors.Is(err, models.ErrFileNotFound) {
		return err
	}
	if current != nil && current.Revision == revision {
		return fmt.Errorf("cannot delete the current revision")
	}

	target, err := e.store.GetRevision(ctx, service, relPath, revision)
	if err != nil {
		return err
	}

	if err := e.blobs.RemoveRevision(service, relPath, revision); err != nil {
		return fmt.Errorf("failed to remove revision blob: %w", err)
	}
	if err := e.store.DeleteFileRevision(ctx, target.ID); err != nil {
		return err
	}

	logger.Info("revision deleted by admin",
		"service", service, "path", relPath, "revision", revision)
	return nil
}
