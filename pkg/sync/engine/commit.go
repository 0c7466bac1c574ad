package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/models"
)

// CommitResult summarizes what a commit wrote.
type CommitResult struct {
	FilesTotal  int  // files affected: uploads plus deletions
	FilesPulled *int // reconcile only
	FilesPushed *int // reconcile only
}

// appliedRevision tracks one revision row written during a commit so a
// mid-commit failure can unwind everything already applied.
type appliedRevision struct {
	rev     *models.FileRevision
	hasBlob bool
}

// Commit finalizes a transaction: deletions become tombstones, staged
// uploads become new revisions, the operation record closes, the
// last-operation row updates and the lock is released. Deletions are applied
// before uploads so a path that is deleted and re-uploaded in one
// transaction ends up present.
//
// The commit is all-or-nothing: a failure on any file unwinds every blob and
// metadata row already written, marks the operation rolled back and returns
// the error. Revision pruning runs only after every file has landed.
func (e *Engine) Commit(ctx context.Context, txnID, userID string) (*CommitResult, error) {
	txn, err := e.resolveOwned(ctx, txnID, userID)
	if err != nil {
		return nil, err
	}

	uploads := txn.Uploads()
	deletes := txn.Deletes()

	// One changelist groups every revision this commit writes.
	var changelistID *uint
	if len(uploads) > 0 || len(deletes) > 0 {
		cl := &models.Changelist{
			UserID:      &txn.UserID,
			Operation:   txn.Operation,
			Description: txn.Description,
		}
		if err := e.store.CreateChangelist(ctx, cl); err != nil {
			return nil, fmt.Errorf("failed to create changelist: %w", err)
		}
		changelistID = &cl.ID
	}

	var applied []appliedRevision
	for _, relPath := range deletes {
		revs, err := e.applyTombstone(ctx, txn, relPath, changelistID)
		applied = append(applied, revs...)
		if err != nil {
			return nil, e.abortCommit(ctx, txn, changelistID, applied, relPath, err)
		}
	}

	for _, relPath := range uploads {
		rev, err := e.applyUpload(ctx, txn, relPath, changelistID)
		if rev != nil {
			applied = append(applied, *rev)
		}
		if err != nil {
			return nil, e.abortCommit(ctx, txn, changelistID, applied, relPath, err)
		}
	}

	// Retention runs after every file landed; a prune hiccup must not fail
	// an otherwise complete commit.
	for _, a := range applied {
		if err := e.pruneRevisions(ctx, a.rev.Service, a.rev.Path); err != nil {
			logger.Warn("failed to prune revisions after commit",
				"path", a.rev.Path, "error", err)
		}
	}

	var filesPulled, filesPushed *int
	if txn.Operation == models.OperationReconcile {
		pull, push := len(txn.FilesToPull), len(txn.FilesToPush)
		filesPulled, filesPushed = &pull, &push
	}

	if err := e.store.FinishOperation(ctx, txn.OperationID, models.StatusCompleted, filesPulled, filesPushed); err != nil {
		return nil, fmt.Errorf("failed to complete operation record: %w", err)
	}

	lastCount := 0
	if txn.Operation == models.OperationPush {
		lastCount = len(uploads)
	}
	if err := e.store.SetLastOperation(ctx, txn.Username, txn.Operation, txn.Service, time.Now().UTC(), lastCount); err != nil {
		logger.Warn("failed to update last operation", "error", err)
	}

	e.finish(txn)
	e.metrics.RecordFinish(string(txn.Operation), string(models.StatusCompleted))
	e.metrics.AddFilesCommitted(len(uploads) + len(deletes))

	logger.Info("transaction committed",
		"transaction_id", txnID,
		"user", txn.Username,
		"operation", txn.Operation,
		"service", txn.Service,
		"uploads", len(uploads),
		"deletes", len(deletes))

	return &CommitResult{
		FilesTotal:  len(uploads) + len(deletes),
		FilesPulled: filesPulled,
		FilesPushed: filesPushed,
	}, nil
}

// abortCommit unwinds a failed commit: every revision already applied is
// removed again, the empty changelist goes away, the operation record closes
// as rolled back and the transaction terminates.
func (e *Engine) abortCommit(ctx context.Context, txn *Transaction, changelistID *uint, applied []appliedRevision, relPath string, cause error) error {
	logger.Error("commit failed, rolling back",
		"transaction_id", txn.ID, "path", relPath, "error", cause)

	for i := len(applied) - 1; i >= 0; i-- {
		a := applied[i]
		if a.hasBlob {
			if err := e.blobs.RemoveRevision(a.rev.Service, a.rev.Path, a.rev.Revision); err != nil {
				logger.Warn("failed to remove blob during commit rollback",
					"path", a.rev.Path, "revision", a.rev.Revision, "error", err)
			}
		}
		if err := e.store.DeleteFileRevision(ctx, a.rev.ID); err != nil {
			logger.Warn("failed to remove revision row during commit rollback",
				"path", a.rev.Path, "revision", a.rev.Revision, "error", err)
		}
	}
	if changelistID != nil {
		if err := e.store.DeleteChangelist(ctx, *changelistID); err != nil {
			logger.Warn("failed to remove changelist during commit rollback",
				"changelist_id", *changelistID, "error", err)
		}
	}

	if err := e.store.FinishOperation(ctx, txn.OperationID, models.StatusRolledBack, nil, nil); err != nil {
		logger.Warn("failed to mark operation rolled back",
			"operation_id", txn.OperationID, "error", err)
	}

	e.finish(txn)
	e.metrics.RecordFinish(string(txn.Operation), string(models.StatusRolledBack))

	return fmt.Errorf("commit failed for %s, transaction rolled back: %w", relPath, cause)
}

// applyUpload moves one staged file into the blob store as the next revision
// and records its metadata row.
func (e *Engine) applyUpload(ctx context.Context, txn *Transaction, relPath string, changelistID *uint) (*appliedRevision, error) {
	staged := filepath.Join(txn.StagingPath, filepath.FromSlash(relPath))
	if _, err := os.Stat(staged); err != nil {
		return nil, fmt.Errorf("staged file missing: %w", err)
	}

	mu := e.pathLock(txn.Service, relPath)
	mu.Lock()
	defer mu.Unlock()

	next, err := e.store.NextRevision(ctx, txn.Service, relPath)
	if err != nil {
		return nil, err
	}

	hash, size, err := e.blobs.MoveFileIntoRevision(txn.Service, relPath, next, staged)
	if err != nil {
		return nil, err
	}

	rev := &models.FileRevision{
		Service:      txn.Service,
		Path:         relPath,
		Revision:     next,
		Hash:         &hash,
		Size:         &size,
		ModifiedAt:   time.Now().UTC(),
		UserID:       &txn.UserID,
		ChangelistID: changelistID,
	}
	if err := e.store.CreateFileRevision(ctx, rev); err != nil {
		// The blob landed but its row did not; unlink it so no anonymous
		// revision becomes visible.
		if rmErr := e.blobs.RemoveRevision(txn.Service, relPath, next); rmErr != nil {
			logger.Warn("failed to remove orphaned blob", "path", relPath, "revision", next, "error", rmErr)
		}
		return nil, err
	}

	return &appliedRevision{rev: rev, hasBlob: true}, nil
}

// applyTombstone deletes one path: the current content is archived as a new
// numbered revision (the pre-deletion snapshot), then a tombstone goes on
// top. Unknown and already-deleted paths are no-ops.
func (e *Engine) applyTombstone(ctx context.Context, txn *Transaction, relPath string, changelistID *uint) ([]appliedRevision, error) {
	mu := e.pathLock(txn.Service, relPath)
	mu.Lock()
	defer mu.Unlock()

	current, err := e.store.GetCurrentFile(ctx, txn.Service, relPath)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			logger.Warn("delete requested for unknown file", "path", relPath)
			return nil, nil
		}
		return nil, err
	}
	if current.IsDeleted {
		return nil, nil
	}

	return e.archiveAndTombstone(ctx, current, &txn.UserID, changelistID)
}

// archiveAndTombstone writes the pre-deletion snapshot and the tombstone for
// a path whose current revision is not deleted. The caller holds the
// per-path mutex.
func (e *Engine) archiveAndTombstone(ctx context.Context, current *models.FileRevision, deletedBy *string, changelistID *uint) ([]appliedRevision, error) {
	var applied []appliedRevision

	archiveRev := current.Revision + 1
	if err := e.blobs.CopyRevision(current.Service, current.Path, current.Revision, archiveRev); err != nil {
		return applied, fmt.Errorf("failed to archive revision before delete: %w", err)
	}
	archive := &models.FileRevision{
		Service:      current.Service,
		Path:         current.Path,
		Revision:     archiveRev,
		Hash:         current.Hash,
		Size:         current.Size,
		ModifiedAt:   current.ModifiedAt,
		UserID:       current.UserID,
		ChangelistID: changelistID,
	}
	if err := e.store.CreateFileRevision(ctx, archive); err != nil {
		if rmErr := e.blobs.RemoveRevision(current.Service, current.Path, archiveRev); rmErr != nil {
			logger.Warn("failed to remove orphaned archive blob",
				"path", current.Path, "revision", archiveRev, "error", rmErr)
		}
		return applied, err
	}
	applied = append(applied, appliedRevision{rev: archive, hasBlob: true})

	tomb := &models.FileRevision{
		Service:      current.Service,
		Path:         current.Path,
		Revision:     archiveRev + 1,
		IsDeleted:    true,
		ModifiedAt:   time.Now().UTC(),
		UserID:       deletedBy,
		ChangelistID: changelistID,
	}
	if err := e.store.CreateFileRevision(ctx, tomb); err != nil {
		return applied, err
	}
	applied = append(applied, appliedRevision{rev: tomb})

	return applied, nil
}

// Rollback discards a transaction: staging is deleted, nothing is written
// and the lock is released.
func (e *Engine) Rollback(ctx context.Context, txnID, userID string) error {
	txn, err := e.resolveOwned(ctx, txnID, userID)
	if err != nil {
		return err
	}

	if err := e.store.FinishOperation(ctx, txn.OperationID, models.StatusRolledBack, nil, nil); err != nil {
		logger.Warn("failed to mark operation rolled back", "operation_id", txn.OperationID, "error", err)
	}

	e.finish(txn)
	e.metrics.RecordFinish(string(txn.Operation), string(models.StatusRolledBack))

	logger.Info("transaction rolled back",
		"transaction_id", txnID,
		"user", txn.Username,
		"operation", txn.Operation)
	return nil
}

// Cancel force-terminates a transaction on behalf of an administrator. The
// staging area and lock go away immediately so the server is free for other
// clients, but the transaction ID keeps resolving: every subsequent call by
// the owner fails with models.ErrTransactionCancelled until the retention
// window lapses.
func (e *Engine) Cancel(ctx context.Context, txnID string) error {
	txn, err := e.Get(txnID)
	if err != nil {
		return err
	}
	if txn.Cancelled() {
		return nil
	}

	if err := e.store.FinishOperation(ctx, txn.OperationID, models.StatusCancelledByAdmin, nil, nil); err != nil {
		return fmt.Errorf("failed to mark operation cancelled: %w", err)
	}

	txn.markCancelled()
	if err := os.RemoveAll(txn.StagingPath); err != nil {
		logger.Warn("failed to remove staging area", "path", txn.StagingPath, "error", err)
	}
	e.lock.Release(txn.lockToken)

	e.metrics.RecordFinish(string(txn.Operation), string(models.StatusCancelledByAdmin))

	logger.Info("transaction cancelled by admin",
		"transaction_id", txnID,
		"user", txn.Username,
		"operation", txn.Operation)
	return nil
}

// finish removes a transaction's staging area, unregisters it and releases
// its lock acquisition.
func (e *Engine) finish(txn *Transaction) {
	if err := os.RemoveAll(txn.StagingPath); err != nil {
		logger.Warn("failed to remove staging area", "path", txn.StagingPath, "error", err)
	}

	e.mu.Lock()
	delete(e.active, txn.ID)
	e.mu.Unlock()

	e.lock.Release(txn.lockToken)
}

// pruneRevisions removes blobs and rows beyond the max_revisions setting for
// one path. The current revision is never pruned.
func (e *Engine) pruneRevisions(ctx context.Context, service models.ServiceType, relPath string) error {
	maxKeep, err := e.store.GetSettingInt(ctx, models.SettingMaxRevisions, defaultMaxRevisions)
	if err != nil {
		return err
	}

	excess, err := e.store.ExcessRevisions(ctx, service, relPath, maxKeep)
	if err != nil {
		return err
	}

	for _, rev := range excess {
		if err := e.blobs.RemoveRevision(service, relPath, rev.Revision); err != nil {
			logger.Warn("failed to remove pruned revision blob",
				"path", relPath, "revision", rev.Revision, "error", err)
			continue
		}
		if err := e.store.DeleteFileRevision(ctx, rev.ID); err != nil {
			return err
		}
		logger.Info("pruned old revision", "path", relPath, "revision", rev.Revision)
	}
	return nil
}
