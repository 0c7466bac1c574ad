package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/versesync/versesync/pkg/sync/models"
)

// ============================================
// OPERATION RECORD OPERATIONS
// ============================================

func (s *GORMStore) CreateOperation(ctx context.Context, op *models.Operation) error {
	return s.db.WithContext(ctx).Create(op).Error
}

func (s *GORMStore) GetOperation(ctx context.Context, id uint) (*models.Operation, error) {
	return getByField[models.Operation](s.db, ctx, "id", id, models.ErrOperationNotFound, "User")
}

// FinishOperation moves an operation record to a terminal status, recording
// completion time and, for reconciles, the pulled/pushed counts.
func (s *GORMStore) FinishOperation(ctx context.Context, id uint, status models.OperationStatus, filesPulled, filesPushed *int) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       status,
		"completed_at": now,
	}
	if filesPulled != nil {
		updates["files_pulled"] = *filesPulled
	}
	if filesPushed != nil {
		updates["files_pushed"] = *filesPushed
	}

	result := s.db.WithContext(ctx).
		Model(&models.Operation{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrOperationNotFound
	}
	return nil
}

// ListActiveOperations returns all operation records still marked active,
// oldest first.
func (s *GORMStore) ListActiveOperations(ctx context.Context) ([]*models.Operation, error) {
	var results []*models.Operation
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("status = ?", models.StatusActive).
		Order("locked_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListOperations returns the most recent operation records, newest first.
func (s *GORMStore) ListOperations(ctx context.Context, limit int) ([]*models.Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	var results []*models.Operation
	err := s.db.WithContext(ctx).
		Preload("User").
		Order("locked_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// PruneOperations deletes terminal operation records older than the cutoff.
// Active rows are never touched.
func (s *GORMStore) PruneOperations(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status <> ? AND locked_at < ?", models.StatusActive, cutoff).
		Delete(&models.Operation{})
	return result.RowsAffected, result.Error
}

// ============================================
// LAST OPERATION (single row, id=1)
// ============================================

// SetLastOperation upserts the single last_operation row for the status
// endpoint.
func (s *GORMStore) SetLastOperation(ctx context.Context, username string, op models.OperationType, service models.ServiceType, timestamp time.Time, fileCount int) error {
	row := models.LastOperation{
		ID:        models.LastOperationRowID,
		Username:  &username,
		Operation: &op,
		Service:   &service,
		Timestamp: &timestamp,
		FileCount: &fileCount,
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// GetLastOperation returns the single last_operation row, or nil if no
// operation has completed yet.
func (s *GORMStore) GetLastOperation(ctx context.Context) (*models.LastOperation, error) {
	var row models.LastOperation
	err := s.db.WithContext(ctx).Where("id = ?", models.LastOperationRowID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
