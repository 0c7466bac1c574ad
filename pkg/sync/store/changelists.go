package store

import (
	"context"

	"github.com/versesync/versesync/pkg/sync/models"
)

// ============================================
// CHANGELIST OPERATIONS
// ============================================

func (s *GORMStore) CreateChangelist(ctx context.Context, cl *models.Changelist) error {
	return s.db.WithContext(ctx).Create(cl).Error
}

func (s *GORMStore) GetChangelist(ctx context.Context, id uint) (*models.Changelist, error) {
	return getByField[models.Changelist](s.db, ctx, "id", id, models.ErrChangelistNotFound, "User", "Revisions")
}

// DeleteChangelist removes a changelist row. Used when an aborted commit
// leaves a changelist with no surviving revisions.
func (s *GORMStore) DeleteChangelist(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Changelist{}, id).Error
}

// ListChangelists returns the most recent changelists, newest first.
func (s *GORMStore) ListChangelists(ctx context.Context, limit int) ([]*models.Changelist, error) {
	if limit <= 0 {
		limit = 50
	}
	var results []*models.Changelist
	err := s.db.WithContext(ctx).
		Preload("User").
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
