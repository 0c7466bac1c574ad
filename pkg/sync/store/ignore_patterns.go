package store

import (
	"context"

	"github.com/versesync/versesync/pkg/sync/models"
)

// ============================================
// IGNORE PATTERN OPERATIONS
// ============================================

func (s *GORMStore) ListIgnorePatterns(ctx context.Context) ([]*models.IgnorePattern, error) {
	var results []*models.IgnorePattern
	err := s.db.WithContext(ctx).Order("id ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *GORMStore) CreateIgnorePattern(ctx context.Context, pattern *models.IgnorePattern) error {
	return s.db.WithContext(ctx).Create(pattern).Error
}

func (s *GORMStore) DeleteIgnorePattern(ctx context.Context, id uint) error {
	return deleteByField[models.IgnorePattern](s.db, ctx, "id", id, models.ErrPatternNotFound)
}
