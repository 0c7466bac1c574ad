package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/versesync/versesync/pkg/sync/models"
)

// ============================================
// FILE REVISION OPERATIONS
// ============================================
//
// The highest revision number for a (service, path) pair is the current
// state of the file. Listings return only those maxima; history queries
// return every revision.

// ListCurrentFiles returns the current (highest) revision row for every path
// in the service. Tombstones are excluded unless includeDeleted is set.
func (s *GORMStore) ListCurrentFiles(ctx context.Context, service models.ServiceType, includeDeleted bool) ([]*models.FileRevision, error) {
	sub := s.db.WithContext(ctx).
		Model(&models.FileRevision{}).
		Select("path, MAX(revision) AS max_revision").
		Where("service = ?", service).
		Group("path")

	q := s.db.WithContext(ctx).
		Model(&models.FileRevision{}).
		Joins("JOIN (?) AS current ON file_revisions.path = current.path AND file_revisions.revision = current.max_revision", sub).
		Where("file_revisions.service = ?", service)

	if !includeDeleted {
		q = q.Where("file_revisions.is_deleted = ?", false)
	}

	var results []*models.FileRevision
	if err := q.Order("file_revisions.path").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetCurrentFile returns the highest revision row for a path, tombstone or
// not. Returns models.ErrFileNotFound if the path has no revisions at all.
func (s *GORMStore) GetCurrentFile(ctx context.Context, service models.ServiceType, path string) (*models.FileRevision, error) {
	var rev models.FileRevision
	err := s.db.WithContext(ctx).
		Where("service = ? AND path = ?", service, path).
		Order("revision DESC").
		First(&rev).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &rev, nil
}

// GetRevision returns one specific revision of a path.
func (s *GORMStore) GetRevision(ctx context.Context, service models.ServiceType, path string, revision int) (*models.FileRevision, error) {
	var rev models.FileRevision
	err := s.db.WithContext(ctx).
		Where("service = ? AND path = ? AND revision = ?", service, path, revision).
		First(&rev).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrRevisionNotFound)
	}
	return &rev, nil
}

// ListRevisions returns every revision of a path, newest first. Returns
// models.ErrFileNotFound when the path has no revisions.
func (s *GORMStore) ListRevisions(ctx context.Context, service models.ServiceType, path string) ([]*models.FileRevision, error) {
	var revs []*models.FileRevision
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("service = ? AND path = ?", service, path).
		Order("revision DESC").
		Find(&revs).Error
	if err != nil {
		return nil, err
	}
	if len(revs) == 0 {
		return nil, models.ErrFileNotFound
	}
	return revs, nil
}

// NextRevision returns the revision number the next write to the path should
// use: 0 for the first write, MAX(revision)+1 afterwards.
func (s *GORMStore) NextRevision(ctx context.Context, service models.ServiceType, path string) (int, error) {
	var max *int
	err := s.db.WithContext(ctx).
		Model(&models.FileRevision{}).
		Select("MAX(revision)").
		Where("service = ? AND path = ?", service, path).
		Scan(&max).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

// CreateFileRevision inserts a new revision row. The (service, path,
// revision) triple is unique; the engine serializes writes per path so the
// constraint only trips on genuine bugs.
func (s *GORMStore) CreateFileRevision(ctx context.Context, rev *models.FileRevision) error {
	return s.db.WithContext(ctx).Create(rev).Error
}

// DeleteFileRevision removes one revision row by primary key. Used by
// retention pruning after the blob is gone.
func (s *GORMStore) DeleteFileRevision(ctx context.Context, id uint) error {
	return deleteByField[models.FileRevision](s.db, ctx, "id", id, models.ErrRevisionNotFound)
}

// ExcessRevisions returns the oldest revisions of a path beyond the
// retention limit, newest first. maxKeep is the total number of revisions to
// retain; the current (highest) revision is never included in the result.
func (s *GORMStore) ExcessRevisions(ctx context.Context, service models.ServiceType, path string, maxKeep int) ([]*models.FileRevision, error) {
	if maxKeep < 1 {
		maxKeep = 1
	}
	var revs []*models.FileRevision
	err := s.db.WithContext(ctx).
		Where("service = ? AND path = ?", service, path).
		Order("revision DESC").
		Find(&revs).Error
	if err != nil {
		return nil, err
	}
	if len(revs) <= maxKeep {
		return nil, nil
	}
	return revs[maxKeep:], nil
}

// CountRevisions returns how many non-current revisions a path has.
func (s *GORMStore) CountRevisions(ctx context.Context, service models.ServiceType, path string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.FileRevision{}).
		Where("service = ? AND path = ?", service, path).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return total - 1, nil
}
