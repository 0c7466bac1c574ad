package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/versesync/versesync/pkg/sync/models"
)

// ============================================
// SETTINGS OPERATIONS
// ============================================

func (s *GORMStore) GetSetting(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

// GetSettingInt returns the integer value of a setting, or fallback when the
// setting is missing or not a number.
func (s *GORMStore) GetSettingInt(ctx context.Context, key string, fallback int) (int, error) {
	value, err := s.GetSetting(ctx, key)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback, nil
	}
	return n, nil
}

// GetSettingBool returns the boolean value of a setting, or fallback when the
// setting is missing or not parseable.
func (s *GORMStore) GetSettingBool(ctx context.Context, key string, fallback bool) (bool, error) {
	value, err := s.GetSetting(ctx, key)
	if err != nil {
		return false, err
	}
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, nil
	}
	return b, nil
}

func (s *GORMStore) SetSetting(ctx context.Context, key, value string) error {
	setting := models.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&setting).Error
}

func (s *GORMStore) DeleteSetting(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Setting{}).Error
}

func (s *GORMStore) ListSettings(ctx context.Context) ([]*models.Setting, error) {
	return listAll[models.Setting](s.db, ctx)
}

// EnsureDefaultSettings inserts any missing default settings rows. Existing
// values are never overwritten.
func (s *GORMStore) EnsureDefaultSettings(ctx context.Context) error {
	for _, def := range models.DefaultSettings() {
		var existing models.Setting
		err := s.db.WithContext(ctx).Where("key = ?", def.Key).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := s.db.WithContext(ctx).Create(&def).Error; err != nil {
			return err
		}
	}
	return nil
}
