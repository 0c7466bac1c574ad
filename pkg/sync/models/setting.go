package models

import "time"

// Setting stores system-wide key-value settings.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// Setting keys consumed by the engine and API. All runtime tunables live in
// the settings table so they can be changed without a restart.
const (
	SettingLockTimeoutSeconds       = "lock_timeout_seconds"
	SettingMinLockTimeoutSeconds    = "min_lock_timeout_seconds"
	SettingMaxRevisions             = "max_revisions"
	SettingJWTExpirationHours       = "jwt_expiration_hours"
	SettingLogRetentionDays         = "log_retention_days"
	SettingClientDownloadsPath      = "client_downloads_path"
	SettingLatestClientVersion      = "latest_client_version"
	SettingClientExecutablePath     = "client_executable_path"
	SettingReconcileRespectsDeletes = "reconcile_respects_deletes"
)

// DefaultSettings returns the rows seeded into the settings table on first
// boot. Existing rows are never overwritten.
func DefaultSettings() []Setting {
	return []Setting{
		{Key: SettingLockTimeoutSeconds, Value: "300"},
		{Key: SettingMinLockTimeoutSeconds, Value: "300"},
		{Key: SettingMaxRevisions, Value: "10"},
		{Key: SettingJWTExpirationHours, Value: "24"},
		{Key: SettingLogRetentionDays, Value: "30"},
		{Key: SettingClientDownloadsPath, Value: ""},
		{Key: SettingLatestClientVersion, Value: ""},
		{Key: SettingClientExecutablePath, Value: ""},
		{Key: SettingReconcileRespectsDeletes, Value: "false"},
	}
}
