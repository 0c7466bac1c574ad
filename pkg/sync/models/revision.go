package models

import "time"

// FileRevision records one immutable revision of a file within a service
// tree. The highest revision number for a (service, path) pair is the
// current state; a revision with IsDeleted set is a tombstone and carries no
// hash or size.
type FileRevision struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Service      ServiceType `gorm:"not null;size:32;index:idx_revisions_service_path_revision,priority:1;uniqueIndex:uniq_revisions_service_path_revision,priority:1" json:"service"`
	Path         string      `gorm:"not null;size:1024;index:idx_revisions_service_path_revision,priority:2;uniqueIndex:uniq_revisions_service_path_revision,priority:2" json:"path"`
	Revision     int         `gorm:"not null;default:0;index:idx_revisions_service_path_revision,priority:3;uniqueIndex:uniq_revisions_service_path_revision,priority:3" json:"revision"`
	Hash         *string     `gorm:"size:64" json:"hash,omitempty"`
	Size         *int64      `json:"size,omitempty"`
	IsDeleted    bool        `gorm:"default:false;index" json:"is_deleted"`
	ModifiedAt   time.Time   `gorm:"not null" json:"modified_at"`
	UserID       *string     `gorm:"size:36;index" json:"user_id,omitempty"`
	ChangelistID *uint       `gorm:"index" json:"changelist_id,omitempty"`

	User       *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Changelist *Changelist `gorm:"foreignKey:ChangelistID" json:"changelist,omitempty"`
}

// TableName returns the table name for FileRevision.
func (FileRevision) TableName() string {
	return "file_revisions"
}

// HashString returns the revision hash, or "" for tombstones.
func (r *FileRevision) HashString() string {
	if r.Hash == nil {
		return ""
	}
	return *r.Hash
}

// SizeBytes returns the revision size, or 0 for tombstones.
func (r *FileRevision) SizeBytes() int64 {
	if r.Size == nil {
		return 0
	}
	return *r.Size
}
