package models

import "time"

// IgnorePattern stores one gitignore-style pattern applied to every file
// operation on the server side. Matching paths are invisible to listings,
// uploads and reconcile plans.
type IgnorePattern struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Pattern     string    `gorm:"not null;size:1024" json:"pattern"`
	Description string    `gorm:"size:255" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for IgnorePattern.
func (IgnorePattern) TableName() string {
	return "ignore_patterns"
}
