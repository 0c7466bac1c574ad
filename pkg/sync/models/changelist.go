package models

import "time"

// Changelist groups the revisions committed by a single transaction.
// A transaction that commits at least one upload or deletion creates exactly
// one changelist; read-only transactions create none.
type Changelist struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UserID      *string       `gorm:"size:36;index" json:"user_id,omitempty"`
	Operation   OperationType `gorm:"not null;size:32" json:"operation"`
	Description string        `gorm:"type:text" json:"description"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`

	User      *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Revisions []FileRevision `gorm:"foreignKey:ChangelistID" json:"revisions,omitempty"`
}

// TableName returns the table name for Changelist.
func (Changelist) TableName() string {
	return "changelists"
}
