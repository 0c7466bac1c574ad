package models

import "time"

// Operation records one sync transaction and doubles as lock history: a row
// with status "active" corresponds to the held lock, and terminal rows keep
// the audit trail.
type Operation struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      *string         `gorm:"size:36;index" json:"user_id,omitempty"`
	Operation   OperationType   `gorm:"not null;size:32" json:"operation"`
	Service     ServiceType     `gorm:"not null;size:32" json:"service"`
	Status      OperationStatus `gorm:"not null;size:32;index" json:"status"`
	LockedAt    time.Time       `gorm:"not null" json:"locked_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	FilesPulled *int            `json:"files_pulled,omitempty"`
	FilesPushed *int            `json:"files_pushed,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName returns the table name for Operation.
func (Operation) TableName() string {
	return "operations"
}

// LastOperation is a single-row table (ID always 1) recording the most
// recently completed operation for the status endpoint.
type LastOperation struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  *string        `gorm:"size:255" json:"username,omitempty"`
	Operation *OperationType `gorm:"size:32" json:"operation,omitempty"`
	Service   *ServiceType   `gorm:"size:32" json:"service,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	FileCount *int           `json:"file_count,omitempty"`
}

// TableName returns the table name for LastOperation.
func (LastOperation) TableName() string {
	return "last_operation"
}

// LastOperationRowID is the fixed primary key of the single last_operation row.
const LastOperationRowID uint = 1
