package models

import (
	"fmt"
	"time"
)

// Permission names used by the authorization predicate. The admin permission
// implies every other permission.
const (
	PermissionAdmin     = "admin"
	PermissionPush      = "can_push"
	PermissionPull      = "can_pull"
	PermissionReconcile = "can_reconcile"
	PermissionViewFiles = "can_view_files"
)

// AllPermissions returns every known permission name with its description,
// in seeding order.
func AllPermissions() []Permission {
	return []Permission{
		{Name: PermissionAdmin, Description: "Full administrative access, implies all other permissions"},
		{Name: PermissionPush, Description: "Begin Push transactions and upload files"},
		{Name: PermissionPull, Description: "Begin Pull transactions and download files"},
		{Name: PermissionReconcile, Description: "Begin Reconcile transactions"},
		{Name: PermissionViewFiles, Description: "List files and revision history"},
	}
}

// User represents a sync user for authentication and authorization.
//
// Authorization is role-based: every user has exactly one role, and the role
// carries a set of permissions. A user whose role has the admin permission
// passes every permission check.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:255" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Enabled      bool       `gorm:"default:true" json:"enabled"`
	RoleID       *uint      `json:"role_id,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`

	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// Validate checks if the user has valid configuration.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// HasPermission checks whether the user's role grants the named permission.
// The admin permission implies every other permission. Requires Role and its
// Permissions to be loaded.
func (u *User) HasPermission(name string) bool {
	if u.Role == nil {
		return false
	}
	for _, p := range u.Role.Permissions {
		if p.Name == PermissionAdmin || p.Name == name {
			return true
		}
	}
	return false
}

// IsAdmin checks if the user's role carries the admin permission.
func (u *User) IsAdmin() bool {
	return u.HasPermission(PermissionAdmin)
}

// PermissionNames returns the names of the permissions the user's role
// grants, in storage order.
func (u *User) PermissionNames() []string {
	if u.Role == nil {
		return nil
	}
	names := make([]string, len(u.Role.Permissions))
	for i, p := range u.Role.Permissions {
		names[i] = p.Name
	}
	return names
}

// Role stores a named permission set for role-based access control.
type Role struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Description  string    `gorm:"size:255" json:"description,omitempty"`
	IsSystemRole bool      `gorm:"default:false" json:"is_system_role"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
}

// TableName returns the table name for Role.
func (Role) TableName() string {
	return "roles"
}

// HasPermission checks whether the role grants the named permission,
// with admin implying everything.
func (r *Role) HasPermission(name string) bool {
	for _, p := range r.Permissions {
		if p.Name == PermissionAdmin || p.Name == name {
			return true
		}
	}
	return false
}

// Permission stores a single grantable capability.
type Permission struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null;size:255" json:"name"`
	Description string `gorm:"size:255" json:"description,omitempty"`
}

// TableName returns the table name for Permission.
func (Permission) TableName() string {
	return "permissions"
}
