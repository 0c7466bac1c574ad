// Package models defines the database models and shared domain types for the
// sync server: users and roles, file revisions, changelists, operation
// records, settings and ignore patterns.
package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&User{},
		&Role{},
		&Permission{},
		&FileRevision{},
		&Changelist{},
		&Operation{},
		&LastOperation{},
		&Setting{},
		&IgnorePattern{},
	}
}
