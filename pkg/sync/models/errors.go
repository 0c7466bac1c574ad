package models

import "errors"

// Common errors for sync and control plane operations.
var (
	// User errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")
	ErrUserDisabled  = errors.New("user account is disabled")

	// Role errors
	ErrRoleNotFound  = errors.New("role not found")
	ErrDuplicateRole = errors.New("role already exists")
	ErrSystemRole    = errors.New("system role cannot be modified")
	ErrRoleInUse     = errors.New("role is assigned to users")

	// Revision errors
	ErrRevisionNotFound = errors.New("revision not found")
	ErrFileNotFound     = errors.New("file not found")
	ErrFileDeleted      = errors.New("file is deleted")

	// Changelist errors
	ErrChangelistNotFound = errors.New("changelist not found")

	// Operation errors
	ErrOperationNotFound = errors.New("operation not found")

	// Path errors
	ErrInvalidPath = errors.New("invalid file path")
	ErrPathIgnored = errors.New("path matches an ignore pattern")

	// Transaction errors
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrTransactionCancelled = errors.New("transaction cancelled by admin")
	ErrLockHeld             = errors.New("sync lock is held by another operation")
	ErrServiceMismatch      = errors.New("path does not belong to the transaction service")

	// Setting errors
	ErrSettingNotFound = errors.New("setting not found")

	// Ignore pattern errors
	ErrPatternNotFound = errors.New("ignore pattern not found")

	// Permission errors
	ErrPermissionDenied = errors.New("permission denied")
)
