package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/versesync/versesync/pkg/sync/models"
)

// ============================================
// USER OPERATIONS
// ============================================

func (s *GORMStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "username", username, models.ErrUserNotFound, "Role.Permissions")
}

func (s *GORMStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound, "Role.Permissions")
}

func (s *GORMStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return listAll[models.User](s.db, ctx, "Role.Permissions")
}

func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	user.CreatedAt = time.Now()
	return createWithID(s.db, ctx, user, func(u *models.User, id string) { u.ID = id }, user.ID, models.ErrDuplicateUser)
}

func (s *GORMStore) UpdateUser(ctx context.Context, user *models.User) error {
	// Check if user exists first
	var existing models.User
	if err := s.db.WithContext(ctx).Where("id = ?", user.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, models.ErrUserNotFound)
	}

	// Update specific fields using Select to handle pointers properly
	return s.db.WithContext(ctx).
		Model(&existing).
		Select("Username", "Enabled", "RoleID").
		Updates(user).Error
}

func (s *GORMStore) DeleteUser(ctx context.Context, username string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			return convertNotFoundError(err, models.ErrUserNotFound)
		}

		// Revisions, changelists and operations keep their rows with the
		// user reference nulled, preserving history.
		if err := tx.Model(&models.FileRevision{}).Where("user_id = ?", user.ID).Update("user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Changelist{}).Where("user_id = ?", user.ID).Update("user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Operation{}).Where("user_id = ?", user.ID).Update("user_id", nil).Error; err != nil {
			return err
		}

		return tx.Delete(&user).Error
	})
}

func (s *GORMStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Update("password_hash", passwordHash)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GORMStore) UpdateLastLogin(ctx context.Context, username string, timestamp time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Update("last_login", timestamp)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GORMStore) ValidateCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Enabled {
		return nil, models.ErrUserDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	return user, nil
}

// ============================================
// ROLE OPERATIONS
// ============================================

func (s *GORMStore) GetRole(ctx context.Context, name string) (*models.Role, error) {
	return getByField[models.Role](s.db, ctx, "name", name, models.ErrRoleNotFound, "Permissions")
}

func (s *GORMStore) ListRoles(ctx context.Context) ([]*models.Role, error) {
	return listAll[models.Role](s.db, ctx, "Permissions")
}

func (s *GORMStore) CreateRole(ctx context.Context, role *models.Role) error {
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicateRole
		}
		return err
	}
	return nil
}

func (s *GORMStore) DeleteRole(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.Where("name = ?", name).First(&role).Error; err != nil {
			return convertNotFoundError(err, models.ErrRoleNotFound)
		}
		if role.IsSystemRole {
			return models.ErrSystemRole
		}

		var assigned int64
		if err := tx.Model(&models.User{}).Where("role_id = ?", role.ID).Count(&assigned).Error; err != nil {
			return err
		}
		if assigned > 0 {
			return models.ErrRoleInUse
		}

		if err := tx.Model(&role).Association("Permissions").Clear(); err != nil {
			return err
		}
		return tx.Delete(&role).Error
	})
}

// SetRolePermissions replaces a role's permission set with the named
// permissions. System roles cannot be modified.
func (s *GORMStore) SetRolePermissions(ctx context.Context, name string, permissionNames []string) (*models.Role, error) {
	var role models.Role
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrRoleNotFound)
	}
	if role.IsSystemRole {
		return nil, models.ErrSystemRole
	}

	perms := make([]models.Permission, 0, len(permissionNames))
	for _, pname := range permissionNames {
		var stored models.Permission
		if err := s.db.WithContext(ctx).Where("name = ?", pname).First(&stored).Error; err != nil {
			return nil, fmt.Errorf("unknown permission %q", pname)
		}
		perms = append(perms, stored)
	}

	if err := s.db.WithContext(ctx).Model(&role).Association("Permissions").Replace(perms); err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

// EnsureDefaultRoles seeds the permission catalogue and the admin/member
// system roles. Existing rows are left untouched, so the seeding is safe to
// run on every startup.
func (s *GORMStore) EnsureDefaultRoles(ctx context.Context) error {
	for _, perm := range models.AllPermissions() {
		var existing models.Permission
		err := s.db.WithContext(ctx).Where("name = ?", perm.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := s.db.WithContext(ctx).Create(&perm).Error; err != nil {
			return fmt.Errorf("failed to create permission %q: %w", perm.Name, err)
		}
	}

	for _, role := range models.DefaultRoles() {
		var existing models.Role
		err := s.db.WithContext(ctx).Where("name = ?", role.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Attach the already-seeded permission rows by name so the join
		// table references the catalogue instead of creating duplicates.
		perms := make([]models.Permission, 0, len(role.Permissions))
		for _, p := range role.Permissions {
			var stored models.Permission
			if err := s.db.WithContext(ctx).Where("name = ?", p.Name).First(&stored).Error; err != nil {
				return fmt.Errorf("failed to look up permission %q: %w", p.Name, err)
			}
			perms = append(perms, stored)
		}
		role.Permissions = perms

		if err := s.db.WithContext(ctx).Create(&role).Error; err != nil {
			return fmt.Errorf("failed to create role %q: %w", role.Name, err)
		}
	}

	return nil
}

// ============================================
// ADMIN INITIALIZATION
// ============================================

// EnsureAdminUser creates the bootstrap admin account if it does not exist.
// Returns the generated password (to be printed once) or "" if the admin
// already existed.
func (s *GORMStore) EnsureAdminUser(ctx context.Context) (string, error) {
	// Check if admin exists
	_, err := s.GetUser(ctx, models.AdminUsername)
	if err == nil {
		return "", nil // Admin already exists
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return "", err // Unexpected error
	}

	adminRole, err := s.GetRole(ctx, models.AdminRoleName)
	if err != nil {
		return "", fmt.Errorf("admin role missing: %w", err)
	}

	// Generate or get password from environment
	password, err := models.GetOrGenerateAdminPassword()
	if err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}

	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	admin := models.DefaultAdminUser(passwordHash, adminRole.ID)
	if _, err := s.CreateUser(ctx, admin); err != nil {
		return "", fmt.Errorf("failed to create admin user: %w", err)
	}

	return password, nil
}

// IsAdminInitialized reports whether the bootstrap admin account exists.
func (s *GORMStore) IsAdminInitialized(ctx context.Context) (bool, error) {
	_, err := s.GetUser(ctx, models.AdminUsername)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrUserNotFound) {
		return false, nil
	}
	return false, err
}
