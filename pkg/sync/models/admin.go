package models

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	// AdminUsername is the reserved username for the system administrator.
	AdminUsername = "admin"

	// EnvAdminInitialPassword is the environment variable that can be used
	// to set the initial admin password. If not set, a random password is generated.
	EnvAdminInitialPassword = "VERSESYNC_ADMIN_INITIAL_PASSWORD"

	// AdminRoleName is the seeded role carrying the admin permission.
	AdminRoleName = "admin"

	// MemberRoleName is the seeded role for regular sync users.
	MemberRoleName = "member"
)

// DefaultRoles returns the roles seeded on first boot. The admin role grants
// everything via the admin permission; the member role grants the full sync
// surface but no administration.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:         AdminRoleName,
			Description:  "Full administrative access",
			IsSystemRole: true,
			Permissions:  []Permission{{Name: PermissionAdmin}},
		},
		{
			Name:         MemberRoleName,
			Description:  "Regular sync user",
			IsSystemRole: true,
			Permissions: []Permission{
				{Name: PermissionPush},
				{Name: PermissionPull},
				{Name: PermissionReconcile},
				{Name: PermissionViewFiles},
			},
		},
	}
}

// DefaultAdminUser creates a new admin user with the given password hash and
// role. The caller is expected to print the generated password exactly once.
func DefaultAdminUser(passwordHash string, roleID uint) *User {
	return &User{
		ID:           uuid.New().String(),
		Username:     AdminUsername,
		PasswordHash: passwordHash,
		Enabled:      true,
		RoleID:       &roleID,
		CreatedAt:    time.Now(),
	}
}

// GetOrGenerateAdminPassword returns the admin password from the environment
// variable if set, otherwise generates a cryptographically secure random password.
// The generated password is 24 characters of URL-safe base64.
func GetOrGenerateAdminPassword() (string, error) {
	if pw := os.Getenv(EnvAdminInitialPassword); pw != "" {
		return pw, nil
	}
	return GenerateRandomPassword()
}

// GenerateRandomPassword generates a cryptographically secure random password.
// Returns a 24-character URL-safe base64 string (18 bytes of randomness).
func GenerateRandomPassword() (string, error) {
	b := make([]byte, 18)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
