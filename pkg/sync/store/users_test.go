package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versesync/versesync/pkg/sync/models"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()

	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemberUser(t *testing.T, s *GORMStore, username string) *models.User {
	t.Helper()

	ctx := context.Background()
	role, err := s.GetRole(ctx, models.MemberRoleName)
	require.NoError(t, err)

	hash, err := models.HashPassword("correct-horse")
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
		RoleID:       &role.ID,
	}
	_, err = s.CreateUser(ctx, user)
	require.NoError(t, err)
	return user
}

func TestNew_SeedsDefaultRoles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admin, err := s.GetRole(ctx, models.AdminRoleName)
	require.NoError(t, err)
	assert.True(t, admin.IsSystemRole)
	assert.True(t, admin.HasPermission(models.PermissionPush))

	member, err := s.GetRole(ctx, models.MemberRoleName)
	require.NoError(t, err)
	assert.True(t, member.IsSystemRole)
	assert.True(t, member.HasPermission(models.PermissionPull))
	assert.False(t, member.HasPermission(models.PermissionAdmin))
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	newMemberUser(t, s, "alice")

	hash, err := models.HashPassword("another-pass")
	require.NoError(t, err)

	_, err = s.CreateUser(context.Background(), &models.User{
		ID:           uuid.New().String(),
		Username:     "alice",
		PasswordHash: hash,
		Enabled:      true,
	})
	assert.ErrorIs(t, err, models.ErrDuplicateUser)
}

func TestGetUser_PreloadsRolePermissions(t *testing.T) {
	s := newTestStore(t)
	newMemberUser(t, s, "alice")

	user, err := s.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, user.Role)
	assert.Equal(t, models.MemberRoleName, user.Role.Name)
	assert.NotEmpty(t, user.Role.Permissions)

	_, err = s.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestValidateCredentials(t *testing.T) {
	s := newTestStore(t)
	newMemberUser(t, s, "alice")
	ctx := context.Background()

	user, err := s.ValidateCredentials(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = s.ValidateCredentials(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	// Unknown users get the same error as a wrong password
	_, err = s.ValidateCredentials(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestValidateCredentials_DisabledUser(t *testing.T) {
	s := newTestStore(t)
	user := newMemberUser(t, s, "alice")
	ctx := context.Background()

	user.Enabled = false
	require.NoError(t, s.UpdateUser(ctx, user))

	_, err := s.ValidateCredentials(ctx, "alice", "correct-horse")
	assert.ErrorIs(t, err, models.ErrUserDisabled)
}

func TestUpdatePassword(t *testing.T) {
	s := newTestStore(t)
	newMemberUser(t, s, "alice")
	ctx := context.Background()

	hash, err := models.HashPassword("new-password")
	require.NoError(t, err)
	require.NoError(t, s.UpdatePassword(ctx, "alice", hash))

	_, err = s.ValidateCredentials(ctx, "alice", "new-password")
	assert.NoError(t, err)

	assert.ErrorIs(t, s.UpdatePassword(ctx, "nobody", hash), models.ErrUserNotFound)
}

func TestDeleteUser(t *testing.T) {
	s := newTestStore(t)
	newMemberUser(t, s, "alice")
	ctx := context.Background()

	require.NoError(t, s.DeleteUser(ctx, "alice"))
	_, err := s.GetUser(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	assert.ErrorIs(t, s.DeleteUser(ctx, "alice"), models.ErrUserNotFound)
}

func TestDeleteUser_PreservesHistory(t *testing.T) {
	s := newTestStore(t)
	user := newMemberUser(t, s, "alice")
	ctx := context.Background()

	hash := "abc"
	size := int64(3)
	require.NoError(t, s.CreateFileRevision(ctx, &models.FileRevision{
		Service: models.ServiceContemporary,
		Path:    "a.txt",
		Hash:    &hash,
		Size:    &size,
		UserID:  &user.ID,
	}))

	require.NoError(t, s.DeleteUser(ctx, "alice"))

	// The revision row survives with the author reference cleared
	rev, err := s.GetCurrentFile(ctx, models.ServiceContemporary, "a.txt")
	require.NoError(t, err)
	assert.Nil(t, rev.UserID)
}

func TestEnsureAdminUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	password, err := s.EnsureAdminUser(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, password)

	user, err := s.ValidateCredentials(ctx, models.AdminUsername, password)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin())

	// Already initialized: no new password
	password, err = s.EnsureAdminUser(ctx)
	require.NoError(t, err)
	assert.Empty(t, password)

	initialized, err := s.IsAdminInitialized(ctx)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestDeleteRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.DeleteRole(ctx, models.AdminRoleName), models.ErrSystemRole)
	assert.ErrorIs(t, s.DeleteRole(ctx, "nope"), models.ErrRoleNotFound)

	require.NoError(t, s.CreateRole(ctx, &models.Role{Name: "editor"}))
	role, err := s.GetRole(ctx, "editor")
	require.NoError(t, err)

	hash, err := models.HashPassword("some-password")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, &models.User{
		ID:           uuid.New().String(),
		Username:     "bob",
		PasswordHash: hash,
		Enabled:      true,
		RoleID:       &role.ID,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteRole(ctx, "editor"), models.ErrRoleInUse)

	require.NoError(t, s.DeleteUser(ctx, "bob"))
	require.NoError(t, s.DeleteRole(ctx, "editor"))
}

func TestSetRolePermissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRole(ctx, &models.Role{Name: "viewer"}))

	role, err := s.SetRolePermissions(ctx, "viewer", []string{models.PermissionPull, models.PermissionViewFiles})
	require.NoError(t, err)
	assert.Len(t, role.Permissions, 2)
	assert.True(t, role.HasPermission(models.PermissionViewFiles))
	assert.False(t, role.HasPermission(models.PermissionPush))

	_, err = s.SetRolePermissions(ctx, models.AdminRoleName, []string{models.PermissionPull})
	assert.ErrorIs(t, err, models.ErrSystemRole)

	_, err = s.SetRolePermissions(ctx, "viewer", []string{"can_fly"})
	assert.ErrorContains(t, err, "unknown permission")
}
