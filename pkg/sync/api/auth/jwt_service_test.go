package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versesync/versesync/pkg/sync/models"
)

const testSecret = "test-secret-key-for-testing-minimum-32-chars"

func testUser() *models.User {
	roleID := uint(2)
	return &models.User{
		ID:       "user-123",
		Username: "alice",
		Enabled:  true,
		RoleID:   &roleID,
		Role: &models.Role{
			Name: models.MemberRoleName,
			Permissions: []models.Permission{
				{Name: models.PermissionPush},
				{Name: models.PermissionPull},
			},
		},
	}
}

func newTestService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	return svc
}

func TestNewJWTService_SecretTooShort(t *testing.T) {
	_, err := NewJWTService(JWTConfig{Secret: "short"})
	assert.ErrorIs(t, err, ErrInvalidSecretLength)
}

func TestGenerateTokenPair(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64((24 * time.Hour).Seconds()), pair.ExpiresIn)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), pair.ExpiresAt, time.Minute)
}

func TestValidateAccessToken(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)

	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, "versesync", claims.Issuer)
	assert.ElementsMatch(t, []string{models.PermissionPush, models.PermissionPull}, claims.Permissions)
}

func TestValidateAccessToken_RejectsRefreshToken(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRefreshToken(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	claims, err := svc.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, RefreshToken, claims.TokenType)

	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := newTestService(t)
	other, err := NewJWTService(JWTConfig{Secret: "another-secret-key-that-is-long-enough-too"})
	require.NoError(t, err)

	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	_, err = other.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{
		Secret:              testSecret,
		AccessTokenDuration: -time.Minute,
	})
	require.NoError(t, err)

	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestClaims_HasPermission(t *testing.T) {
	claims := &Claims{Permissions: []string{models.PermissionPush}}
	assert.True(t, claims.HasPermission(models.PermissionPush))
	assert.False(t, claims.HasPermission(models.PermissionReconcile))
	assert.False(t, claims.IsAdmin())

	adminClaims := &Claims{Permissions: []string{models.PermissionAdmin}}
	assert.True(t, adminClaims.HasPermission(models.PermissionReconcile))
	assert.True(t, adminClaims.IsAdmin())
}
