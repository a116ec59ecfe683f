package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, expiresAt, err := m.GenerateAccessToken("usr_1", "alice", RoleClient, "acme")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleClient, claims.Role)
	assert.Equal(t, "acme", claims.OrgSlug)
}

func TestJWTManager_RejectsForeignAndExpired(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	other := NewJWTManager("other-secret", time.Hour)

	token, _, err := other.GenerateAccessToken("usr_1", "alice", RoleMaster, "")
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTManager("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err = expired.GenerateAccessToken("usr_1", "alice", RoleMaster, "")
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = m.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTManager_ShouldRenew(t *testing.T) {
	m := NewJWTManager("test-secret", 20*time.Minute)
	token, _, err := m.GenerateAccessToken("usr_1", "alice", RoleClient, "acme")
	require.NoError(t, err)
	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, m.ShouldRenew(claims))

	long := NewJWTManager("test-secret", 2*time.Hour)
	token, _, err = long.GenerateAccessToken("usr_1", "alice", RoleClient, "acme")
	require.NoError(t, err)
	claims, err = long.ValidateToken(token)
	require.NoError(t, err)
	assert.False(t, long.ShouldRenew(claims))
}

func TestRBAC(t *testing.T) {
	m := NewRBACManager()

	assert.True(t, m.HasPermission(RoleMaster, PermissionViewAllOrgs))
	assert.True(t, m.HasPermission(RoleMaster, PermissionReadLicenseKeys))
	assert.True(t, m.HasPermission(RoleClient, PermissionViewOwnOrg))
	assert.False(t, m.HasPermission(RoleClient, PermissionViewAllOrgs))
	assert.False(t, m.HasPermission(RoleClient, PermissionReadAllActivities))
	assert.False(t, m.HasPermission(Role("GUEST"), PermissionViewOwnOrg))

	assert.NoError(t, m.ValidateRole("CLIENT"))
	assert.Error(t, m.ValidateRole("admin"))
	assert.Len(t, m.GetRolePermissions(RoleClient), 1)
}
