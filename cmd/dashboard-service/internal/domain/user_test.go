package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdashboard/pkg/auth"
)

func TestNewUser(t *testing.T) {
	u, err := NewUser("alice", "alice@example.com", "s3cret", "", "org_1")
	require.NoError(t, err)

	assert.Contains(t, u.ID, "usr_")
	assert.Equal(t, auth.RoleClient, u.Role)
	assert.True(t, u.IsActive)
	assert.NotEqual(t, "s3cret", u.PasswordHash)
	assert.True(t, u.VerifyPassword("s3cret"))
	assert.False(t, u.VerifyPassword("wrong"))

	_, err = NewUser("bob", "", "pw", auth.Role("ADMIN"), "")
	assert.Error(t, err)
	_, err = NewUser(" ", "", "pw", "", "")
	assert.Error(t, err)
}

func TestUser_IsMaster(t *testing.T) {
	u := &User{Role: auth.RoleClient}
	assert.False(t, u.IsMaster())
	assert.Equal(t, auth.RoleClient, u.EffectiveRole())

	u.IsSuperuser = true
	assert.True(t, u.IsMaster())
	assert.Equal(t, auth.RoleMaster, u.EffectiveRole())

	assert.True(t, (&User{Role: auth.RoleMaster}).IsMaster())
}

func TestUser_OrgSlug(t *testing.T) {
	u := &User{}
	assert.Empty(t, u.OrgSlug())
	u.Org = &Organization{Slug: "acme"}
	assert.Equal(t, "acme", u.OrgSlug())
}

func TestNewOrganization(t *testing.T) {
	org, err := NewOrganization("Acme Motors", "acme-motors", " LK-9 ")
	require.NoError(t, err)
	assert.Contains(t, org.ID, "org_")
	assert.Equal(t, "LK-9", org.LicenseKey)

	_, err = NewOrganization("Acme", "Acme Motors", "")
	assert.Error(t, err)
	_, err = NewOrganization("", "acme", "")
	assert.Error(t, err)
}
