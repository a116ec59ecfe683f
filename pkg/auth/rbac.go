package auth

import (
	"fmt"
	"sync"
)

// Role represents a user role
type Role string

const (
	RoleMaster Role = "MASTER"
	RoleClient Role = "CLIENT"
)

// Permission represents a permission
type Permission string

const (
	// Dashboard permissions
	PermissionViewAllOrgs Permission = "dashboard:all_orgs"
	PermissionViewOwnOrg  Permission = "dashboard:own_org"

	// Upstream data permissions
	PermissionReadLicenseKeys   Permission = "license_keys:read"
	PermissionReadAllActivities Permission = "activities:read_all"
	PermissionAnyLicenseKey     Permission = "license_keys:any"
)

// RBACManager manages role-based access control
type RBACManager struct {
	mu              sync.RWMutex
	rolePermissions map[Role][]Permission
}

// NewRBACManager creates a new RBAC manager
func NewRBACManager() *RBACManager {
	manager := &RBACManager{
		rolePermissions: make(map[Role][]Permission),
	}
	manager.initializeDefaultRoles()
	return manager
}

// initializeDefaultRoles initializes default role permissions
func (m *RBACManager) initializeDefaultRoles() {
	// Master - every organization
	m.rolePermissions[RoleMaster] = []Permission{
		PermissionViewAllOrgs,
		PermissionViewOwnOrg,
		PermissionReadLicenseKeys,
		PermissionReadAllActivities,
		PermissionAnyLicenseKey,
	}

	// Client - own organization only
	m.rolePermissions[RoleClient] = []Permission{
		PermissionViewOwnOrg,
	}
}

// HasPermission checks if a role has a specific permission
func (m *RBACManager) HasPermission(role Role, permission Permission) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	permissions, exists := m.rolePermissions[role]
	if !exists {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// GetRolePermissions returns all permissions for a role
func (m *RBACManager) GetRolePermissions(role Role) []Permission {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if permissions, exists := m.rolePermissions[role]; exists {
		result := make([]Permission, len(permissions))
		copy(result, permissions)
		return result
	}
	return []Permission{}
}

// ValidateRole checks if a role is valid
func (m *RBACManager) ValidateRole(role string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.rolePermissions[Role(role)]; !exists {
		return fmt.Errorf("invalid role: %s", role)
	}
	return nil
}
