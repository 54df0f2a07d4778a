package auth

import "slices"

type PermissionChecker interface {
	HasPermission(userPermissions []string, permission string) bool
	HasAnyPermission(userPermissions []string, requiredPermissions []string) bool
	IsAdmin(userPermissions []string) bool
}

type DefaultPermissionChecker struct{}

func NewPermissionChecker() PermissionChecker {
	return &DefaultPermissionChecker{}
}

// HasPermission reports whether the permission is granted. admin grants all.
func (c *DefaultPermissionChecker) HasPermission(userPermissions []string, permission string) bool {
	return c.HasAnyPermission(userPermissions, []string{permission, PermAdmin})
}

func (c *DefaultPermissionChecker) HasAnyPermission(userPermissions []string, requiredPermissions []string) bool {
	for _, userPerm := range userPermissions {
		if slices.Contains(requiredPermissions, userPerm) {
			return true
		}
	}
	return false
}

func (c *DefaultPermissionChecker) IsAdmin(userPermissions []string) bool {
	return slices.Contains(userPermissions, PermAdmin)
}
