// Package auth holds the role model, the authorization gate and the session
// cookie codec. Every permission decision in the portal flows through
// Authorize so the full policy is readable in one table.
package auth

import "errors"

// Role is the numeric role stored on users.role_id.
type Role int

const (
	RoleRootAdmin   Role = 1 // platform operator, sees every tenant
	RoleTenantAdmin Role = 2 // one customer account, owns its inventory
	RoleSubUser     Role = 3 // limited login created by a tenant admin
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleRootAdmin || r == RoleTenantAdmin || r == RoleSubUser
}

// SessionRole is the string role name carried inside the session payload.
// Admin roles share a name; the frontend only distinguishes admin vs customer.
func (r Role) SessionRole() string {
	switch r {
	case RoleRootAdmin, RoleTenantAdmin:
		return "admin"
	case RoleSubUser:
		return "customer"
	default:
		return ""
	}
}

// Operation names one privileged action a handler can perform.
type Operation string

const (
	OpListAllTenants     Operation = "tenants.list_all"
	OpListOwnTenants     Operation = "tenants.list_own"
	OpToggleTenantModule Operation = "tenants.toggle_module"
	OpDeleteTenant       Operation = "tenants.delete"
	OpCreateTenantAdmin  Operation = "users.create_tenant_admin"
	OpCreateSubUser      Operation = "users.create_sub_user"
	OpListChildren       Operation = "users.list_children"
	OpUpdateChild        Operation = "users.update_child"
	OpDeleteChild        Operation = "users.delete_child"
	OpManageInventory    Operation = "inventory.manage"
	OpUploadFile         Operation = "files.upload"
)

// Sentinel errors for the two ways a request can fail the gate.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// policy is the whole permission model. An operation missing a role, or a
// role mapped to false, is denied.
var policy = map[Operation]map[Role]bool{
	OpListAllTenants:     {RoleRootAdmin: true},
	OpListOwnTenants:     {RoleTenantAdmin: true},
	OpToggleTenantModule: {RoleRootAdmin: true},
	OpDeleteTenant:       {RoleRootAdmin: true},
	OpCreateTenantAdmin:  {RoleRootAdmin: true},
	OpCreateSubUser:      {RoleTenantAdmin: true},
	OpListChildren:       {RoleTenantAdmin: true},
	OpUpdateChild:        {RoleTenantAdmin: true},
	OpDeleteChild:        {RoleTenantAdmin: true},
	OpManageInventory:    {RoleTenantAdmin: true},
	OpUploadFile:         {RoleRootAdmin: true, RoleTenantAdmin: true},
}

// Authorize returns nil when role may perform op, ErrForbidden when it may
// not, and ErrUnauthenticated for an unknown role.
func Authorize(role Role, op Operation) error {
	if !role.Valid() {
		return ErrUnauthenticated
	}
	if policy[op][role] {
		return nil
	}
	return ErrForbidden
}

// CreatableRole returns the single role a creator is allowed to mint accounts
// for: root admins create tenant admins, tenant admins create sub-users.
// ok is false for roles that cannot create anyone.
func CreatableRole(creator Role) (Role, bool) {
	switch creator {
	case RoleRootAdmin:
		return RoleTenantAdmin, true
	case RoleTenantAdmin:
		return RoleSubUser, true
	default:
		return 0, false
	}
}
