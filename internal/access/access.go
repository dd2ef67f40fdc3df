// Package access implements the role and permission model for the Sendaka
// platform.
//
// Authorization model:
// - Every caller carries exactly one role out of a fixed, closed set.
// - Routes are gated by named permission groups (capability sets).
// - Any admin sub-role satisfies a bare "admin" group entry (the admin family).
// - Regional managers are additionally confined to their assigned region.
//
// All tables in this package are static configuration: populated at package
// init, never mutated afterwards. Every function here is a pure computation
// over those tables and is safe for concurrent use.
package access

import "fmt"

// Role is a caller's role claim. The set is closed; anything else is treated
// as no role at all.
type Role string

// Base roles (customer-facing surfaces).
const (
	RoleUser        Role = "user"
	RoleDiaspora    Role = "diaspora"
	RoleMerchant    Role = "merchant"
	RoleDistributor Role = "distributor"
)

// Admin sub-roles (console surfaces).
const (
	RoleSuperAdmin      Role = "super_admin"
	RoleAdmin           Role = "admin"
	RoleRegionalManager Role = "regional_manager"
	RoleSupportAgent    Role = "support_agent"
	RoleInvestor        Role = "investor"
	RoleAuditor         Role = "auditor"
	RoleBroadcaster     Role = "broadcaster"
)

// allRoles is the closed role set.
var allRoles = map[Role]bool{
	RoleUser:            true,
	RoleDiaspora:        true,
	RoleMerchant:        true,
	RoleDistributor:     true,
	RoleSuperAdmin:      true,
	RoleAdmin:           true,
	RoleRegionalManager: true,
	RoleSupportAgent:    true,
	RoleInvestor:        true,
	RoleAuditor:         true,
	RoleBroadcaster:     true,
}

// adminFamily is the set of roles that satisfy a bare "admin" group entry.
// This is the single place the family relation lives; no call site may
// re-implement it.
var adminFamily = map[Role]bool{
	RoleSuperAdmin:      true,
	RoleAdmin:           true,
	RoleRegionalManager: true,
	RoleSupportAgent:    true,
	RoleInvestor:        true,
	RoleAuditor:         true,
	RoleBroadcaster:     true,
}

// ValidRole reports whether r belongs to the closed role set.
func ValidRole(r Role) bool {
	return allRoles[r]
}

// IsAdminFamily reports whether r is an admin sub-role.
func IsAdminFamily(r Role) bool {
	return adminFamily[r]
}

// Group names a capability set that a route or operation requires.
type Group string

const (
	GroupAdmin          Group = "ADMIN"
	GroupMerchant       Group = "MERCHANT"
	GroupDistributor    Group = "DISTRIBUTOR"
	GroupDiaspora       Group = "DIASPORA"
	GroupUser           Group = "USER"
	GroupWalletUser     Group = "WALLET_USER"
	GroupAny            Group = "ANY"
	GroupSeniorAdmin    Group = "SENIOR_ADMIN"
	GroupSuperAdminOnly Group = "SUPER_ADMIN_ONLY"
	GroupAuditAdmin     Group = "AUDIT_ADMIN"
	GroupCompliance     Group = "COMPLIANCE"
	GroupBroadcast      Group = "BROADCAST"
	GroupAnalytics      Group = "ANALYTICS"
	GroupKYCApprovers   Group = "KYC_APPROVERS"
	GroupFloatManagers  Group = "FLOAT_MANAGERS"
	GroupTraining       Group = "TRAINING"
)

// groups is the permission matrix. A bare RoleAdmin entry expands to the whole
// admin family via IsPermitted; an empty member list means unrestricted.
var groups = map[Group][]Role{
	GroupAdmin:          {RoleAdmin},
	GroupMerchant:       {RoleMerchant, RoleAdmin},
	GroupDistributor:    {RoleDistributor, RoleAdmin},
	GroupDiaspora:       {RoleDiaspora, RoleAdmin},
	GroupUser:           {RoleUser, RoleAdmin},
	GroupWalletUser:     {RoleUser, RoleDiaspora, RoleAdmin},
	GroupAny:            {},
	GroupSeniorAdmin:    {RoleSuperAdmin, RoleAdmin},
	GroupSuperAdminOnly: {RoleSuperAdmin},
	GroupAuditAdmin:     {RoleAuditor, RoleSuperAdmin, RoleAdmin, RoleRegionalManager},
	GroupCompliance:     {RoleSuperAdmin, RoleAdmin, RoleRegionalManager, RoleAuditor},
	GroupBroadcast:      {RoleBroadcaster, RoleSuperAdmin, RoleAdmin, RoleRegionalManager},
	GroupAnalytics:      {RoleInvestor, RoleAuditor, RoleSuperAdmin, RoleAdmin, RoleRegionalManager},
	GroupKYCApprovers:   {RoleSuperAdmin, RoleAdmin, RoleRegionalManager},
	GroupFloatManagers:  {RoleSuperAdmin, RoleAdmin},
	GroupTraining: {
		RoleSuperAdmin, RoleAdmin, RoleRegionalManager, RoleSupportAgent,
		RoleInvestor, RoleAuditor, RoleBroadcaster, RoleUser, RoleMerchant,
		RoleDistributor, RoleDiaspora,
	},
}

// KnownGroup reports whether g exists in the permission matrix.
func KnownGroup(g Group) bool {
	_, ok := groups[g]
	return ok
}

// IsPermitted reports whether role satisfies the named group.
//
// A role is permitted if it is literally listed in the group, or if the group
// lists RoleAdmin and the role belongs to the admin family. An empty group is
// unrestricted. Unknown roles are never permitted (fail closed); an unknown
// group is a configuration error and panics; route registration and tests
// catch it long before production traffic does.
func IsPermitted(role Role, group Group) bool {
	members, ok := groups[group]
	if !ok {
		panic(fmt.Sprintf("access: unknown permission group %q", group))
	}
	if len(members) == 0 {
		return true // unrestricted
	}
	for _, m := range members {
		if m == role {
			return true
		}
		if m == RoleAdmin && adminFamily[role] {
			return true
		}
	}
	return false
}
