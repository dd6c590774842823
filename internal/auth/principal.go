package auth

import "fullsound/internal/models"

// Capability is a permission checked by route guards
type Capability string

const (
	CapOrdersReadOwn   Capability = "orders:read-own"
	CapOrdersWriteOwn  Capability = "orders:write-own"
	CapOrdersManage    Capability = "orders:manage"
	CapCatalogManage   Capability = "catalog:manage"
	CapPaymentsReadOwn Capability = "payments:read-own"
)

var roleCapabilities = map[models.Role][]Capability{
	models.RoleCustomer: {
		CapOrdersReadOwn,
		CapOrdersWriteOwn,
		CapPaymentsReadOwn,
	},
	models.RoleAdministrator: {
		CapOrdersReadOwn,
		CapOrdersWriteOwn,
		CapPaymentsReadOwn,
		CapOrdersManage,
		CapCatalogManage,
	},
}

// Principal is the authenticated caller
type Principal struct {
	UserID       int64
	Role         models.Role
	Capabilities map[Capability]bool
}

// NewPrincipal attaches the capability set of role; unknown roles get none
func NewPrincipal(userID int64, role models.Role) *Principal {
	caps := make(map[Capability]bool)
	for _, c := range roleCapabilities[role] {
		caps[c] = true
	}
	return &Principal{UserID: userID, Role: role, Capabilities: caps}
}

// Can reports whether the principal holds a capability
func (p *Principal) Can(c Capability) bool {
	return p != nil && p.Capabilities[c]
}

// CanAccessOrderOf reports whether the principal may see data owned by userID
func (p *Principal) CanAccessOrderOf(userID int64) bool {
	if p == nil {
		return false
	}
	return p.Can(CapOrdersManage) || (p.Can(CapOrdersReadOwn) && p.UserID == userID)
}
