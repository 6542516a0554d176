// Package auth models callers of the engine: who they are and which
// privileged capabilities their role grants.
package auth

import (
	"context"
	"strings"
)

// Role is the coarse role of a caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Capability is a privileged action.
type Capability string

const (
	// CapVerifyOrders allows settling processing orders.
	CapVerifyOrders Capability = "verify_orders"
	// CapViewAnyOrder allows reading orders owned by other users.
	CapViewAnyOrder Capability = "view_any_order"
)

var capabilities = map[Role][]Capability{
	RoleCustomer: nil,
	RoleStaff:    {CapVerifyOrders, CapViewAnyOrder},
	RoleAdmin:    {CapVerifyOrders, CapViewAnyOrder},
}

// ParseRole maps a stored role name onto a Role. Unknown names yield the
// unprivileged customer role.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := capabilities[r]; ok {
		return r
	}
	return RoleCustomer
}

// Principal is an authenticated caller.
type Principal struct {
	UserID int64
	Role   Role
}

// Can reports whether p's role grants c.
func (p Principal) Can(c Capability) bool {
	for _, granted := range capabilities[p.Role] {
		if granted == c {
			return true
		}
	}
	return false
}

// Owns reports whether p is the user identified by userID.
func (p Principal) Owns(userID int64) bool {
	return p.UserID != 0 && p.UserID == userID
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
