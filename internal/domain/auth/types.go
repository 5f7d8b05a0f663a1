// Package auth contains the domain types and logic for authentication.
package auth

import "time"

// Role represents a portal user role for authorization purposes.
type Role string

const (
	// RoleAdmin has access to the admin area of the portal.
	RoleAdmin Role = "admin"
	// RoleStaff has access to the staff area of the portal.
	RoleStaff Role = "staff"
	// RoleCustomer is a customer account; it has no portal area of its own.
	RoleCustomer Role = "customer"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleCustomer:
		return true
	default:
		return false
	}
}

// Identity represents an authenticated portal user.
type Identity struct {
	// ID is the unique identifier for this identity.
	ID string `json:"id"`
	// Name is the display name for this identity.
	Name string `json:"name"`
	// Email is the login email address.
	Email string `json:"email"`
	// Phone is an optional contact number.
	Phone string `json:"phone,omitempty"`
	// Role is the single role assigned to this identity.
	Role Role `json:"role"`
	// Avatar is an optional avatar image URL.
	Avatar string `json:"avatar,omitempty"`
	// CreatedAt is when the account was created (RFC 3339, as reported upstream).
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// HasRole returns true if the identity has the specified role.
func (i *Identity) HasRole(role Role) bool {
	return i != nil && i.Role == role
}
