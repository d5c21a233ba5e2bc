// Package model defines domain entities for the service.
package model

import "time"

// Role determines what management operations a key may perform.
type Role string

const (
	// RoleUser may manage its own links and read its own stats.
	RoleUser Role = "user"
	// RoleAdmin may manage any link and read system-wide stats.
	RoleAdmin Role = "admin"
)

// APIKey is a credential for the management API. The redirect path is
// public and never consults keys.
type APIKey struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	KeyHash   string     `json:"-"` // Argon2id PHC string
	KeyPrefix string     `json:"key_prefix"`
	Role      Role       `json:"role"`
	Name      string     `json:"name"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsRevoked reports whether the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// AuthContext is the identity attached to a request after API key
// verification.
type AuthContext struct {
	KeyID   string
	OwnerID string
	Role    Role
}

// IsAdmin reports whether the authenticated key has the admin role.
func (a *AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}
