package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleUser is the default role for new accounts
	RoleUser UserRole = "user"
	// RoleAdmin can manage other accounts
	RoleAdmin UserRole = "admin"
)

// AuthProvider tells who manages an account's identity
type AuthProvider string

const (
	// ProviderCredentials accounts sign in with a local password
	ProviderCredentials AuthProvider = "credentials"
	// ProviderOAuth accounts are linked to an external identity provider
	ProviderOAuth AuthProvider = "oauth"
)

// IsExternal reports whether the identity is managed outside this service
func (p AuthProvider) IsExternal() bool {
	return p == ProviderOAuth
}

// User is the user model
type User struct {
	bun.BaseModel      `bun:"table:users,alias:usr"`
	ID                 uuid.UUID    `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Name               string       `bun:"name" json:"name,omitempty"`
	Email              string       `bun:"email,notnull,unique" json:"email,omitempty"`
	EmailVerifiedAt    *time.Time   `bun:"email_verified_at,nullzero" json:"email_verified_at,omitempty"`
	PasswordHash       *string      `bun:"password_hash" json:"-"`
	IsTwoFactorEnabled bool         `bun:"is_two_factor_enabled,notnull" json:"is_two_factor_enabled"`
	Role               UserRole     `bun:"user_role,notnull" json:"user_role,omitempty"`
	AuthProvider       AuthProvider `bun:"auth_provider,notnull" json:"auth_provider,omitempty"`
	CreatedAt          *time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time   `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPassword reports whether the account has a local credential
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// SessionIdentity returns the fields we materialize in a session
func (u *User) SessionIdentity() SessionIdentity {
	return SessionIdentity{
		Name:               u.Name,
		Email:              u.Email,
		IsTwoFactorEnabled: u.IsTwoFactorEnabled,
		Role:               u.Role,
	}
}

// VerificationToken binds a candidate email to a single use token
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vtk"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,type:uuid" json:"user_id,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at,omitempty"`
}

// IsExpired reports whether the token is past its expiration at the given time
func (t *VerificationToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
