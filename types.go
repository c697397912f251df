package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetName() string
	GetEmail() string
	GetRole() UserRole
	GetAuthProvider() AuthProvider
	GetIsTwoFactorEnabled() bool
	GetIssuedAt() *time.Time
}

// SessionIdentity is the display identity pushed into an active session
// after the account record changes.
type SessionIdentity struct {
	Name               string
	Email              string
	IsTwoFactorEnabled bool
	Role               UserRole
}

// SessionDirectory resolves the caller session for the current request
type SessionDirectory interface {
	CurrentSession(ctx context.Context) (Session, error)
	RefreshSession(ctx context.Context, identity SessionIdentity) error
}

// AccountChanges lists the fields to persist. Nil fields are left untouched.
type AccountChanges struct {
	Email              *string
	PasswordHash       *string
	IsTwoFactorEnabled *bool
}

// IsEmpty reports whether there is nothing to write
func (c AccountChanges) IsEmpty() bool {
	return c.Email == nil && c.PasswordHash == nil && c.IsTwoFactorEnabled == nil
}

// AccountStore ensure we have a store to retrieve and update accounts.
// Lookups return ErrAccountNotFound when there is no matching record.
type AccountStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id uuid.UUID, changes AccountChanges) (*User, error)
}

// TokenIssuer creates verification tokens bound to a target email
type TokenIssuer interface {
	IssueVerificationToken(ctx context.Context, userID uuid.UUID, email string) (*VerificationToken, error)
}

// MailDispatcher delivers verification emails
type MailDispatcher interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
}

// CredentialHasher hashes and verifies passwords
type CredentialHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetContextKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetPasswordHashCost() int
	GetVerificationTokenTTL() time.Duration
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args) }
func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args) }

func (defLogger) print(level, msg string, args []any) {
	if len(args) == 0 {
		fmt.Printf("[%s] AUTH %s\n", level, msg)
		return
	}
	fmt.Printf("[%s] AUTH %s %v\n", level, msg, args)
}

func resolveLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
