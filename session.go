package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

type SessionObject struct {
	UserID             string       `json:"user_id,omitempty"`
	Name               string       `json:"name,omitempty"`
	Email              string       `json:"email,omitempty"`
	Role               UserRole     `json:"role,omitempty"`
	AuthProvider       AuthProvider `json:"auth_provider,omitempty"`
	IsTwoFactorEnabled bool         `json:"is_two_factor_enabled"`
	Audience           []string     `json:"audience,omitempty"`
	Issuer             string       `json:"issuer,omitempty"`
	IssuedAt           *time.Time   `json:"issued_at,omitempty"`
	ExpirationDate     *time.Time   `json:"expiration_date,omitempty"`
}

// NewSessionFromUser builds the session materialization of an account
func NewSessionFromUser(user *User) *SessionObject {
	return &SessionObject{
		UserID:             user.ID.String(),
		Name:               user.Name,
		Email:              user.Email,
		Role:               user.Role,
		AuthProvider:       user.AuthProvider,
		IsTwoFactorEnabled: user.IsTwoFactorEnabled,
	}
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetName() string {
	return s.Name
}

func (s *SessionObject) GetEmail() string {
	return s.Email
}

func (s *SessionObject) GetRole() UserRole {
	return s.Role
}

func (s *SessionObject) GetAuthProvider() AuthProvider {
	return s.AuthProvider
}

func (s *SessionObject) GetIsTwoFactorEnabled() bool {
	return s.IsTwoFactorEnabled
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

// Apply copies the display identity into the session
func (s *SessionObject) Apply(identity SessionIdentity) {
	s.Name = identity.Name
	s.Email = identity.Email
	s.IsTwoFactorEnabled = identity.IsTwoFactorEnabled
	s.Role = identity.Role
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s email=%s role=%s provider=%s 2fa=%t iss=%s iat=%s",
		s.UserID,
		s.Email,
		s.Role,
		s.AuthProvider,
		s.IsTwoFactorEnabled,
		s.Issuer,
		issuedAt,
	)
}

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// sessionHolder is the request scoped slot a directory reads from and
// writes refreshed identities to.
type sessionHolder struct {
	mu        sync.Mutex
	session   *SessionObject
	refreshed bool
}

// WithSessionContext attaches a session to the context. A nil session yields
// a context without a current session.
func WithSessionContext(ctx context.Context, session *SessionObject) context.Context {
	return context.WithValue(ctx, sessionCtxKey, &sessionHolder{session: session})
}

func holderFromContext(ctx context.Context) (*sessionHolder, bool) {
	holder, ok := ctx.Value(sessionCtxKey).(*sessionHolder)
	return holder, ok && holder != nil
}

// SessionFromContext returns the session attached to ctx and whether it
// was refreshed during the request.
func SessionFromContext(ctx context.Context) (*SessionObject, bool, bool) {
	holder, ok := holderFromContext(ctx)
	if !ok {
		return nil, false, false
	}

	holder.mu.Lock()
	defer holder.mu.Unlock()

	if holder.session == nil {
		return nil, false, false
	}

	s := *holder.session
	return &s, holder.refreshed, true
}

// ContextSessionDirectory implements SessionDirectory over the request context
type ContextSessionDirectory struct{}

var _ SessionDirectory = ContextSessionDirectory{}

func (ContextSessionDirectory) CurrentSession(ctx context.Context) (Session, error) {
	session, _, ok := SessionFromContext(ctx)
	if !ok {
		return nil, ErrUnableToFindSession
	}
	return session, nil
}

func (ContextSessionDirectory) RefreshSession(ctx context.Context, identity SessionIdentity) error {
	holder, ok := holderFromContext(ctx)
	if !ok {
		return ErrUnableToFindSession
	}

	holder.mu.Lock()
	defer holder.mu.Unlock()

	if holder.session == nil {
		return ErrUnableToFindSession
	}

	holder.session.Apply(identity)
	holder.refreshed = true
	return nil
}
