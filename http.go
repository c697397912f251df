package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-router"

	"github.com/goliatone/go-authninja/middleware/jwtware"
)

// DefaultSessionCookie is the cookie holding the session JWT
const DefaultSessionCookie = "authninja_session"

// SessionMiddleware resolves the session cookie into the request context and
// re-signs it when the session was refreshed while handling the request.
type SessionMiddleware struct {
	tokens     *TokenService
	cookieName string
	contextKey string
	secure     bool
	logger     Logger
}

type SessionMiddlewareOption func(*SessionMiddleware)

// WithSessionCookieName overrides DefaultSessionCookie
func WithSessionCookieName(name string) SessionMiddlewareOption {
	return func(m *SessionMiddleware) {
		if name != "" {
			m.cookieName = name
		}
	}
}

// WithSessionContextKey sets the locals key the session is stored under
func WithSessionContextKey(key string) SessionMiddlewareOption {
	return func(m *SessionMiddleware) {
		if key != "" {
			m.contextKey = key
		}
	}
}

// WithSecureCookie marks the session cookie as secure
func WithSecureCookie(secure bool) SessionMiddlewareOption {
	return func(m *SessionMiddleware) {
		m.secure = secure
	}
}

// WithSessionLogger overrides the logger used by the middleware
func WithSessionLogger(logger Logger) SessionMiddlewareOption {
	return func(m *SessionMiddleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewSessionMiddleware(tokens *TokenService, opts ...SessionMiddlewareOption) *SessionMiddleware {
	m := &SessionMiddleware{
		tokens:     tokens,
		cookieName: DefaultSessionCookie,
		contextKey: "user",
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Handler returns the router middleware. Requests without a valid cookie
// go through without a session.
func (m *SessionMiddleware) Handler() router.MiddlewareFunc {
	return jwtware.New(jwtware.Config[*SessionObject]{
		TokenValidator: m.tokens,
		TokenLookup:    "cookie:" + m.cookieName,
		ContextKey:     m.contextKey,
		Optional:       true,
		InvalidTokenHandler: func(c router.Context, err error) {
			m.logger.Debug("discarding invalid session cookie", "error", err)
			m.ClearSessionCookie(c)
		},
		ContextEnricher: func(ctx context.Context, session *SessionObject) context.Context {
			return WithSessionContext(ctx, session)
		},
		AfterHandler: m.resign,
	})
}

func (m *SessionMiddleware) resign(c router.Context) error {
	current, refreshed, ok := SessionFromContext(c.Context())
	if !ok || !refreshed || current == nil {
		return nil
	}

	if err := m.SetSessionCookie(c, current); err != nil {
		m.logger.Error("failed to re-sign refreshed session", "error", err)
	}
	return nil
}

// SetSessionCookie signs session and writes it as the session cookie
func (m *SessionMiddleware) SetSessionCookie(c router.Context, session *SessionObject) error {
	token, err := m.tokens.Generate(session)
	if err != nil {
		return err
	}

	c.Cookie(&router.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Expires:  time.Now().Add(m.tokens.Expiration()),
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: "Lax",
	})

	return nil
}

// ClearSessionCookie removes the session cookie
func (m *SessionMiddleware) ClearSessionCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: "Lax",
	})
}

// CookieName returns the session cookie name
func (m *SessionMiddleware) CookieName() string {
	return m.cookieName
}
