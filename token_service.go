package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims is the JWT payload of a session cookie
type SessionClaims struct {
	jwt.RegisteredClaims
	Name               string       `json:"name,omitempty"`
	Email              string       `json:"email,omitempty"`
	Role               UserRole     `json:"role,omitempty"`
	AuthProvider       AuthProvider `json:"provider,omitempty"`
	IsTwoFactorEnabled bool         `json:"two_factor,omitempty"`
}

// TokenService signs and validates session tokens
type TokenService struct {
	signingKey      []byte
	tokenExpiration time.Duration
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewTokenService creates a new TokenService instance.
// tokenExpiration is expressed in hours.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience []string, logger Logger) *TokenService {
	if tokenExpiration <= 0 {
		tokenExpiration = 24
	}
	return &TokenService{
		signingKey:      signingKey,
		tokenExpiration: time.Duration(tokenExpiration) * time.Hour,
		issuer:          issuer,
		audience:        audience,
		logger:          resolveLogger(logger),
	}
}

// NewTokenServiceFromConfig creates a TokenService from auth options
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenService {
	return NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetTokenExpiration(),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		logger,
	)
}

// Expiration returns the session lifetime
func (ts *TokenService) Expiration() time.Duration {
	return ts.tokenExpiration
}

// Generate signs a token for the given session
func (ts *TokenService) Generate(session *SessionObject) (string, error) {
	if session == nil {
		return "", goerrors.New("session must not be nil", goerrors.CategoryInternal)
	}

	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   session.UserID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.tokenExpiration)),
		},
		Name:               session.Name,
		Email:              session.Email,
		Role:               session.Role,
		AuthProvider:       session.AuthProvider,
		IsTwoFactorEnabled: session.IsTwoFactorEnabled,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning the session
func (ts *TokenService) Validate(tokenString string) (*SessionObject, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service found unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrUnableToDecodeSession
	}

	session := &SessionObject{
		UserID:             claims.Subject,
		Name:               claims.Name,
		Email:              claims.Email,
		Role:               claims.Role,
		AuthProvider:       claims.AuthProvider,
		IsTwoFactorEnabled: claims.IsTwoFactorEnabled,
		Audience:           claims.Audience,
		Issuer:             claims.Issuer,
	}

	if claims.IssuedAt != nil {
		issuedAt := claims.IssuedAt.Time
		session.IssuedAt = &issuedAt
	}

	if claims.ExpiresAt != nil {
		expiresAt := claims.ExpiresAt.Time
		session.ExpirationDate = &expiresAt
	}

	return session, nil
}
