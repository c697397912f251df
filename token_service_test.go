package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-authninja"
)

type staticConfig struct{}

func (staticConfig) GetSigningKey() string                  { return "config-signing-key-0123456789" }
func (staticConfig) GetContextKey() string                  { return "user" }
func (staticConfig) GetTokenExpiration() int                { return 2 }
func (staticConfig) GetIssuer() string                      { return "config-issuer" }
func (staticConfig) GetAudience() []string                  { return []string{"config-audience"} }
func (staticConfig) GetPasswordHashCost() int               { return 10 }
func (staticConfig) GetVerificationTokenTTL() time.Duration { return time.Hour }

func newTestSession() *auth.SessionObject {
	return &auth.SessionObject{
		UserID:             uuid.NewString(),
		Name:               "Alice",
		Email:              "alice@example.com",
		Role:               auth.RoleAdmin,
		AuthProvider:       auth.ProviderCredentials,
		IsTwoFactorEnabled: true,
	}
}

func TestNewTokenService(t *testing.T) {
	t.Run("defaults expiration", func(t *testing.T) {
		service := auth.NewTokenService([]byte("key"), 0, "issuer", nil, nil)
		assert.Equal(t, 24*time.Hour, service.Expiration())
	})

	t.Run("from config", func(t *testing.T) {
		service := auth.NewTokenServiceFromConfig(staticConfig{}, nopLogger{})
		assert.Equal(t, 2*time.Hour, service.Expiration())

		token, err := service.Generate(newTestSession())
		require.NoError(t, err)

		session, err := service.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "config-issuer", session.Issuer)
		assert.Equal(t, []string{"config-audience"}, session.Audience)
	})
}

func TestTokenService_RoundTrip(t *testing.T) {
	service := auth.NewTokenService([]byte("test-signing-key"), 24, "test-issuer", []string{"test-audience"}, nopLogger{})
	original := newTestSession()

	token, err := service.Generate(original)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	session, err := service.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, original.UserID, session.UserID)
	assert.Equal(t, original.Name, session.Name)
	assert.Equal(t, original.Email, session.Email)
	assert.Equal(t, original.Role, session.Role)
	assert.Equal(t, original.AuthProvider, session.AuthProvider)
	assert.True(t, session.IsTwoFactorEnabled)
	require.NotNil(t, session.IssuedAt)
	require.NotNil(t, session.ExpirationDate)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *session.ExpirationDate, time.Minute)
}

func TestTokenService_Generate(t *testing.T) {
	service := auth.NewTokenService([]byte("test-signing-key"), 1, "test-issuer", nil, nopLogger{})

	_, err := service.Generate(nil)
	assert.Error(t, err)
}

func TestTokenService_Validate(t *testing.T) {
	key := []byte("test-signing-key")
	service := auth.NewTokenService(key, 1, "test-issuer", []string{"test-audience"}, nopLogger{})

	sign := func(t *testing.T, method jwt.SigningMethod, claims *auth.SessionClaims, signKey any) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(signKey)
		require.NoError(t, err)
		return token
	}

	validClaims := func() *auth.SessionClaims {
		now := time.Now()
		return &auth.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   uuid.NewString(),
				Issuer:    "test-issuer",
				Audience:  jwt.ClaimStrings{"test-audience"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			Email: "alice@example.com",
		}
	}

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

		_, err := service.Validate(sign(t, jwt.SigningMethodHS256, claims, key))
		assert.ErrorIs(t, err, auth.ErrTokenExpired)
		assert.True(t, auth.IsTokenExpiredError(err))
	})

	t.Run("wrong signing key", func(t *testing.T) {
		_, err := service.Validate(sign(t, jwt.SigningMethodHS256, validClaims(), []byte("other-key")))
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := validClaims()
		claims.Issuer = "someone-else"

		_, err := service.Validate(sign(t, jwt.SigningMethodHS256, claims, key))
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := validClaims()
		claims.Audience = jwt.ClaimStrings{"another-app"}

		_, err := service.Validate(sign(t, jwt.SigningMethodHS256, claims, key))
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		logger := &MockLogger{}
		logger.On("Error", "token service found unexpected signing method", mock.Anything).Return()

		strict := auth.NewTokenService(key, 1, "test-issuer", []string{"test-audience"}, logger)
		token := sign(t, jwt.SigningMethodNone, validClaims(), jwt.UnsafeAllowNoneSignatureType)

		_, err := strict.Validate(token)
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
		logger.AssertExpectations(t)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.Validate("not.a.jwt")
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
		assert.True(t, auth.IsMalformedError(err))
	})
}
