package auth_test

import (
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-authninja"
)

func TestIsTokenExpiredError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: auth.ErrTokenExpired, want: true},
		{name: "jwt message", err: errors.New("token has invalid claims: token is expired"), want: true},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.IsTokenExpiredError(tt.err))
		})
	}
}

func TestIsMalformedError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel", err: auth.ErrTokenMalformed, want: true},
		{name: "middleware message", err: errors.New("missing or malformed JWT"), want: true},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.IsMalformedError(tt.err))
		})
	}
}

func TestStructuredErrorProperties(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category goerrors.Category
		code     int
		textCode string
	}{
		{
			name:     "unauthorized",
			err:      auth.ErrUnauthorized,
			category: goerrors.CategoryAuth,
			code:     goerrors.CodeUnauthorized,
			textCode: auth.TextCodeUnauthorized,
		},
		{
			name:     "email in use",
			err:      auth.ErrEmailInUse,
			category: goerrors.CategoryConflict,
			code:     goerrors.CodeConflict,
			textCode: auth.TextCodeEmailInUse,
		},
		{
			name:     "invalid credential",
			err:      auth.ErrInvalidCredential,
			category: goerrors.CategoryAuth,
			code:     goerrors.CodeBadRequest,
			textCode: auth.TextCodeInvalidCreds,
		},
		{
			name:     "account not found",
			err:      auth.ErrAccountNotFound,
			category: goerrors.CategoryNotFound,
			code:     goerrors.CodeNotFound,
			textCode: auth.TextCodeAccountNotFound,
		},
		{
			name:     "token expired",
			err:      auth.ErrTokenExpired,
			category: goerrors.CategoryValidation,
			code:     goerrors.CodeBadRequest,
			textCode: auth.TextCodeTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var richErr *goerrors.Error
			require.True(t, goerrors.As(tt.err, &richErr))
			assert.Equal(t, tt.category, richErr.Category)
			assert.Equal(t, tt.code, richErr.Code)
			assert.Equal(t, tt.textCode, richErr.TextCode)
		})
	}
}
