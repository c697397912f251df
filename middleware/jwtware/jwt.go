package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup       = "header:" + router.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// TokenValidator turns a raw token into the session value S.
type TokenValidator[S any] interface {
	Validate(tokenString string) (S, error)
}

// ValidationListener is invoked after a token has been validated and before
// the wrapped handler runs.
type ValidationListener[S any] func(ctx router.Context, session S) error

type Config[S any] struct {
	Filter       func(router.Context) bool
	ErrorHandler router.ErrorHandler

	// TokenValidator is required
	TokenValidator TokenValidator[S]

	ContextKey  string
	TokenLookup string
	AuthScheme  string

	// Optional lets requests without a valid token through. The handler
	// then runs without a session.
	Optional bool

	// InvalidTokenHandler runs in optional mode when a token was present
	// but did not validate.
	InvalidTokenHandler func(ctx router.Context, err error)

	// ContextEnricher propagates the session to the standard context.
	ContextEnricher func(c context.Context, session S) context.Context

	ValidationListeners []ValidationListener[S]

	// AfterHandler runs once the wrapped handler returned, before the
	// response is flushed. It only runs for requests carrying a session.
	AfterHandler func(ctx router.Context) error
}

func New[S any](config ...Config[S]) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			raw, err := ExtractRawTokenFromContext(ctx, extractors)
			if err != nil {
				return cfg.fail(ctx, next, err, false)
			}

			session, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				return cfg.fail(ctx, next, err, true)
			}

			if err := cfg.runValidationListeners(ctx, session); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, session)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), session))
			}

			err = next(ctx)

			if cfg.AfterHandler != nil {
				if aerr := cfg.AfterHandler(ctx); aerr != nil && err == nil {
					err = aerr
				}
			}

			return err
		}
	}
}

func (cfg *Config[S]) fail(ctx router.Context, next router.HandlerFunc, err error, present bool) error {
	if !cfg.Optional {
		return cfg.ErrorHandler(ctx, err)
	}

	if present && cfg.InvalidTokenHandler != nil {
		cfg.InvalidTokenHandler(ctx, err)
	}

	return next(ctx)
}

func ExtractRawTokenFromContext(ctx router.Context, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error = ErrJWTMissingOrMalformed

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig[S any](config ...Config[S]) (cfg Config[S]) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if errors.Is(err, ErrJWTMissingOrMalformed) {
				return c.Status(router.StatusBadRequest).SendString(ErrJWTMissingOrMalformed.Error())
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config[S]) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config[S]) runValidationListeners(ctx router.Context, session S) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

// GetExtractors parses a lookup such as "cookie:session,header:Authorization"
func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 && strings.TrimSpace(authSchemes[0]) != "" {
		authScheme = strings.TrimSpace(authSchemes[0])
	}

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, jwtFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(name))
		case "param":
			extractors = append(extractors, jwtFromParam(name))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(name))
		}
	}

	return extractors
}

type JWTExtractor func(c router.Context) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromParam returns a function that extracts token from the url param string.
func jwtFromParam(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Param(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

