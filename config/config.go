package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-authninja/mailer"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Addr     string `env:"AUTHNINJA_ADDR" envDefault:":3000"`
	Database string `env:"AUTHNINJA_DATABASE" envDefault:"file:authninja.db?cache=shared"`
	Debug    bool   `env:"AUTHNINJA_DEBUG" envDefault:"false"`

	LogLevel  string `env:"AUTHNINJA_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"AUTHNINJA_LOG_PRETTY" envDefault:"false"`

	SigningKey      string        `env:"AUTHNINJA_SIGNING_KEY"`
	ContextKey      string        `env:"AUTHNINJA_CONTEXT_KEY" envDefault:"user"`
	CookieName      string        `env:"AUTHNINJA_COOKIE_NAME" envDefault:"authninja_session"`
	SecureCookie    bool          `env:"AUTHNINJA_SECURE_COOKIE" envDefault:"false"`
	TokenExpiration int           `env:"AUTHNINJA_TOKEN_EXPIRATION" envDefault:"24"`
	Issuer          string        `env:"AUTHNINJA_ISSUER" envDefault:"authninja"`
	Audience        []string      `env:"AUTHNINJA_AUDIENCE" envSeparator:"," envDefault:"authninja"`
	HashCost        int           `env:"AUTHNINJA_PASSWORD_HASH_COST" envDefault:"10"`
	VerificationTTL time.Duration `env:"AUTHNINJA_VERIFICATION_TTL" envDefault:"1h"`
	PurgeInterval   time.Duration `env:"AUTHNINJA_PURGE_INTERVAL" envDefault:"15m"`

	SeedEmail    string `env:"AUTHNINJA_SEED_EMAIL"`
	SeedPassword string `env:"AUTHNINJA_SEED_PASSWORD"`

	Mail mailer.Config
}

// Load parses the environment and validates the result
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse environment variables")
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}

	return &cfg, nil
}

// Validate will run validation rules
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.Database, validation.Required),
		validation.Field(&c.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.TokenExpiration, validation.Required, validation.Min(1)),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.HashCost, validation.Min(4), validation.Max(31)),
		validation.Field(&c.VerificationTTL, validation.Required),
		validation.Field(&c.SeedEmail, is.Email),
	)
}

func (c Config) GetSigningKey() string {
	return c.SigningKey
}

func (c Config) GetContextKey() string {
	return c.ContextKey
}

func (c Config) GetTokenExpiration() int {
	return c.TokenExpiration
}

func (c Config) GetIssuer() string {
	return c.Issuer
}

func (c Config) GetAudience() []string {
	return c.Audience
}

func (c Config) GetPasswordHashCost() int {
	return c.HashCost
}

func (c Config) GetVerificationTokenTTL() time.Duration {
	return c.VerificationTTL
}
