package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultVerificationTokenTTL is how long an email verification link is valid
const DefaultVerificationTokenTTL = time.Hour

// VerificationTokens stores verification tokens and implements TokenIssuer.
// Issuing a token for an email removes any unconsumed token for the same
// email, so there is at most one active token per address.
type VerificationTokens interface {
	TokenIssuer

	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*VerificationToken, error)
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type verificationTokens struct {
	db  *bun.DB
	ttl time.Duration
	now func() time.Time
}

var _ VerificationTokens = (*verificationTokens)(nil)

type VerificationTokensOption func(*verificationTokens)

// WithVerificationTokenTTL overrides the token lifetime
func WithVerificationTokenTTL(ttl time.Duration) VerificationTokensOption {
	return func(v *verificationTokens) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithVerificationTokenClock overrides the clock, used in tests
func WithVerificationTokenClock(now func() time.Time) VerificationTokensOption {
	return func(v *verificationTokens) {
		if now != nil {
			v.now = now
		}
	}
}

func NewVerificationTokensRepository(db *bun.DB, opts ...VerificationTokensOption) VerificationTokens {
	repo := &verificationTokens{
		db:  db,
		ttl: DefaultVerificationTokenTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (v *verificationTokens) IssueVerificationToken(ctx context.Context, userID uuid.UUID, email string) (*VerificationToken, error) {
	now := v.now()
	record := &VerificationToken{
		ID:        uuid.New(),
		Email:     email,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(v.ttl),
		CreatedAt: &now,
	}

	if userID != uuid.Nil {
		id := userID
		record.UserID = &id
	}

	err := v.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*VerificationToken)(nil)).
			Where("email = ?", email).
			Exec(ctx); err != nil {
			return err
		}

		_, err := tx.NewInsert().Model(record).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (v *verificationTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*VerificationToken, error) {
	record := &VerificationToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return record, nil
}

func (v *verificationTokens) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// DeleteExpired removes tokens that expired before now
func (v *verificationTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := v.db.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
