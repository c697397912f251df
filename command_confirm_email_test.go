package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-authninja"
)

func TestVerificationTokens_Issue(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	repo, db := newTestRepo(t, auth.WithVerificationTokenClock(func() time.Time { return now }))
	ctx := context.Background()

	user := createUser(t, repo, "alice@example.com", "secret-password")

	first, err := repo.VerificationTokens().IssueVerificationToken(ctx, user.ID, "alice.new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice.new@example.com", first.Email)
	assert.NotEmpty(t, first.Token)
	require.NotNil(t, first.UserID)
	assert.Equal(t, user.ID, *first.UserID)
	assert.True(t, first.ExpiresAt.Equal(now.Add(auth.DefaultVerificationTokenTTL)))

	second, err := repo.VerificationTokens().IssueVerificationToken(ctx, user.ID, "alice.new@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	count, err := db.NewSelect().
		Model((*auth.VerificationToken)(nil)).
		Where("email = ?", "alice.new@example.com").
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the latest token stays active")

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := repo.VerificationTokens().GetByTokenTx(ctx, tx, first.Token)
		return err
	})
	assert.ErrorIs(t, err, auth.ErrTokenNotFound)
}

func TestVerificationTokens_DeleteExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	repo, _ := newTestRepo(t,
		auth.WithVerificationTokenClock(func() time.Time { return now }),
		auth.WithVerificationTokenTTL(30*time.Minute),
	)
	ctx := context.Background()

	_, err := repo.VerificationTokens().IssueVerificationToken(ctx, uuid.Nil, "a@example.com")
	require.NoError(t, err)
	_, err = repo.VerificationTokens().IssueVerificationToken(ctx, uuid.Nil, "b@example.com")
	require.NoError(t, err)

	n, err := repo.VerificationTokens().DeleteExpired(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = repo.VerificationTokens().DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestConfirmEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("email change is applied to the requesting account", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		user := createUser(t, repo, "alice@example.com", "secret-password")

		token, err := repo.VerificationTokens().IssueVerificationToken(ctx, user.ID, "alice.new@example.com")
		require.NoError(t, err)

		var events []auth.ActivityEvent
		var resp *auth.ConfirmEmailResponse

		handler := auth.NewConfirmEmailHandler(repo).
			WithLogger(nopLogger{}).
			WithActivitySink(auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
				events = append(events, e)
				return nil
			}))

		err = handler.Execute(ctx, auth.ConfirmEmailMessage{
			Token:      token.Token,
			OnResponse: func(r *auth.ConfirmEmailResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.Equal(t, "Email verified!", resp.Message)
		assert.Equal(t, "alice.new@example.com", resp.Email)

		stored, err := repo.Users().FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice.new@example.com", stored.Email)
		assert.NotNil(t, stored.EmailVerifiedAt)

		require.Len(t, events, 1)
		assert.Equal(t, auth.ActivityEventEmailVerified, events[0].EventType)

		err = handler.Execute(ctx, auth.ConfirmEmailMessage{Token: token.Token})
		assert.ErrorIs(t, err, auth.ErrTokenNotFound, "tokens are single use")
	})

	t.Run("sign up token verifies the holder of the email", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		user := createUser(t, repo, "bob@example.com", "secret-password")

		token, err := repo.VerificationTokens().IssueVerificationToken(ctx, uuid.Nil, "bob@example.com")
		require.NoError(t, err)

		err = auth.NewConfirmEmailHandler(repo).WithLogger(nopLogger{}).
			Execute(ctx, auth.ConfirmEmailMessage{Token: token.Token})
		require.NoError(t, err)

		stored, err := repo.Users().FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.EmailVerifiedAt)
	})

	t.Run("expired token", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		user := createUser(t, repo, "carol@example.com", "secret-password")

		token, err := repo.VerificationTokens().IssueVerificationToken(ctx, user.ID, "carol.new@example.com")
		require.NoError(t, err)

		handler := auth.NewConfirmEmailHandler(repo).
			WithLogger(nopLogger{}).
			WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })

		err = handler.Execute(ctx, auth.ConfirmEmailMessage{Token: token.Token})
		assert.ErrorIs(t, err, auth.ErrTokenExpired)

		stored, err := repo.Users().FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "carol@example.com", stored.Email)

		err = handler.Execute(ctx, auth.ConfirmEmailMessage{Token: token.Token})
		assert.ErrorIs(t, err, auth.ErrTokenNotFound, "expired tokens are removed")
	})

	t.Run("email taken after the request", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		user := createUser(t, repo, "dan@example.com", "secret-password")

		token, err := repo.VerificationTokens().IssueVerificationToken(ctx, user.ID, "shared@example.com")
		require.NoError(t, err)

		createUser(t, repo, "shared@example.com", "secret-password")

		err = auth.NewConfirmEmailHandler(repo).WithLogger(nopLogger{}).
			Execute(ctx, auth.ConfirmEmailMessage{Token: token.Token})
		assert.ErrorIs(t, err, auth.ErrEmailInUse)

		stored, err := repo.Users().FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "dan@example.com", stored.Email)
	})

	t.Run("unknown and empty tokens", func(t *testing.T) {
		repo, _ := newTestRepo(t)
		handler := auth.NewConfirmEmailHandler(repo).WithLogger(nopLogger{})

		assert.ErrorIs(t, handler.Execute(ctx, auth.ConfirmEmailMessage{}), auth.ErrTokenNotFound)
		assert.ErrorIs(t, handler.Execute(ctx, auth.ConfirmEmailMessage{Token: uuid.NewString()}), auth.ErrTokenNotFound)
	})
}

func TestUpdateSettingsThenConfirm(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	user := createUser(t, repo, "alice@example.com", "secret-password")

	mailer := &MockMailer{}
	var sentToken string
	mailer.On("SendVerificationEmail", mock.Anything, "alice.new@example.com", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { sentToken = args.String(2) }).
		Return(nil).Once()

	handler := auth.NewUpdateSettingsHandler(
		auth.ContextSessionDirectory{},
		repo.Users(),
		repo.VerificationTokens(),
		mailer,
		nil,
	).WithLogger(nopLogger{})

	sessionCtx := auth.WithSessionContext(ctx, auth.NewSessionFromUser(user))

	outcome, err := handler.Apply(sessionCtx, auth.SettingsChangeRequest{Email: strPtr("alice.new@example.com")})
	require.NoError(t, err)
	assert.Equal(t, auth.OutcomeVerificationSent, outcome.Kind)
	require.NotEmpty(t, sentToken)

	stored, err := repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)

	err = auth.NewConfirmEmailHandler(repo).WithLogger(nopLogger{}).
		Execute(ctx, auth.ConfirmEmailMessage{Token: sentToken})
	require.NoError(t, err)

	stored, err = repo.Users().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice.new@example.com", stored.Email)
}
