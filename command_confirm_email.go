package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ConfirmEmailMessage struct {
	Token      string `json:"token" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Email verification token"`
	OnResponse func(resp *ConfirmEmailResponse)
}

func (m ConfirmEmailMessage) Type() string { return "user.email.confirm" }

type ConfirmEmailResponse struct {
	User    *User
	Email   string
	Message string
}

// ConfirmEmailHandler consumes a verification token and writes the verified
// email to the account that requested it.
type ConfirmEmailHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewConfirmEmailHandler(repo RepositoryManager) *ConfirmEmailHandler {
	return &ConfirmEmailHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithActivitySink sets the sink used to emit verification events.
func (h *ConfirmEmailHandler) WithActivitySink(sink ActivitySink) *ConfirmEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ConfirmEmailHandler) WithLogger(logger Logger) *ConfirmEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock overrides the clock used for expiration checks
func (h *ConfirmEmailHandler) WithClock(now func() time.Time) *ConfirmEmailHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *ConfirmEmailHandler) Execute(ctx context.Context, event ConfirmEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email confirmation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ConfirmEmailHandler) execute(ctx context.Context, event ConfirmEmailMessage) error {
	if event.Token == "" {
		return ErrTokenNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User
	var expired bool

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tokens := h.repo.VerificationTokens()

		record, err := tokens.GetByTokenTx(ctx, tx, event.Token)
		if err != nil {
			return err
		}

		if record.IsExpired(h.now()) {
			expired = true
			return tokens.DeleteTx(ctx, tx, record.ID)
		}

		owner, err := h.resolveOwner(ctx, tx, record)
		if err != nil {
			return err
		}

		holder, err := h.repo.Users().FindByEmailTx(ctx, tx, record.Email)
		if err != nil && !goerrors.Is(err, ErrAccountNotFound) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}
		if err == nil && holder.ID != owner.ID {
			return ErrEmailInUse
		}

		user, err = h.repo.Users().MarkEmailVerifiedTx(ctx, tx, owner.ID, record.Email, h.now())
		if err != nil {
			return err
		}

		return tokens.DeleteTx(ctx, tx, record.ID)
	})

	if err != nil {
		return wrapDependency(err, "failed to confirm email")
	}

	if expired {
		return ErrTokenExpired
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email": user.Email,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&ConfirmEmailResponse{
			User:    user,
			Email:   user.Email,
			Message: "Email verified!",
		})
	}

	return nil
}

// resolveOwner finds the account a token belongs to: the requesting account
// for email changes, or the account holding the email for sign up tokens.
func (h *ConfirmEmailHandler) resolveOwner(ctx context.Context, tx bun.IDB, record *VerificationToken) (*User, error) {
	if record.UserID != nil {
		return h.repo.Users().FindByIDTx(ctx, tx, *record.UserID)
	}
	return h.repo.Users().FindByEmailTx(ctx, tx, record.Email)
}
