package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SettingsChangeRequest holds the requested changes. A nil field is not
// requested; blank strings are treated as nil.
type SettingsChangeRequest struct {
	Email              *string `json:"email,omitempty"`
	CurrentPassword    *string `json:"password,omitempty"`
	NewPassword        *string `json:"new_password,omitempty"`
	IsTwoFactorEnabled *bool   `json:"is_two_factor_enabled,omitempty"`
}

func (r SettingsChangeRequest) normalize() SettingsChangeRequest {
	r.Email = presentString(r.Email)
	r.CurrentPassword = presentString(r.CurrentPassword)
	r.NewPassword = presentString(r.NewPassword)
	return r
}

// withoutProviderManagedFields drops the fields an external identity
// provider owns.
func (r SettingsChangeRequest) withoutProviderManagedFields() SettingsChangeRequest {
	r.Email = nil
	r.CurrentPassword = nil
	r.NewPassword = nil
	r.IsTwoFactorEnabled = nil
	return r
}

func presentString(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// OutcomeKind discriminates the result of a settings update
type OutcomeKind string

const (
	OutcomeVerificationSent  OutcomeKind = "verification_sent"
	OutcomeSettingsUpdated   OutcomeKind = "settings_updated"
	OutcomeUnauthorized      OutcomeKind = "unauthorized"
	OutcomeEmailInUse        OutcomeKind = "email_in_use"
	OutcomeInvalidCredential OutcomeKind = "invalid_credential"
)

var outcomeMessages = map[OutcomeKind]string{
	OutcomeVerificationSent:  "Verification email sent!",
	OutcomeSettingsUpdated:   "Settings Updated!",
	OutcomeUnauthorized:      "Unauthorized",
	OutcomeEmailInUse:        "Email already in use!",
	OutcomeInvalidCredential: "Incorrect password!",
}

var outcomeErrors = map[OutcomeKind]error{
	OutcomeUnauthorized:      ErrUnauthorized,
	OutcomeEmailInUse:        ErrEmailInUse,
	OutcomeInvalidCredential: ErrInvalidCredential,
}

// Outcome is the user facing result of a settings update
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message"`
}

func newOutcome(kind OutcomeKind) Outcome {
	return Outcome{Kind: kind, Message: outcomeMessages[kind]}
}

// Success reports whether the outcome is a success message
func (o Outcome) Success() bool {
	return o.Kind == OutcomeVerificationSent || o.Kind == OutcomeSettingsUpdated
}

// Err returns the sentinel error for failure outcomes, nil otherwise
func (o Outcome) Err() error {
	return outcomeErrors[o.Kind]
}

type UpdateSettingsMessage struct {
	Request    SettingsChangeRequest
	OnResponse func(resp *UpdateSettingsResponse)
}

func (m UpdateSettingsMessage) Type() string { return "user.settings.update" }

type UpdateSettingsResponse struct {
	Outcome Outcome
}

// UpdateSettingsHandler applies a settings change for the current session.
// It takes no locks: two overlapping calls for the same account race at the
// store, and the password check and rehash are not atomic with respect to a
// concurrent password change.
type UpdateSettingsHandler struct {
	sessions SessionDirectory
	accounts AccountStore
	tokens   TokenIssuer
	mailer   MailDispatcher
	hasher   CredentialHasher
	activity ActivitySink
	metrics  *SettingsMetrics
	logger   Logger
}

func NewUpdateSettingsHandler(
	sessions SessionDirectory,
	accounts AccountStore,
	tokens TokenIssuer,
	mailer MailDispatcher,
	hasher CredentialHasher,
) *UpdateSettingsHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(MinPasswordHashCost)
	}
	return &UpdateSettingsHandler{
		sessions: sessions,
		accounts: accounts,
		tokens:   tokens,
		mailer:   mailer,
		hasher:   hasher,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit settings events.
func (h *UpdateSettingsHandler) WithActivitySink(sink ActivitySink) *UpdateSettingsHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *UpdateSettingsHandler) WithLogger(logger Logger) *UpdateSettingsHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithMetrics sets the outcome counters
func (h *UpdateSettingsHandler) WithMetrics(metrics *SettingsMetrics) *UpdateSettingsHandler {
	h.metrics = metrics
	return h
}

func (h *UpdateSettingsHandler) Execute(ctx context.Context, event UpdateSettingsMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during settings update",
		)
	default:
	}

	outcome, err := h.Apply(ctx, event.Request)
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(&UpdateSettingsResponse{Outcome: outcome})
	}

	return nil
}

// Apply runs the settings workflow. Unauthorized, EmailInUse and
// InvalidCredential are returned as an Outcome with a nil error; a non nil
// error means a collaborator failed.
func (h *UpdateSettingsHandler) Apply(ctx context.Context, req SettingsChangeRequest) (Outcome, error) {
	outcome, err := h.apply(ctx, req)
	h.metrics.Observe(outcome, err)
	if err != nil {
		h.logger.Error("settings update failed", "error", err)
	}
	return outcome, err
}

func (h *UpdateSettingsHandler) apply(ctx context.Context, req SettingsChangeRequest) (Outcome, error) {
	user, outcome, err := h.resolveAccount(ctx)
	if err != nil || user == nil {
		return outcome, err
	}

	req = req.normalize()
	if user.AuthProvider.IsExternal() {
		req = req.withoutProviderManagedFields()
	}

	if req.Email != nil && *req.Email != user.Email {
		return h.requestEmailChange(ctx, user, *req.Email)
	}

	changes := AccountChanges{
		Email:              req.Email,
		IsTwoFactorEnabled: req.IsTwoFactorEnabled,
	}

	if req.CurrentPassword != nil && req.NewPassword != nil && user.HasPassword() {
		if err := h.hasher.ComparePasswordAndHash(*req.CurrentPassword, *user.PasswordHash); err != nil {
			if goerrors.Is(err, ErrMismatchedHashAndPassword) {
				h.logger.Debug("settings update rejected, current password mismatch", "user_id", user.ID.String())
				return newOutcome(OutcomeInvalidCredential), nil
			}
			return Outcome{}, wrapDependency(err, "failed to verify current password")
		}

		hash, err := h.hasher.HashPassword(*req.NewPassword)
		if err != nil {
			return Outcome{}, wrapDependency(err, "failed to hash new password")
		}
		changes.PasswordHash = &hash
	}

	updated := user
	if !changes.IsEmpty() {
		updated, err = h.accounts.Update(ctx, user.ID, changes)
		if err != nil {
			if goerrors.Is(err, ErrEmailInUse) {
				return newOutcome(OutcomeEmailInUse), nil
			}
			return Outcome{}, wrapDependency(err, "failed to update account settings")
		}
	}

	if err := h.sessions.RefreshSession(ctx, updated.SessionIdentity()); err != nil {
		return Outcome{}, wrapDependency(err, "failed to refresh session")
	}

	h.recordUpdate(ctx, updated, changes)

	return newOutcome(OutcomeSettingsUpdated), nil
}

// resolveAccount returns the account behind the current session. A nil user
// with a nil error means the caller is not authorized.
func (h *UpdateSettingsHandler) resolveAccount(ctx context.Context) (*User, Outcome, error) {
	session, err := h.sessions.CurrentSession(ctx)
	if err != nil {
		if goerrors.Is(err, ErrUnableToFindSession) {
			return nil, newOutcome(OutcomeUnauthorized), nil
		}
		return nil, Outcome{}, wrapDependency(err, "failed to resolve current session")
	}

	if session == nil {
		return nil, newOutcome(OutcomeUnauthorized), nil
	}

	userID, err := session.GetUserUUID()
	if err != nil {
		h.logger.Debug("session carries an invalid user id", "user_id", session.GetUserID())
		return nil, newOutcome(OutcomeUnauthorized), nil
	}

	user, err := h.accounts.FindByID(ctx, userID)
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return nil, newOutcome(OutcomeUnauthorized), nil
		}
		return nil, Outcome{}, wrapDependency(err, "failed to retrieve account")
	}

	if user == nil {
		return nil, newOutcome(OutcomeUnauthorized), nil
	}

	return user, Outcome{}, nil
}

func (h *UpdateSettingsHandler) requestEmailChange(ctx context.Context, user *User, target string) (Outcome, error) {
	existing, err := h.accounts.FindByEmail(ctx, target)
	if err != nil && !goerrors.Is(err, ErrAccountNotFound) {
		return Outcome{}, wrapDependency(err, "failed to check email availability")
	}

	if err == nil && existing != nil && existing.ID != user.ID {
		return newOutcome(OutcomeEmailInUse), nil
	}

	token, err := h.tokens.IssueVerificationToken(ctx, user.ID, target)
	if err != nil {
		return Outcome{}, wrapDependency(err, "failed to issue verification token")
	}

	if err := h.mailer.SendVerificationEmail(ctx, token.Email, token.Token); err != nil {
		return Outcome{}, wrapDependency(err, "failed to send verification email")
	}

	h.logger.Info("verification email sent", "user_id", user.ID.String())

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventEmailChangeRequested,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"email":      target,
			"expires_at": token.ExpiresAt,
		},
	})

	return newOutcome(OutcomeVerificationSent), nil
}

func (h *UpdateSettingsHandler) recordUpdate(ctx context.Context, user *User, changes AccountChanges) {
	now := time.Now()
	fields := make([]string, 0, 3)

	if changes.Email != nil {
		fields = append(fields, "email")
	}

	if changes.PasswordHash != nil {
		fields = append(fields, "password")
		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType:  ActivityEventPasswordChanged,
			Actor:      userActor(user.ID.String()),
			UserID:     user.ID.String(),
			OccurredAt: now,
		})
	}

	if changes.IsTwoFactorEnabled != nil {
		fields = append(fields, "is_two_factor_enabled")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventSettingsUpdated,
		Actor:     userActor(user.ID.String()),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"fields": fields,
		},
		OccurredAt: now,
	})
}
