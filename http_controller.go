package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

const genericErrorMessage = "Something went wrong!"

// RegisterSettingsRoutes mounts the account routes behind the session middleware
func RegisterSettingsRoutes[T any](app router.Router[T], opts ...SettingsControllerOption) *SettingsController {
	controller := NewSettingsController(opts...)

	session := controller.Sessions.Handler()

	app.Post(controller.Routes.Register, controller.RegistrationCreate, session).
		SetName("register.post")
	app.Post(controller.Routes.Login, controller.LoginPost, session).
		SetName("sign-in.post")
	app.Post(controller.Routes.Logout, controller.LogOut, session).
		SetName("sign-out.post")
	app.Get(controller.Routes.Settings, controller.SettingsShow, session).
		SetName("settings.get")
	app.Post(controller.Routes.Settings, controller.SettingsPost, session).
		SetName("settings.post")
	app.Get(controller.Routes.NewVerification, controller.NewVerificationGet, session).
		SetName("new-verification.get")

	return controller
}

type SettingsControllerRoutes struct {
	Register        string
	Login           string
	Logout          string
	Settings        string
	NewVerification string
}

type SettingsController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Hasher       CredentialHasher
	Sessions     *SessionMiddleware
	Mailer       MailDispatcher
	Settings     *UpdateSettingsHandler
	ConfirmEmail *ConfirmEmailHandler
	Register     *RegisterUserHandler
	Routes       *SettingsControllerRoutes
}

type SettingsControllerOption func(*SettingsController) *SettingsController

func WithControllerDebug(debug bool) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepository(repo RepositoryManager) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		c.Repo = repo
		return c
	}
}

func WithControllerHasher(hasher CredentialHasher) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		c.Hasher = hasher
		return c
	}
}

func WithControllerSessions(sessions *SessionMiddleware) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		c.Sessions = sessions
		return c
	}
}

// WithControllerMailer sets the dispatcher used for sign up verification
func WithControllerMailer(mailer MailDispatcher) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		c.Mailer = mailer
		return c
	}
}

func WithControllerSettingsHandler(h *UpdateSettingsHandler) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		c.Settings = h
		return c
	}
}

func WithControllerConfirmEmailHandler(h *ConfirmEmailHandler) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		c.ConfirmEmail = h
		return c
	}
}

func WithControllerRoutes(routes *SettingsControllerRoutes) SettingsControllerOption {
	return func(c *SettingsController) *SettingsController {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewSettingsController(opts ...SettingsControllerOption) *SettingsController {
	c := &SettingsController{
		Logger: defLogger{},
		Routes: &SettingsControllerRoutes{
			Register:        "/register",
			Login:           "/login",
			Logout:          "/logout",
			Settings:        "/settings",
			NewVerification: "/new-verification",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in settings controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionMiddleware in settings controller...")
	}

	if c.Settings == nil {
		panic("Missing UpdateSettingsHandler in settings controller...")
	}

	if c.Hasher == nil {
		c.Hasher = NewBcryptHasher(MinPasswordHashCost)
	}

	if c.ConfirmEmail == nil {
		c.ConfirmEmail = NewConfirmEmailHandler(c.Repo).WithLogger(c.Logger)
	}

	if c.Register == nil {
		c.Register = NewRegisterUserHandler(c.Repo, c.Hasher)
	}

	return c
}

// RegistrationCreatePayload is the sign up payload
type RegistrationCreatePayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *SettingsController) RegistrationCreate(c router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := c.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return errorJSON(c, http.StatusBadRequest, "Failed to parse payload")
	}

	if err := payload.Validate(); err != nil {
		return validationJSON(c, err)
	}

	var created *User
	req := RegisterUserMessage{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(user *User) {
			created = user
		},
	}

	if err := a.Register.Execute(c.Context(), req); err != nil {
		if goerrors.Is(err, ErrEmailInUse) {
			return errorJSON(c, http.StatusConflict, outcomeMessages[OutcomeEmailInUse])
		}
		a.Logger.Error("register user", "error", err)
		return errorJSON(c, http.StatusInternalServerError, genericErrorMessage)
	}

	a.sendSignUpVerification(c, created)

	return c.JSON(http.StatusCreated, map[string]any{
		"success": "Account created!",
		"user":    created,
	})
}

// sendSignUpVerification mails a verification link for a new account. The
// account exists either way, failures are only logged.
func (a *SettingsController) sendSignUpVerification(c router.Context, user *User) {
	if a.Mailer == nil {
		a.Logger.Warn("no mailer configured, skipping sign up verification", "user_id", user.ID.String())
		return
	}

	token, err := a.Repo.VerificationTokens().IssueVerificationToken(c.Context(), uuid.Nil, user.Email)
	if err != nil {
		a.Logger.Warn("failed to issue sign up verification token", "error", err)
		return
	}

	if err := a.Mailer.SendVerificationEmail(c.Context(), token.Email, token.Token); err != nil {
		a.Logger.Warn("failed to send sign up verification email", "error", err)
	}
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *SettingsController) LoginPost(c router.Context) error {
	payload := new(LoginRequest)

	if err := c.Bind(payload); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Failed to parse payload")
	}

	if err := payload.Validate(); err != nil {
		return validationJSON(c, err)
	}

	user, err := a.Repo.Users().FindByEmail(c.Context(), strings.TrimSpace(payload.Email))
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return errorJSON(c, http.StatusUnauthorized, "Invalid credentials!")
		}
		a.Logger.Error("login lookup", "error", err)
		return errorJSON(c, http.StatusInternalServerError, genericErrorMessage)
	}

	if !user.HasPassword() || user.AuthProvider.IsExternal() {
		return errorJSON(c, http.StatusUnauthorized, "Invalid credentials!")
	}

	if err := a.Hasher.ComparePasswordAndHash(payload.Password, *user.PasswordHash); err != nil {
		return errorJSON(c, http.StatusUnauthorized, "Invalid credentials!")
	}

	if err := a.Sessions.SetSessionCookie(c, NewSessionFromUser(user)); err != nil {
		a.Logger.Error("login sign session", "error", err)
		return errorJSON(c, http.StatusInternalServerError, genericErrorMessage)
	}

	return c.JSON(http.StatusOK, map[string]any{"success": "Logged in!"})
}

func (a *SettingsController) LogOut(c router.Context) error {
	a.Sessions.ClearSessionCookie(c)
	return c.JSON(http.StatusOK, map[string]any{"success": "Logged out!"})
}

func (a *SettingsController) SettingsShow(c router.Context) error {
	session, _, ok := SessionFromContext(c.Context())
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, outcomeMessages[OutcomeUnauthorized])
	}
	return c.JSON(http.StatusOK, session)
}

// SettingsPayload is the settings form. Fields left blank are not changed.
type SettingsPayload struct {
	Email              *string `form:"email" json:"email"`
	Password           *string `form:"password" json:"password"`
	NewPassword        *string `form:"new_password" json:"new_password"`
	IsTwoFactorEnabled *bool   `form:"is_two_factor_enabled" json:"is_two_factor_enabled"`
}

// ChangeRequest returns the payload as a SettingsChangeRequest
func (r SettingsPayload) ChangeRequest() SettingsChangeRequest {
	return SettingsChangeRequest{
		Email:              r.Email,
		CurrentPassword:    r.Password,
		NewPassword:        r.NewPassword,
		IsTwoFactorEnabled: r.IsTwoFactorEnabled,
	}.normalize()
}

// Validate will validate the payload
func (r SettingsPayload) Validate() error {
	req := r.ChangeRequest()

	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Email, is.Email),
		validation.Field(&req.NewPassword, validation.Length(6, 100)),
	); err != nil {
		return err
	}

	errs := validation.Errors{}
	if req.NewPassword != nil && req.CurrentPassword == nil {
		errs["password"] = errors.New("current password is required")
	}
	if req.CurrentPassword != nil && req.NewPassword == nil {
		errs["new_password"] = errors.New("new password is required")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Redacted returns a copy safe to log, password values are masked
func (r SettingsPayload) Redacted() SettingsPayload {
	mask := func(s *string) *string {
		if s == nil {
			return nil
		}
		masked := "********"
		return &masked
	}
	r.Password = mask(r.Password)
	r.NewPassword = mask(r.NewPassword)
	return r
}

func (a *SettingsController) SettingsPost(c router.Context) error {
	payload := new(SettingsPayload)

	if err := c.Bind(payload); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Failed to parse payload")
	}

	// provider managed fields are dropped by the workflow, so their
	// format does not matter for external accounts
	if session, _, ok := SessionFromContext(c.Context()); !ok || !session.AuthProvider.IsExternal() {
		if err := payload.Validate(); err != nil {
			return validationJSON(c, err)
		}
	}

	if a.Debug {
		a.Logger.Debug("settings payload", "payload", print.MaybePrettyJSON(payload.Redacted()))
	}

	outcome, err := a.Settings.Apply(c.Context(), payload.ChangeRequest())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, genericErrorMessage)
	}

	if outcome.Success() {
		return c.JSON(http.StatusOK, map[string]any{"success": outcome.Message})
	}

	return errorJSON(c, outcomeStatus(outcome), outcome.Message)
}

func (a *SettingsController) NewVerificationGet(c router.Context) error {
	var resp *ConfirmEmailResponse

	input := ConfirmEmailMessage{
		Token: c.Query("token"),
		OnResponse: func(r *ConfirmEmailResponse) {
			resp = r
		},
	}

	if err := a.ConfirmEmail.Execute(c.Context(), input); err != nil {
		status, message := confirmationStatus(err)
		if status == http.StatusInternalServerError {
			a.Logger.Error("email confirmation", "error", err)
		}
		return errorJSON(c, status, message)
	}

	if a.Debug {
		a.Logger.Debug("email confirmed", "response", print.MaybePrettyJSON(resp))
	}

	// keep the cookie in sync when the owner confirms from a live session
	if session, _, ok := SessionFromContext(c.Context()); ok && session.UserID == resp.User.ID.String() {
		dir := ContextSessionDirectory{}
		if err := dir.RefreshSession(c.Context(), resp.User.SessionIdentity()); err != nil {
			a.Logger.Warn("failed to refresh session after confirmation", "error", err)
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"success": resp.Message})
}

func outcomeStatus(outcome Outcome) int {
	var richErr *goerrors.Error
	if goerrors.As(outcome.Err(), &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	return http.StatusBadRequest
}

func confirmationStatus(err error) (int, string) {
	switch {
	case goerrors.Is(err, ErrTokenNotFound):
		return http.StatusNotFound, "Token does not exist!"
	case goerrors.Is(err, ErrTokenExpired):
		return http.StatusGone, "Token has expired!"
	case goerrors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound, "Email does not exist!"
	case goerrors.Is(err, ErrEmailInUse):
		return http.StatusConflict, outcomeMessages[OutcomeEmailInUse]
	default:
		return http.StatusInternalServerError, genericErrorMessage
	}
}

func errorJSON(c router.Context, status int, message string) error {
	return c.JSON(status, map[string]any{"error": message})
}

func validationJSON(c router.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, map[string]any{
		"error":      "Invalid fields!",
		"validation": FormatValidationErrorToMap(err),
	})
}

// FormatValidationErrorToMap flattens ozzo validation errors by field
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}
	out["form"] = fmt.Sprint(err)
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
