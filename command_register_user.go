package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Role         string       `json:"role"`
	Password     string       `json:"password"`
	AuthProvider AuthProvider `json:"auth_provider"`
	UseHashid    bool
	OnResponse   func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	repo   RepositoryManager
	hasher CredentialHasher
}

func NewRegisterUserHandler(repo RepositoryManager, hasher CredentialHasher) *RegisterUserHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(MinPasswordHashCost)
	}
	return &RegisterUserHandler{repo: repo, hasher: hasher}
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	provider := event.AuthProvider
	if provider == "" {
		provider = ProviderCredentials
	}

	// oauth accounts have no local credential
	if !provider.IsExternal() {
		hash, err := h.hasher.HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		user.PasswordHash = &hash
	}

	user.Email = strings.TrimSpace(event.Email)
	user.Name = getDisplayName(event.Name, user.Email)
	user.Role = ParseRoleOrDefault(event.Role)
	user.AuthProvider = provider
	if event.UseHashid {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := h.repo.Users().CreateTx(ctx, tx, user)
		if err != nil {
			if goerrors.Is(err, ErrEmailInUse) {
				return ErrEmailInUse
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}
		user = created
		return nil
	})

	if err != nil {
		return wrapDependency(err, "user registration transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func getDisplayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}

	if strings.Contains(email, "@") {
		name = strings.Split(email, "@")[0]
	}

	return name
}
