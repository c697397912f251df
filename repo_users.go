package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the bun backed account store
type Users interface {
	AccountStore

	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, changes AccountChanges) (*User, error)
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string, at time.Time) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
}

type users struct {
	repo repository.Repository[*User]
	db   *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		repo: repo,
		db:   db,
	}
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record, err := a.repo.GetByID(ctx, id.String())
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return record, nil
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.findOne(ctx, tx, "id", id)
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.findOne(ctx, tx, "email", email)
}

func (a *users) findOne(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Update(ctx context.Context, id uuid.UUID, changes AccountChanges) (*User, error) {
	return a.UpdateTx(ctx, a.db, id, changes)
}

// UpdateTx writes only the columns present in changes. An explicit false
// two factor flag is written.
func (a *users) UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, changes AccountChanges) (*User, error) {
	if changes.IsEmpty() {
		return a.FindByIDTx(ctx, tx, id)
	}

	record := &User{ID: id}
	columns := make([]string, 0, 4)

	if changes.Email != nil {
		record.Email = *changes.Email
		columns = append(columns, "email")
	}

	if changes.PasswordHash != nil {
		hash := *changes.PasswordHash
		record.PasswordHash = &hash
		columns = append(columns, "password_hash")
	}

	if changes.IsTwoFactorEnabled != nil {
		record.IsTwoFactorEnabled = *changes.IsTwoFactorEnabled
		columns = append(columns, "is_two_factor_enabled")
	}

	return a.updateColumns(ctx, tx, record, columns...)
}

func (a *users) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, email string, at time.Time) (*User, error) {
	record := &User{
		ID:              id,
		Email:           email,
		EmailVerifiedAt: &at,
	}
	return a.updateColumns(ctx, tx, record, "email", "email_verified_at")
}

func (a *users) updateColumns(ctx context.Context, tx bun.IDB, record *User, columns ...string) (*User, error) {
	now := time.Now()
	record.UpdatedAt = &now
	columns = append(columns, "updated_at")

	res, err := tx.NewUpdate().
		Model(record).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrAccountNotFound
	}

	return a.FindByIDTx(ctx, tx, record.ID)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	prepareUserDefaults(record)
	created, err := a.repo.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}
	return created, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.AuthProvider == "" {
		record.AuthProvider = ProviderCredentials
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryConflict {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key value")
}
