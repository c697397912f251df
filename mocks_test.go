package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-authninja"
)

// MockTokenIssuer implements auth.TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) IssueVerificationToken(ctx context.Context, userID uuid.UUID, email string) (*auth.VerificationToken, error) {
	args := m.Called(ctx, userID, email)
	token, _ := args.Get(0).(*auth.VerificationToken)
	return token, args.Error(1)
}

// MockMailer implements auth.MailDispatcher
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	args := m.Called(ctx, email, token)
	return args.Error(0)
}

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// fakeSessions is a SessionDirectory over a fixed session
type fakeSessions struct {
	session    auth.Session
	err        error
	refreshErr error
	refreshed  []auth.SessionIdentity
}

func (f *fakeSessions) CurrentSession(context.Context) (auth.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.session == nil {
		return nil, auth.ErrUnableToFindSession
	}
	return f.session, nil
}

func (f *fakeSessions) RefreshSession(_ context.Context, identity auth.SessionIdentity) error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshed = append(f.refreshed, identity)
	return nil
}

// memoryAccounts is an in memory AccountStore
type memoryAccounts struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*auth.User
	updates   []auth.AccountChanges
	findErr   error
	updateErr error
}

func newMemoryAccounts(users ...*auth.User) *memoryAccounts {
	m := &memoryAccounts{users: map[uuid.UUID]*auth.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memoryAccounts) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}

	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryAccounts) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}

	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrAccountNotFound
}

func (m *memoryAccounts) Update(_ context.Context, id uuid.UUID, changes auth.AccountChanges) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updates = append(m.updates, changes)

	if m.updateErr != nil {
		return nil, m.updateErr
	}

	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}

	if changes.Email != nil {
		for otherID, other := range m.users {
			if otherID != id && other.Email == *changes.Email {
				return nil, auth.ErrEmailInUse
			}
		}
		u.Email = *changes.Email
	}

	if changes.PasswordHash != nil {
		hash := *changes.PasswordHash
		u.PasswordHash = &hash
	}

	if changes.IsTwoFactorEnabled != nil {
		u.IsTwoFactorEnabled = *changes.IsTwoFactorEnabled
	}

	cp := *u
	return &cp, nil
}

func (m *memoryAccounts) get(id uuid.UUID) auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memoryAccounts) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

// newTestRepo opens a private in memory sqlite database with the schema
func newTestRepo(t *testing.T, opts ...auth.VerificationTokensOption) (auth.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := auth.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)

	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, auth.CreateSchema(context.Background(), db))

	return auth.NewRepositoryManager(db, opts...), db
}

// createUser registers a credentials account through the register command
func createUser(t *testing.T, repo auth.RepositoryManager, email, password string) *auth.User {
	t.Helper()

	var created *auth.User
	handler := auth.NewRegisterUserHandler(repo, nil)
	err := handler.Execute(context.Background(), auth.RegisterUserMessage{
		Email:    email,
		Password: password,
		OnResponse: func(user *auth.User) {
			created = user
		},
	})
	require.NoError(t, err)
	require.NotNil(t, created)

	return created
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
