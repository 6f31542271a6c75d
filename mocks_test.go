package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	auth "github.com/mtracker/go-identity"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUsers mocks the account repository. Only the methods exercised by the
// flows are implemented; anything else panics through the embedded interface.
type MockUsers struct {
	mock.Mock
	auth.Users
}

func (m *MockUsers) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUsers) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*auth.User, error) {
	args := m.Called(ctx, tx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUsers) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUsers) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	args := m.Called(ctx, tx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsers) CreateTx(ctx context.Context, tx bun.IDB, record *auth.User, criteria ...repository.InsertCriteria) (*auth.User, error) {
	args := m.Called(ctx, tx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.User), args.Error(1)
}

func (m *MockUsers) ActivateTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockUsers) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

func (m *MockUsers) StageEmailChangeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, pendingEmail, token string) error {
	args := m.Called(ctx, tx, id, pendingEmail, token)
	return args.Error(0)
}

func (m *MockUsers) CommitEmailChangeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, newEmail string) error {
	args := m.Called(ctx, tx, id, newEmail)
	return args.Error(0)
}

func (m *MockUsers) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *auth.User) error {
	args := m.Called(ctx, tx, user)
	return args.Error(0)
}

// MockRefreshSessions mocks the refresh session store.
type MockRefreshSessions struct {
	mock.Mock
	auth.RefreshSessions
}

func (m *MockRefreshSessions) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, ttl time.Duration) (*auth.RefreshSession, error) {
	args := m.Called(ctx, tx, userID, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RefreshSession), args.Error(1)
}

func (m *MockRefreshSessions) FindByToken(ctx context.Context, token string) (*auth.RefreshSession, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RefreshSession), args.Error(1)
}

func (m *MockRefreshSessions) Validate(ctx context.Context, session *auth.RefreshSession) (*auth.RefreshSession, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RefreshSession), args.Error(1)
}

func (m *MockRefreshSessions) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

func (m *MockRefreshSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockRepositoryManager hands out the mocks above and runs transaction
// bodies directly against them.
type MockRepositoryManager struct {
	UsersRepo    *MockUsers
	SessionsRepo *MockRefreshSessions
}

func newMockRepositoryManager() *MockRepositoryManager {
	return &MockRepositoryManager{
		UsersRepo:    new(MockUsers),
		SessionsRepo: new(MockRefreshSessions),
	}
}

func (m *MockRepositoryManager) Users() auth.Users { return m.UsersRepo }

func (m *MockRepositoryManager) RefreshSessions() auth.RefreshSessions { return m.SessionsRepo }

func (m *MockRepositoryManager) Validate() error { return nil }

func (m *MockRepositoryManager) MustValidate() {}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

// recordingMailer captures dispatched messages for assertions.
type recordingMailer struct {
	mu       sync.Mutex
	messages []recordedMail
	fail     error
}

type recordedMail struct {
	To      string
	Subject string
	Body    string
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.messages = append(m.messages, recordedMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) sent() []recordedMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedMail, len(m.messages))
	copy(out, m.messages)
	return out
}

func newExpiredSessionClaims() *auth.JWTClaims {
	return &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity-test",
			Subject:   "user@example.com",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
}

func notFoundErr(email string) error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{"email": email})
}

func newTestConfig() auth.SimpleConfig {
	return auth.SimpleConfig{
		SigningKey:           "test-signing-key",
		Issuer:               "identity-test",
		FrontendURL:          "https://app.example.com",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		VerificationTokenTTL: 24 * time.Hour,
	}
}

func newTestTokenService() *auth.TokenServiceImpl {
	cfg := newTestConfig()
	return auth.NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), cfg.GetAudience(), nil)
}
