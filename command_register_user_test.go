package auth_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	auth "github.com/mtracker/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func tokenFromMail(t *testing.T, body string) string {
	t.Helper()
	_, after, found := strings.Cut(body, "token=")
	require.True(t, found, "mail body should carry a token link: %s", body)
	return strings.TrimSpace(after)
}

func TestRegisterUser(t *testing.T) {
	repo := newMockRepositoryManager()
	mailer := &recordingMailer{}
	ts := newTestTokenService()

	handler := auth.NewRegisterUserHandler(repo, ts, newTestConfig()).
		WithMailer(mailer)

	repo.UsersRepo.On("ExistsByEmailTx", mock.Anything, mock.Anything, "new@example.com").
		Return(false, nil).Once()
	repo.UsersRepo.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(&auth.User{
			Email:        "new@example.com",
			FullName:     "New User",
			CurrencyCode: "EUR",
		}, nil).Once()

	var created *auth.User
	err := handler.Execute(context.Background(), auth.RegisterUserMessage{
		FullName:     "New User",
		Email:        "new@example.com",
		Password:     "password123!",
		CurrencyCode: "EUR",
		OnResponse: func(resp *auth.RegisterUserResponse) {
			created = resp.User
		},
	})
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, "new@example.com", created.Email)
	assert.False(t, created.Activated)

	sent := mailer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "new@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "https://app.example.com/verify?token=")

	// the mailed token must be scoped to email verification only
	claims, err := ts.Validate(tokenFromMail(t, sent[0].Body))
	require.NoError(t, err)
	assert.Equal(t, auth.PurposeEmailVerification, claims.Purpose())
	assert.Equal(t, "new@example.com", claims.Subject())

	repo.UsersRepo.AssertExpectations(t)
}

func TestRegisterUserEmailTaken(t *testing.T) {
	repo := newMockRepositoryManager()
	mailer := &recordingMailer{}

	handler := auth.NewRegisterUserHandler(repo, newTestTokenService(), newTestConfig()).
		WithMailer(mailer)

	repo.UsersRepo.On("ExistsByEmailTx", mock.Anything, mock.Anything, "taken@example.com").
		Return(true, nil).Once()

	err := handler.Execute(context.Background(), auth.RegisterUserMessage{
		FullName: "Someone",
		Email:    "taken@example.com",
		Password: "password123!",
	})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.Empty(t, mailer.sent())

	repo.UsersRepo.AssertExpectations(t)
	repo.UsersRepo.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything)
}

// Two registrations can both pass the exists check; the insert that loses
// the race must surface as taken, not as an internal error.
func TestRegisterUserUniqueIndexRace(t *testing.T) {
	repo := newMockRepositoryManager()

	handler := auth.NewRegisterUserHandler(repo, newTestTokenService(), newTestConfig()).
		WithMailer(&recordingMailer{})

	repo.UsersRepo.On("ExistsByEmailTx", mock.Anything, mock.Anything, "raced@example.com").
		Return(false, nil).Once()
	repo.UsersRepo.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("UNIQUE constraint failed: users.email")).Once()

	err := handler.Execute(context.Background(), auth.RegisterUserMessage{
		FullName: "Raced",
		Email:    "raced@example.com",
		Password: "password123!",
	})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	repo.UsersRepo.AssertExpectations(t)
}

func TestRegisterUserCancelledContext(t *testing.T) {
	repo := newMockRepositoryManager()

	handler := auth.NewRegisterUserHandler(repo, newTestTokenService(), newTestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler.Execute(ctx, auth.RegisterUserMessage{
		FullName: "Nobody",
		Email:    "nobody@example.com",
		Password: "password123!",
	})
	assert.Error(t, err)
}
