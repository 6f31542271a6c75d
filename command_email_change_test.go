package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	auth "github.com/mtracker/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInitializeEmailChange(t *testing.T) {
	repo := newMockRepositoryManager()
	mailer := &recordingMailer{}
	ts := newTestTokenService()

	handler := auth.NewInitializeEmailChangeHandler(repo, ts, newTestConfig()).
		WithMailer(mailer)

	userID := uuid.New()
	user := &auth.User{ID: userID, Email: "old@example.com", Activated: true}

	var stagedToken string
	repo.UsersRepo.On("ExistsByEmailTx", mock.Anything, mock.Anything, "new@example.com").
		Return(false, nil).Once()
	repo.UsersRepo.On("GetByIDTx", mock.Anything, mock.Anything, userID.String()).
		Return(user, nil).Once()
	repo.UsersRepo.On("StageEmailChangeTx", mock.Anything, mock.Anything, userID, "new@example.com", mock.Anything).
		Run(func(args mock.Arguments) {
			stagedToken = args.String(4)
		}).
		Return(nil).Once()

	err := handler.Execute(context.Background(), auth.InitializeEmailChangeMessage{
		UserID:   userID,
		NewEmail: "new@example.com",
	})
	require.NoError(t, err)

	// the confirmation goes to the address being claimed
	sent := mailer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "new@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "https://app.example.com/verify-email-update?token=")

	// mailed token and staged token are the same value, and its subject is
	// the CURRENT address so the confirm step can find the account
	mailedToken := tokenFromMail(t, sent[0].Body)
	assert.Equal(t, stagedToken, mailedToken)

	claims, err := ts.Validate(mailedToken)
	require.NoError(t, err)
	assert.Equal(t, auth.PurposeEmailUpdateVerification, claims.Purpose())
	assert.Equal(t, "old@example.com", claims.Subject())

	repo.UsersRepo.AssertExpectations(t)
}

func TestInitializeEmailChangeAddressTaken(t *testing.T) {
	repo := newMockRepositoryManager()
	mailer := &recordingMailer{}

	handler := auth.NewInitializeEmailChangeHandler(repo, newTestTokenService(), newTestConfig()).
		WithMailer(mailer)

	repo.UsersRepo.On("ExistsByEmailTx", mock.Anything, mock.Anything, "taken@example.com").
		Return(true, nil).Once()

	err := handler.Execute(context.Background(), auth.InitializeEmailChangeMessage{
		UserID:   uuid.New(),
		NewEmail: "taken@example.com",
	})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.Empty(t, mailer.sent())

	repo.UsersRepo.AssertNotCalled(t, "StageEmailChangeTx",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizeEmailChange(t *testing.T) {
	repo := newMockRepositoryManager()
	ts := newTestTokenService()
	handler := auth.NewFinalizeEmailChangeHandler(repo, ts)

	token, err := ts.Mint("old@example.com", auth.PurposeEmailUpdateVerification, time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	pending := "new@example.com"
	user := &auth.User{
		ID:                userID,
		Email:             "old@example.com",
		PendingEmail:      &pending,
		VerificationToken: &token,
	}

	repo.UsersRepo.On("GetByEmailTx", mock.Anything, mock.Anything, "old@example.com").
		Return(user, nil).Once()
	repo.UsersRepo.On("CommitEmailChangeTx", mock.Anything, mock.Anything, userID, "new@example.com").
		Return(nil).Once()

	var updated *auth.User
	err = handler.Execute(context.Background(), auth.FinalizeEmailChangeMessage{
		Token: token,
		OnResponse: func(resp *auth.FinalizeEmailChangeResponse) {
			updated = resp.User
		},
	})
	require.NoError(t, err)

	require.NotNil(t, updated)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Nil(t, updated.PendingEmail)
	assert.Nil(t, updated.VerificationToken)

	repo.UsersRepo.AssertExpectations(t)
}

// When the change is requested twice, only the second token is stored on the
// account. The first token still carries a valid signature and the right
// purpose, but it must be rejected because it no longer matches.
func TestFinalizeEmailChangeSupersededToken(t *testing.T) {
	repo := newMockRepositoryManager()
	ts := newTestTokenService()
	handler := auth.NewFinalizeEmailChangeHandler(repo, ts)

	first, err := ts.Mint("old@example.com", auth.PurposeEmailUpdateVerification, time.Hour)
	require.NoError(t, err)
	// a distinct issued-at yields a distinct token for the same subject
	second, err := ts.SignClaims(&auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity-test",
			Subject:   "old@example.com",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TokenPurpose: auth.PurposeEmailUpdateVerification,
	})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	userID := uuid.New()
	pending := "second@example.com"
	user := &auth.User{
		ID:                userID,
		Email:             "old@example.com",
		PendingEmail:      &pending,
		VerificationToken: &second,
	}

	repo.UsersRepo.On("GetByEmailTx", mock.Anything, mock.Anything, "old@example.com").
		Return(user, nil).Once()

	err = handler.Execute(context.Background(), auth.FinalizeEmailChangeMessage{Token: first})
	assert.ErrorIs(t, err, auth.ErrInvalidVerificationToken)

	repo.UsersRepo.AssertNotCalled(t, "CommitEmailChangeTx",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizeEmailChangeNothingStaged(t *testing.T) {
	repo := newMockRepositoryManager()
	ts := newTestTokenService()
	handler := auth.NewFinalizeEmailChangeHandler(repo, ts)

	token, err := ts.Mint("old@example.com", auth.PurposeEmailUpdateVerification, time.Hour)
	require.NoError(t, err)

	user := &auth.User{ID: uuid.New(), Email: "old@example.com"}

	repo.UsersRepo.On("GetByEmailTx", mock.Anything, mock.Anything, "old@example.com").
		Return(user, nil).Once()

	err = handler.Execute(context.Background(), auth.FinalizeEmailChangeMessage{Token: token})
	assert.ErrorIs(t, err, auth.ErrInvalidVerificationToken)
}

func TestFinalizeEmailChangeRejectsOtherPurposes(t *testing.T) {
	repo := newMockRepositoryManager()
	ts := newTestTokenService()
	handler := auth.NewFinalizeEmailChangeHandler(repo, ts)

	for _, purpose := range []auth.TokenPurpose{
		auth.PurposeSession,
		auth.PurposeEmailVerification,
		auth.PurposePasswordReset,
	} {
		token, err := ts.Mint("old@example.com", purpose, time.Hour)
		require.NoError(t, err)

		err = handler.Execute(context.Background(), auth.FinalizeEmailChangeMessage{Token: token})
		assert.ErrorIs(t, err, auth.ErrWrongPurpose, "purpose %q", purpose)
	}
}
