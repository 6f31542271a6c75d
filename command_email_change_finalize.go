package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizeEmailChangeMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *FinalizeEmailChangeResponse)
}

func (e FinalizeEmailChangeMessage) Type() string { return "user.email_change_finalize" }

type FinalizeEmailChangeResponse struct {
	User *User
}

// FinalizeEmailChangeHandler swaps the staged address into place. Beyond
// signature, expiry, and purpose, the presented token must exactly equal the
// one stored on the account: a syntactically valid token of the right purpose
// that is not the most recently issued one is rejected. This is the replay
// defense for the case where requestChange ran more than once.
type FinalizeEmailChangeHandler struct {
	repo   RepositoryManager
	tokens TokenService
	logger Logger
}

func NewFinalizeEmailChangeHandler(repo RepositoryManager, tokens TokenService) *FinalizeEmailChangeHandler {
	return &FinalizeEmailChangeHandler{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizeEmailChangeHandler) WithLogger(logger Logger) *FinalizeEmailChangeHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizeEmailChangeHandler) Execute(ctx context.Context, event FinalizeEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email change finalization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizeEmailChangeHandler) execute(ctx context.Context, event FinalizeEmailChangeMessage) error {
	claims, err := h.tokens.Validate(event.Token)
	if err != nil {
		return err
	}

	if err := RequirePurpose(claims, PurposeEmailUpdateVerification); err != nil {
		return err
	}

	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// the subject is the pre-change address
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, claims.Subject())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email change")
		}

		if user.VerificationToken == nil || *user.VerificationToken != event.Token {
			return ErrInvalidVerificationToken
		}

		if user.PendingEmail == nil {
			return ErrInvalidVerificationToken
		}
		newEmail := *user.PendingEmail

		if err := h.repo.Users().CommitEmailChangeTx(ctx, tx, user.ID, newEmail); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to commit email change")
		}

		user.Email = newEmail
		user.PendingEmail = nil
		user.VerificationToken = nil

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize email change")
	}

	h.logger.Info("email updated", "user_id", user.ID.String())

	if event.OnResponse != nil {
		event.OnResponse(&FinalizeEmailChangeResponse{User: user})
	}

	return nil
}
