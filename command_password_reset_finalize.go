package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	OnResponse      func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	User   *User
	Tokens TokenPair
}

// FinalizePasswordResetHandler consumes a password-reset token, stores the
// new hash, and rotates the refresh session. Rotation invalidates every other
// logged-in client as a side effect of the single-active-session invariant.
type FinalizePasswordResetHandler struct {
	repo       RepositoryManager
	tokens     TokenService
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager, tokens TokenService, cfg Config) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:       repo,
		tokens:     tokens,
		accessTTL:  cfg.GetAccessTokenTTL(),
		refreshTTL: cfg.GetRefreshTokenTTL(),
		logger:     defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	// checked before touching token or account
	if event.Password != event.ConfirmPassword {
		return ErrPasswordMismatch
	}

	claims, err := h.tokens.Validate(event.Token)
	if err != nil {
		return err
	}

	if err := RequirePurpose(claims, PurposePasswordReset); err != nil {
		return err
	}

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	user := &User{}
	var session *RefreshSession

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = h.repo.Users().GetByEmailTx(ctx, tx, claims.Subject())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		if err := h.repo.Users().ResetPasswordTx(ctx, tx, user.ID, passwordHash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		session, err = h.repo.RefreshSessions().IssueTx(ctx, tx, user.ID, h.refreshTTL)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue refresh session")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	access, err := h.tokens.Mint(user.Email, PurposeSession, h.accessTTL)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint access token")
	}

	h.logger.Info("password changed", "user_id", user.ID.String())

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{
			User:   user,
			Tokens: TokenPair{AccessToken: access, RefreshToken: session.Token},
		})
	}

	return nil
}
