package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ActivateAccountMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *ActivateAccountResponse)
}

func (e ActivateAccountMessage) Type() string { return "user.activate" }

type ActivateAccountResponse struct {
	User   *User
	Tokens TokenPair
}

// ActivateAccountHandler consumes an email-verification token and flips the
// account's activation flag exactly once. The flag change and the refresh
// session issuance happen in one transaction; a partially activated account
// is never observable.
type ActivateAccountHandler struct {
	repo       RepositoryManager
	tokens     TokenService
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     Logger
}

func NewActivateAccountHandler(repo RepositoryManager, tokens TokenService, cfg Config) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		repo:       repo,
		tokens:     tokens,
		accessTTL:  cfg.GetAccessTokenTTL(),
		refreshTTL: cfg.GetRefreshTokenTTL(),
		logger:     defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account activation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) error {
	claims, err := h.tokens.Validate(event.Token)
	if err != nil {
		return err
	}

	if err := RequirePurpose(claims, PurposeEmailVerification); err != nil {
		return err
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
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for activation")
		}

		// a second token for an already active account means replay
		if user.Activated {
			return ErrAlreadyActivated
		}

		if err := h.repo.Users().ActivateTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to activate user")
		}
		user.Activated = true

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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account activation transaction failed")
	}

	access, err := h.tokens.Mint(user.Email, PurposeSession, h.accessTTL)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint access token")
	}

	h.logger.Info("user activated", "user_id", user.ID.String())

	if event.OnResponse != nil {
		event.OnResponse(&ActivateAccountResponse{
			User:   user,
			Tokens: TokenPair{AccessToken: access, RefreshToken: session.Token},
		})
	}

	return nil
}
