package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email"`
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetHandler mints a password-reset token and mails it to
// the account. Unknown emails succeed silently: the response must not reveal
// which addresses are registered.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	notifier *notifier
	ttl      time.Duration
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, tokens TokenService, cfg Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: newNotifier(nil, cfg.GetFrontendURL(), nil),
		ttl:      cfg.GetVerificationTokenTTL(),
		logger:   defLogger{},
	}
}

// WithMailer sets the dispatcher used to deliver the reset link.
func (h *InitializePasswordResetHandler) WithMailer(mailer Mailer) *InitializePasswordResetHandler {
	h.notifier.mailer = mailer
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
		h.notifier.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// deliberate information hiding: succeed without dispatch
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	token, err := h.tokens.Mint(user.Email, PurposePasswordReset, h.ttl)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint reset token")
	}

	h.notifier.sendPasswordReset(ctx, user.Email, token)

	h.logger.Info("password reset token dispatched", "user_id", user.ID.String())

	return nil
}
