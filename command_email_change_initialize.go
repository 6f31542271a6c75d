package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InitializeEmailChangeMessage struct {
	UserID   uuid.UUID `json:"user_id"`
	NewEmail string    `json:"new_email"`
}

func (e InitializeEmailChangeMessage) Type() string { return "user.email_change" }

// InitializeEmailChangeHandler stages a new address on the account and mails
// an email-update token to it. The token's subject is the CURRENT email so
// the confirm step can find the account before the swap; the mail goes to the
// NEW address so it proves receipt. The stored token replaces any previously
// staged one, invalidating older tokens of the same purpose.
type InitializeEmailChangeHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	notifier *notifier
	ttl      time.Duration
	logger   Logger
}

func NewInitializeEmailChangeHandler(repo RepositoryManager, tokens TokenService, cfg Config) *InitializeEmailChangeHandler {
	return &InitializeEmailChangeHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: newNotifier(nil, cfg.GetFrontendURL(), nil),
		ttl:      cfg.GetVerificationTokenTTL(),
		logger:   defLogger{},
	}
}

// WithMailer sets the dispatcher used to deliver the confirmation link.
func (h *InitializeEmailChangeHandler) WithMailer(mailer Mailer) *InitializeEmailChangeHandler {
	h.notifier.mailer = mailer
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializeEmailChangeHandler) WithLogger(logger Logger) *InitializeEmailChangeHandler {
	if logger != nil {
		h.logger = logger
		h.notifier.logger = logger
	}
	return h
}

func (h *InitializeEmailChangeHandler) Execute(ctx context.Context, event InitializeEmailChangeMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email change initialization")
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializeEmailChangeHandler) execute(ctx context.Context, event InitializeEmailChangeMessage) error {
	user := &User{}
	var token string

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().ExistsByEmailTx(ctx, tx, event.NewEmail)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}
		if taken {
			return ErrEmailTaken
		}

		user, err = h.repo.Users().GetByIDTx(ctx, tx, event.UserID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email change")
		}

		token, err = h.tokens.Mint(user.Email, PurposeEmailUpdateVerification, h.ttl)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint email update token")
		}

		if err := h.repo.Users().StageEmailChangeTx(ctx, tx, user.ID, event.NewEmail, token); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to stage email change")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize email change")
	}

	h.notifier.sendEmailUpdateVerification(ctx, event.NewEmail, token)

	h.logger.Info("email change staged", "user_id", user.ID.String())

	return nil
}
