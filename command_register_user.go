package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CurrencyCode string `json:"currency_code"`
	OnResponse   func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User *User
}

// RegisterUserHandler creates an unactivated account and dispatches an
// email-verification token to its address. The token itself is never
// persisted.
type RegisterUserHandler struct {
	repo     RepositoryManager
	tokens   TokenService
	notifier *notifier
	ttl      time.Duration
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager, tokens TokenService, cfg Config) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		tokens:   tokens,
		notifier: newNotifier(nil, cfg.GetFrontendURL(), nil),
		ttl:      cfg.GetVerificationTokenTTL(),
		logger:   defLogger{},
	}
}

// WithMailer sets the dispatcher used to deliver the verification link.
func (h *RegisterUserHandler) WithMailer(mailer Mailer) *RegisterUserHandler {
	h.notifier.mailer = mailer
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
		h.notifier.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().ExistsByEmailTx(ctx, tx, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}
		if taken {
			return ErrEmailTaken
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.Email = event.Email
		user.FullName = event.FullName
		user.CurrencyCode = event.CurrencyCode
		user.PasswordHash = hash
		user.Activated = false

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			// two concurrent registrations can both pass the exists check;
			// the loser hits the unique index and still surfaces as taken
			if isUniqueViolation(err) {
				return ErrEmailTaken
			}
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	token, err := h.tokens.Mint(user.Email, PurposeEmailVerification, h.ttl)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint verification token")
	}

	h.notifier.sendAccountVerification(ctx, user.Email, token)

	h.logger.Info("user registered", "user_id", user.ID.String())

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{User: user})
	}

	return nil
}
