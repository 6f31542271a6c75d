package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Patch(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// HTTPController exposes the credential lifecycle as a JSON API. Verification
// links carry the signed token in the token= query parameter; refresh calls
// carry the refresh credential in the refreshToken JSON field.
type HTTPController struct {
	Logger       Logger
	Repo         RepositoryManager
	Auther       Authenticator
	ContextKey   string
	ErrorHandler func(ctx router.Context, err error) error

	register      *RegisterUserHandler
	activate      *ActivateAccountHandler
	resetInit     *InitializePasswordResetHandler
	resetFinalize *FinalizePasswordResetHandler
	emailInit     *InitializeEmailChangeHandler
	emailFinalize *FinalizeEmailChangeHandler
}

// HTTPControllerOption configures the controller.
type HTTPControllerOption func(*HTTPController) *HTTPController

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerMailer(mailer Mailer) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		c.register.WithMailer(mailer)
		c.resetInit.WithMailer(mailer)
		c.emailInit.WithMailer(mailer)
		return c
	}
}

// WithControllerContextKey sets the router locals key the host's JWT
// middleware stores decoded claims under.
func WithControllerContextKey(key string) HTTPControllerOption {
	return func(c *HTTPController) *HTTPController {
		if key != "" {
			c.ContextKey = key
		}
		return c
	}
}

func NewHTTPController(repo RepositoryManager, auther Authenticator, tokens TokenService, cfg Config, opts ...HTTPControllerOption) *HTTPController {
	c := &HTTPController{
		Logger:        defLogger{},
		Repo:          repo,
		Auther:        auther,
		ContextKey:    "user",
		register:      NewRegisterUserHandler(repo, tokens, cfg),
		activate:      NewActivateAccountHandler(repo, tokens, cfg),
		resetInit:     NewInitializePasswordResetHandler(repo, tokens, cfg),
		resetFinalize: NewFinalizePasswordResetHandler(repo, tokens, cfg),
		emailInit:     NewInitializeEmailChangeHandler(repo, tokens, cfg),
		emailFinalize: NewFinalizeEmailChangeHandler(repo, tokens),
	}
	c.ErrorHandler = c.defaultErrHandler

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterRoutes mounts the auth and user endpoints.
func (c *HTTPController) RegisterRoutes(group RouteRegistrar) {
	group.Post("/auth/sign-up", c.SignUp)
	group.Post("/auth/login", c.Login)
	group.Post("/auth/refresh-token", c.RefreshToken)
	group.Get("/auth/verify", c.Verify)
	group.Post("/auth/forgot-password", c.ForgotPassword)
	group.Post("/auth/reset-password", c.ResetPassword)
	group.Patch("/user/email", c.RequestEmailChange)
	group.Get("/user/verify-email-update", c.VerifyEmailChange)
}

// SignUpRequest is the registration payload.
type SignUpRequest struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	CurrencyCode string `json:"currency_code"`
}

// Validate will run validation rules
func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.CurrencyCode, validation.Length(3, 3)),
	)
}

func (c *HTTPController) SignUp(ctx router.Context) error {
	payload := new(SignUpRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	var created *User
	msg := RegisterUserMessage{
		FullName:     payload.FullName,
		Email:        payload.Email,
		Password:     payload.Password,
		CurrencyCode: payload.CurrencyCode,
		OnResponse: func(resp *RegisterUserResponse) {
			created = resp.User
		},
	}

	if err := c.register.Execute(ctx.Context(), msg); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(fiber.StatusCreated, created)
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *HTTPController) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	pair, err := c.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

// RefreshTokenRequest payload
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Validate will run validation rules
func (r RefreshTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (c *HTTPController) RefreshToken(ctx router.Context) error {
	payload := new(RefreshTokenRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	pair, err := c.Auther.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

func (c *HTTPController) Verify(ctx router.Context) error {
	token := ctx.Query("token")
	if token == "" {
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{
			"error": "token query parameter is required",
		})
	}

	var pair TokenPair
	msg := ActivateAccountMessage{
		Token: token,
		OnResponse: func(resp *ActivateAccountResponse) {
			pair = resp.Tokens
		},
	}

	if err := c.activate.Execute(ctx.Context(), msg); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (c *HTTPController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	if err := c.resetInit.Execute(ctx.Context(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	// same response whether the email exists or not
	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "ok",
	})
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (c *HTTPController) ResetPassword(ctx router.Context) error {
	token := ctx.Query("token")
	if token == "" {
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{
			"error": "token query parameter is required",
		})
	}

	payload := new(ResetPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	var pair TokenPair
	msg := FinalizePasswordResetMessage{
		Token:           token,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse: func(resp *FinalizePasswordResetResponse) {
			pair = resp.Tokens
		},
	}

	if err := c.resetFinalize.Execute(ctx.Context(), msg); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

// EmailChangeRequest payload
type EmailChangeRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r EmailChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// RequestEmailChange stages a new address for the authenticated user. The
// host is expected to mount its JWT middleware in front of this route and
// store decoded claims under ContextKey.
func (c *HTTPController) RequestEmailChange(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, c.ContextKey)
	if !ok {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"error": "authentication required",
		})
	}

	if err := RequirePurpose(claims, PurposeSession); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	payload := new(EmailChangeRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.badRequest(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return c.validationFailed(ctx, err)
	}

	user, err := c.Repo.Users().GetByEmail(ctx.Context(), claims.Subject())
	if err != nil {
		return c.ErrorHandler(ctx, ErrIdentityNotFound)
	}

	msg := InitializeEmailChangeMessage{
		UserID:   user.ID,
		NewEmail: payload.Email,
	}

	if err := c.emailInit.Execute(ctx.Context(), msg); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "verification_sent",
	})
}

func (c *HTTPController) VerifyEmailChange(ctx router.Context) error {
	token := ctx.Query("token")
	if token == "" {
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{
			"error": "token query parameter is required",
		})
	}

	var updated *User
	msg := FinalizeEmailChangeMessage{
		Token: token,
		OnResponse: func(resp *FinalizeEmailChangeResponse) {
			updated = resp.User
		},
	}

	if err := c.emailFinalize.Execute(ctx.Context(), msg); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, updated)
}

func (c *HTTPController) badRequest(ctx router.Context, err error) error {
	c.Logger.Error("failed to parse request payload", "error", err)
	return ctx.JSON(fiber.StatusBadRequest, map[string]string{
		"error": "failed to parse request payload",
	})
}

func (c *HTTPController) validationFailed(ctx router.Context, err error) error {
	return ctx.JSON(fiber.StatusBadRequest, map[string]any{
		"error":      "validation failed",
		"validation": err.Error(),
	})
}

func (c *HTTPController) defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	c.Logger.Info(
		"request error",
		"error", richErr.Message,
		"category", richErr.Category,
		"text_code", richErr.TextCode,
	)

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	return ctx.JSON(status, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
