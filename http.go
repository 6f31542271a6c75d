package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RouteGuard protects routes with bearer-token authentication. It validates
// the access token, rejects tokens minted for verification flows, and stores
// the decoded claims in the request locals under ContextKey.
type RouteGuard struct {
	auth         Authenticator
	ContextKey   string
	AuthScheme   string
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewRouteGuard(auther Authenticator, opts ...func(*RouteGuard)) *RouteGuard {
	g := &RouteGuard{
		auth:       auther,
		ContextKey: "user",
		AuthScheme: "Bearer",
		Logger:     defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func WithGuardContextKey(key string) func(*RouteGuard) {
	return func(g *RouteGuard) {
		if key != "" {
			g.ContextKey = key
		}
	}
}

func WithGuardLogger(logger Logger) func(*RouteGuard) {
	return func(g *RouteGuard) {
		if logger != nil {
			g.Logger = logger
		}
	}
}

// RequireSession returns middleware that rejects requests without a valid
// bare session token.
func (g *RouteGuard) RequireSession() router.MiddlewareFunc {
	return g.middleware(false)
}

// OptionalSession decodes claims when a valid token is present but lets
// unauthenticated requests through.
func (g *RouteGuard) OptionalSession() router.MiddlewareFunc {
	return g.middleware(true)
}

func (g *RouteGuard) middleware(optional bool) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			token := g.tokenFromRequest(ctx)
			if token == "" {
				if optional {
					return hf(ctx)
				}
				return g.ErrorHandler(ctx, goerrors.New("Missing authentication token", goerrors.CategoryAuth).
					WithTextCode(TextCodeTokenMalformed).
					WithCode(goerrors.CodeUnauthorized))
			}

			claims, err := g.auth.SessionFromToken(token)
			if err != nil {
				if optional {
					g.Logger.Info("optional auth failed, proceeding", "error", err)
					return hf(ctx)
				}
				return g.ErrorHandler(ctx, err)
			}

			ctx.Locals(g.ContextKey, claims)
			return hf(ctx)
		}
	}
}

// tokenFromRequest reads the credential from the Authorization header, then
// falls back to a cookie named after ContextKey.
func (g *RouteGuard) tokenFromRequest(ctx router.Context) string {
	header := ctx.GetString(router.HeaderAuthorization, "")
	if header != "" {
		scheme := g.AuthScheme + " "
		if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
			return header[len(scheme):]
		}
		return ""
	}

	return ctx.Cookies(g.ContextKey)
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error

	if IsTokenExpiredError(err) {
		richErr = ErrTokenExpired
	} else if IsMalformedError(err) {
		richErr = ErrTokenMalformed
	} else if !errors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "Invalid authentication token").
			WithCode(goerrors.CodeUnauthorized)
	}

	g.Logger.Info(
		"authentication rejected",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusUnauthorized
	}

	return c.JSON(status, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
