package auth

import (
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds auth options. Implementations must be immutable; the signing
// secret in particular is process-wide configuration injected once at
// construction, never read ad hoc.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	// GetAccessTokenTTL is the lifetime of bare session tokens.
	GetAccessTokenTTL() time.Duration
	// GetRefreshTokenTTL is the lifetime of refresh sessions.
	GetRefreshTokenTTL() time.Duration
	// GetVerificationTokenTTL is the lifetime of purpose-scoped tokens sent
	// over email.
	GetVerificationTokenTTL() time.Duration
	// GetFrontendURL is the base for verification links handed to the mailer.
	GetFrontendURL() string
}

// SimpleConfig is a plain immutable Config implementation.
type SimpleConfig struct {
	SigningKey           string
	Issuer               string
	Audience             []string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	FrontendURL          string
}

func (c SimpleConfig) GetSigningKey() string { return c.SigningKey }

func (c SimpleConfig) GetIssuer() string { return c.Issuer }

func (c SimpleConfig) GetAudience() []string { return c.Audience }

func (c SimpleConfig) GetAccessTokenTTL() time.Duration {
	if c.AccessTokenTTL <= 0 {
		return 15 * time.Minute
	}
	return c.AccessTokenTTL
}

func (c SimpleConfig) GetRefreshTokenTTL() time.Duration {
	if c.RefreshTokenTTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return c.RefreshTokenTTL
}

func (c SimpleConfig) GetVerificationTokenTTL() time.Duration {
	if c.VerificationTokenTTL <= 0 {
		return 24 * time.Hour
	}
	return c.VerificationTokenTTL
}

func (c SimpleConfig) GetFrontendURL() string { return c.FrontendURL }

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
