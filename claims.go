package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents the decoded contents of a signed token.
type AuthClaims interface {
	Subject() string
	Purpose() TokenPurpose
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims. The subject is the
// account email; the purpose claim is omitted on bare session tokens.
type JWTClaims struct {
	jwt.RegisteredClaims
	TokenPurpose TokenPurpose `json:"purpose,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim, the owning account's email.
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Purpose returns the purpose claim, PurposeSession when absent.
func (c *JWTClaims) Purpose() TokenPurpose {
	return c.TokenPurpose
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
