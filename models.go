package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. Email is unique across all accounts at all
// times; PendingEmail holds a staged address mid email-change and
// VerificationToken holds the single most recently issued email-update token,
// both cleared atomically when the change is confirmed.
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FullName          string     `bun:"full_name,notnull" json:"full_name,omitempty"`
	Email             string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash      string     `bun:"password_hash,notnull" json:"-"`
	CurrencyCode      string     `bun:"currency_code" json:"currency_code,omitempty"`
	AvatarID          *string    `bun:"avatar_id" json:"avatar_id,omitempty"`
	PendingEmail      *string    `bun:"pending_email" json:"pending_email,omitempty"`
	VerificationToken *string    `bun:"verification_token" json:"-"`
	Activated         bool       `bun:"is_activated,notnull,default:false" json:"is_activated"`
	LoggedInAt        *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasPendingEmailChange reports whether an email change is staged.
func (u *User) HasPendingEmailChange() bool {
	return u != nil && u.PendingEmail != nil && u.VerificationToken != nil
}

// RefreshSession is one outstanding refresh credential. At most one live row
// exists per user; issuing a new session deletes the previous one in the same
// transaction.
type RefreshSession struct {
	bun.BaseModel `bun:"table:refresh_sessions,alias:rs"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the session is past its deadline at now.
func (s *RefreshSession) Expired(now time.Time) bool {
	return s != nil && s.ExpiresAt.Before(now)
}

// TokenPair bundles the short-lived access token with the long-lived refresh
// credential returned by login, activation, reset confirmation, and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
