package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	SessionFromToken(token string) (AuthClaims, error)
}

// Auther is the concrete Authenticator over the repositories.
type Auther struct {
	repo         RepositoryManager
	tokenService TokenService
	accessTTL    time.Duration
	refreshTTL   time.Duration
	logger       Logger
	activity     ActivitySink
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, cfg Config) *Auther {
	tokenService := NewTokenService(
		[]byte(cfg.GetSigningKey()),
		cfg.GetIssuer(),
		cfg.GetAudience(),
		defLogger{},
	)

	return &Auther{
		repo:         repo,
		tokenService: tokenService,
		accessTTL:    cfg.GetAccessTokenTTL(),
		refreshTTL:   cfg.GetRefreshTokenTTL(),
		logger:       defLogger{},
		activity:     noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTokenService overrides the token service, e.g. to share one instance
// with the command handlers.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// WithActivitySink registers an audit sink for login and refresh events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the password against the stored hash and, on success,
// rotates the refresh session and mints a bare access token. Any session a
// previous login issued stops working here.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	user, err := s.repo.Users().GetByEmail(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// burn a comparison so unknown emails cost as much as bad passwords
			_ = ComparePasswordAndHash(password, RandomPasswordHash())
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during login")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.logger.Warn("login rejected", "user_id", user.ID.String())
		s.recordActivity(ctx, ActivityEventLoginFailure, user)
		return nil, ErrMismatchedHashAndPassword
	}

	var session *RefreshSession
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		session, err = s.repo.RefreshSessions().IssueTx(ctx, tx, user.ID, s.refreshTTL)
		if err != nil {
			return err
		}
		return s.repo.Users().TrackSuccessfulLoginTx(ctx, tx, user)
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue refresh session")
	}

	access, err := s.tokenService.Mint(user.Email, PurposeSession, s.accessTTL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint access token")
	}

	s.logger.Info("user authenticated", "user_id", user.ID.String())
	s.recordActivity(ctx, ActivityEventLoginSuccess, user)

	return &TokenPair{AccessToken: access, RefreshToken: session.Token}, nil
}

// Refresh exchanges a stored refresh token for a new access token. The
// refresh token itself is NOT rotated: the same value is echoed back, and
// only the short-lived credential is re-minted. Expired sessions are deleted
// on detection.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	session, err := s.repo.RefreshSessions().FindByToken(ctx, refreshToken)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrRefreshNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up refresh session")
	}

	if _, err := s.repo.RefreshSessions().Validate(ctx, session); err != nil {
		return nil, err
	}

	user, err := s.repo.Users().GetByID(ctx, session.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve session owner")
	}

	access, err := s.tokenService.Mint(user.Email, PurposeSession, s.accessTTL)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint access token")
	}

	s.recordActivity(ctx, ActivityEventTokenRefreshed, user)

	return &TokenPair{AccessToken: access, RefreshToken: session.Token}, nil
}

// SessionFromToken decodes a bare access token. Purpose-scoped tokens are
// rejected here: a verification token is not a session credential.
func (s *Auther) SessionFromToken(token string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(token)
	if err != nil {
		return nil, err
	}

	if err := RequirePurpose(claims, PurposeSession); err != nil {
		return nil, err
	}

	return claims, nil
}

func (s *Auther) recordActivity(ctx context.Context, event ActivityEventType, user *User) {
	err := s.activity.Record(ctx, ActivityEvent{
		EventType:  event,
		UserID:     user.ID.String(),
		Email:      user.Email,
		OccurredAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("activity sink failed", "event", string(event), "error", err)
	}
}
