package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshSessions persists the single-active-session-per-user refresh store.
type RefreshSessions interface {
	repository.Repository[*RefreshSession]

	// Issue deletes any prior session for the user and inserts a fresh one
	// with expiry now+ttl. Run inside a transaction so a concurrent reader
	// never observes zero or two sessions.
	Issue(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*RefreshSession, error)
	IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, ttl time.Duration) (*RefreshSession, error)

	FindByToken(ctx context.Context, token string) (*RefreshSession, error)
	FindByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshSession, error)

	// Validate returns the session unchanged when live. Expired sessions are
	// deleted on detection and surface ErrRefreshExpired.
	Validate(ctx context.Context, session *RefreshSession) (*RefreshSession, error)

	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error

	// DeleteExpired removes every session with expiry before now. Bounded and
	// idempotent; safe to run concurrently with Issue and Validate.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type refreshSessions struct {
	repository.Repository[*RefreshSession]
	db *bun.DB
}

var (
	_ RefreshSessions                        = (*refreshSessions)(nil)
	_ repository.Repository[*RefreshSession] = (*refreshSessions)(nil)
)

func NewRefreshSessionsRepository(db *bun.DB) RefreshSessions {
	repo := repository.NewRepository[*RefreshSession](db, repository.ModelHandlers[*RefreshSession]{
		NewRecord: func() *RefreshSession { return &RefreshSession{} },
		GetID: func(s *RefreshSession) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *RefreshSession, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &refreshSessions{
		Repository: repo,
		db:         db,
	}
}

func (r *refreshSessions) Issue(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*RefreshSession, error) {
	return r.IssueTx(ctx, r.db, userID, ttl)
}

func (r *refreshSessions) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, ttl time.Duration) (*RefreshSession, error) {
	if err := r.DeleteByUserTx(ctx, tx, userID); err != nil {
		return nil, err
	}

	session := &RefreshSession{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl),
	}

	if _, err := tx.NewInsert().Model(session).Exec(ctx); err != nil {
		return nil, err
	}

	return session, nil
}

func (r *refreshSessions) FindByToken(ctx context.Context, token string) (*RefreshSession, error) {
	return r.FindByTokenTx(ctx, r.db, token)
}

func (r *refreshSessions) FindByTokenTx(ctx context.Context, tx bun.IDB, token string) (*RefreshSession, error) {
	record := &RefreshSession{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"token": token})
		}
		return nil, err
	}
	return record, nil
}

func (r *refreshSessions) Validate(ctx context.Context, session *RefreshSession) (*RefreshSession, error) {
	if session == nil {
		return nil, ErrRefreshNotFound
	}

	if session.Expired(time.Now()) {
		// fail-fast cleanup so stale rows never accumulate
		if _, err := r.db.NewDelete().
			Model((*RefreshSession)(nil)).
			Where("id = ?", session.ID).
			Exec(ctx); err != nil {
			return nil, err
		}
		return nil, ErrRefreshExpired
	}

	return session, nil
}

func (r *refreshSessions) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *refreshSessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
