package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval matches the daily cadence of the refresh store sweep.
const DefaultSweepInterval = 24 * time.Hour

// SessionSweeper periodically deletes expired refresh sessions. It is owned
// by the process: Start begins the recurring sweep, Stop halts it. Each run
// is a bounded idempotent delete, so overlap with Issue or Validate needs no
// coordination.
type SessionSweeper struct {
	sessions RefreshSessions
	interval time.Duration
	logger   Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSessionSweeper(sessions RefreshSessions, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SessionSweeper{
		sessions: sessions,
		interval: interval,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the sweeper.
func (s *SessionSweeper) WithLogger(logger Logger) *SessionSweeper {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Start launches the background sweep. Calling Start on a running sweeper is
// a no-op.
func (s *SessionSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done

	go s.run(ctx, done)
}

// Stop halts the sweep and waits for the current run, if any, to finish.
func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *SessionSweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one delete pass. Exposed so hosts can trigger it on demand.
func (s *SessionSweeper) Sweep(ctx context.Context) {
	deleted, err := s.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("refresh session sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("swept expired refresh sessions", "deleted", deleted)
	}
}
