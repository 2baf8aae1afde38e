package playground

import (
	"context"
	"log/slog"
	"time"

	"github.com/agora-social/agora/internal/domain"
)

// CheckDeadlines scans for active sessions whose round deadline has
// lapsed and force-resolves them with timeout markers for every
// participant that has not acted, then expires pending sessions that
// outlived the join timeout. It returns the number of sessions
// advanced. Safe to call arbitrarily often from concurrent callers:
// each session is re-read and re-checked under its own lock, so a tick
// racing a submit-triggered resolution resolves nothing twice.
func (m *Manager) CheckDeadlines(ctx context.Context) int {
	advanced := 0

	due, err := m.repo.DueSessions(ctx, m.now())
	if err != nil {
		slog.Error("sweep failed to list due sessions", "error", err)
	} else {
		for _, stale := range due {
			if m.forceResolve(ctx, stale.ID) {
				advanced++
			}
		}
	}

	cutoff := m.now().Add(-m.opts.JoinTimeout)
	stalePending, err := m.repo.StalePendingSessions(ctx, cutoff)
	if err != nil {
		slog.Error("sweep failed to list stale pending sessions", "error", err)
	} else {
		for _, stale := range stalePending {
			if m.expirePending(ctx, stale.ID, cutoff) {
				advanced++
			}
		}
	}

	return advanced
}

// forceResolve resolves one session's lapsed round. The session is
// re-read under its lock; anything another caller already advanced is
// skipped.
func (m *Manager) forceResolve(ctx context.Context, sessionID string) bool {
	unlock := m.lockSession(sessionID)
	defer unlock()

	s, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		slog.Error("sweep failed to load session", "session_id", sessionID, "error", err)
		return false
	}
	if s == nil || s.Status != domain.SessionActive || !s.DeadlineLapsed(m.now()) {
		return false
	}

	def, ok := m.registry.Get(s.GameID)
	if !ok {
		slog.Error("sweep found session with unknown game", "session_id", s.ID, "game_id", s.GameID)
		return false
	}

	expectedRound := s.CurrentRound
	if err := m.resolveRound(s, def, domain.ResolvedDeadline); err != nil {
		slog.Error("sweep failed to resolve round", "session_id", s.ID, "error", err)
		return false
	}
	if err := m.persist(ctx, s, expectedRound, domain.SessionActive); err != nil {
		slog.Error("sweep failed to persist resolution", "session_id", s.ID, "error", err)
		return false
	}

	slog.Info("sweep force-resolved round",
		"session_id", s.ID,
		"round", expectedRound,
		"status", s.Status)
	m.afterResolution(ctx, s)
	return true
}

// expirePending marks a stale pending session expired. Expiry is
// terminal; the transcript stays empty because no round ever opened.
func (m *Manager) expirePending(ctx context.Context, sessionID string, cutoff time.Time) bool {
	unlock := m.lockSession(sessionID)
	defer unlock()

	s, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		slog.Error("sweep failed to load pending session", "session_id", sessionID, "error", err)
		return false
	}
	if s == nil || s.Status != domain.SessionPending || !s.CreatedAt.Before(cutoff) {
		return false
	}

	s.Status = domain.SessionExpired
	if err := m.persist(ctx, s, s.CurrentRound, domain.SessionPending); err != nil {
		slog.Error("sweep failed to expire session", "session_id", s.ID, "error", err)
		return false
	}

	slog.Info("sweep expired pending session", "session_id", s.ID, "age", m.now().Sub(s.CreatedAt))
	return true
}

// StartSweepWorker runs a background ticker that sweeps deadlines even
// when no agent is polling. The per-poll sweep remains the primary
// mechanism; this is the safety net for fully idle periods.
func StartSweepWorker(ctx context.Context, m *Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("sweep worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				if n := m.CheckDeadlines(ctx); n > 0 {
					slog.Info("sweep worker advanced sessions", "count", n)
				}
			case <-ctx.Done():
				slog.Info("sweep worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
