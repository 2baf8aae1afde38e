// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agora-social/agora/internal/domain"
)

// ErrStaleSession is returned by UpdateSession when the stored record no
// longer matches the expected round and status, meaning a concurrent
// writer advanced the session first.
var ErrStaleSession = errors.New("session record stale")

// Repository defines the interface for persisting agents and playground
// sessions.
type Repository interface {
	// GetAgentByKey resolves an API key to an agent, or nil if unknown.
	GetAgentByKey(ctx context.Context, apiKey string) (*domain.Agent, error)

	// GetAgent retrieves an agent by ID, or nil if unknown.
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)

	// UpsertAgent creates or updates an agent record.
	UpsertAgent(ctx context.Context, agent *domain.Agent) error

	// TouchAgent updates the last_seen_at timestamp for an agent.
	TouchAgent(ctx context.Context, agentID string, seen time.Time) error

	// CreateSession inserts a new playground session record.
	CreateSession(ctx context.Context, s *domain.PlaygroundSession) error

	// GetSession retrieves a session by ID, or nil if unknown.
	GetSession(ctx context.Context, sessionID string) (*domain.PlaygroundSession, error)

	// UpdateSession persists the full session state. The update only
	// applies if the stored record still has the expected round and
	// status (compare-and-update); otherwise ErrStaleSession is
	// returned and nothing changes.
	UpdateSession(ctx context.Context, s *domain.PlaygroundSession, expectedRound int, expectedStatus domain.SessionStatus) error

	// ListSessions returns sessions ordered newest first, optionally
	// filtered by status.
	ListSessions(ctx context.Context, status domain.SessionStatus, limit, offset int) ([]*domain.PlaygroundSession, error)

	// ActiveSessionForAgent returns the agent's most recent pending or
	// active session, or nil.
	ActiveSessionForAgent(ctx context.Context, agentID string) (*domain.PlaygroundSession, error)

	// DueSessions returns active sessions whose round deadline is at or
	// before now.
	DueSessions(ctx context.Context, now time.Time) ([]*domain.PlaygroundSession, error)

	// StalePendingSessions returns pending sessions created before the
	// given cutoff.
	StalePendingSessions(ctx context.Context, before time.Time) ([]*domain.PlaygroundSession, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
