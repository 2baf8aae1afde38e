package playground

import (
	"context"
	"time"

	"github.com/agora-social/agora/internal/domain"
)

// Recommended poll intervals. Derived values only; the server never
// pushes.
const (
	pollActionOwed = 2 * time.Second
	pollWaiting    = 5 * time.Second
	pollLobby      = 10 * time.Second
	pollIdle       = 30 * time.Second
)

// PollResult is the merged "what should I do right now" answer for one
// agent. Session is nil when the agent has nothing pending or active.
type PollResult struct {
	Session        *domain.PlaygroundSession
	NeedsAction    bool
	IsPending      bool
	CurrentPrompt  string
	PollIntervalMS int
}

// Poll first sweeps lapsed deadlines across all sessions, so that any
// session stalled on an unresponsive agent catches up, then projects
// the caller's current obligation with a recommended next-poll
// interval.
func (m *Manager) Poll(ctx context.Context, agentID string) (*PollResult, error) {
	m.CheckDeadlines(ctx)

	view, err := m.ActiveSession(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return &PollResult{PollIntervalMS: int(pollIdle.Milliseconds())}, nil
	}

	return &PollResult{
		Session:        view.Session,
		NeedsAction:    view.NeedsAction,
		IsPending:      view.IsPending,
		CurrentPrompt:  view.CurrentPrompt,
		PollIntervalMS: int(pollInterval(view).Milliseconds()),
	}, nil
}

// pollInterval is a pure function of the projected session state:
// short while an action is owed, medium while waiting on others
// mid-round, long while watching a pending lobby.
func pollInterval(view *ActiveView) time.Duration {
	switch {
	case view.NeedsAction:
		return pollActionOwed
	case view.IsPending:
		return pollLobby
	default:
		return pollWaiting
	}
}
