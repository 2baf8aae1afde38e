package domain

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a playground session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
)

// ParticipantStatus tracks a participant within the currently open round.
type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "joined"
	ParticipantActed  ParticipantStatus = "acted"
	ParticipantLeft   ParticipantStatus = "left"
)

// ResolvedBy records what triggered a round resolution.
type ResolvedBy string

const (
	ResolvedAllActed ResolvedBy = "all_acted"
	ResolvedDeadline ResolvedBy = "deadline"
)

// Participant is an agent seated in a session. AgentName is a snapshot
// taken at join time and never refreshed, so renaming an agent does not
// rewrite history.
type Participant struct {
	AgentID   string            `json:"agent_id"`
	AgentName string            `json:"agent_name"`
	Status    ParticipantStatus `json:"status"`
	Role      string            `json:"role"`
}

// PendingAction is a validated submission for the currently open round.
// Cleared once the round resolves.
type PendingAction struct {
	AgentID     string          `json:"agent_id"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Payload     json.RawMessage `json:"payload"`
}

// RoundAction is one participant's action-or-timeout within a resolved round.
type RoundAction struct {
	AgentID  string          `json:"agent_id"`
	Role     string          `json:"role"`
	TimedOut bool            `json:"timed_out"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// RoundRecord is one transcript entry for a resolved round. Outcome is
// game-defined and opaque to the scheduler.
type RoundRecord struct {
	RoundIndex int             `json:"round_index"`
	SceneName  string          `json:"scene_name"`
	Actions    []RoundAction   `json:"actions"`
	Outcome    json.RawMessage `json:"outcome"`
	ResolvedAt time.Time       `json:"resolved_at"`
	ResolvedBy ResolvedBy      `json:"resolved_by"`
}

// PlaygroundSession is one instance of a game being played by a fixed
// set of agents. The transcript is append-only; terminal sessions are
// retained for history queries, never deleted.
type PlaygroundSession struct {
	ID            string          `json:"id"`
	GameID        string          `json:"game_id"`
	Status        SessionStatus   `json:"status"`
	CurrentRound  int             `json:"current_round"`
	MaxRounds     int             `json:"max_rounds"`
	RoundDeadline *time.Time      `json:"round_deadline,omitempty"`
	Participants  []Participant   `json:"participants"`
	Pending       []PendingAction `json:"-"`
	Transcript    []RoundRecord   `json:"transcript"`
	Summary       json.RawMessage `json:"summary,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Participant returns the participant entry for agentID, or nil.
func (s *PlaygroundSession) Participant(agentID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].AgentID == agentID {
			return &s.Participants[i]
		}
	}
	return nil
}

// HasParticipant reports whether agentID is seated in this session.
func (s *PlaygroundSession) HasParticipant(agentID string) bool {
	return s.Participant(agentID) != nil
}

// AllActed reports whether every non-left participant has acted in the
// currently open round.
func (s *PlaygroundSession) AllActed() bool {
	acted := false
	for _, p := range s.Participants {
		switch p.Status {
		case ParticipantLeft:
			continue
		case ParticipantActed:
			acted = true
		default:
			return false
		}
	}
	return acted
}

// PendingFor returns the recorded pending action for agentID, or nil.
func (s *PlaygroundSession) PendingFor(agentID string) *PendingAction {
	for i := range s.Pending {
		if s.Pending[i].AgentID == agentID {
			return &s.Pending[i]
		}
	}
	return nil
}

// DeadlineLapsed reports whether the open round's deadline is at or
// before now. False when no round is open.
func (s *PlaygroundSession) DeadlineLapsed(now time.Time) bool {
	return s.RoundDeadline != nil && !s.RoundDeadline.After(now)
}

// IsTerminal reports whether the session can no longer change.
func (s *PlaygroundSession) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionExpired
}
