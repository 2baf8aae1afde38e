package playground

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agora-social/agora/internal/domain"
	"github.com/agora-social/agora/internal/game"
	"github.com/agora-social/agora/internal/social"
	"github.com/agora-social/agora/internal/store"
	"github.com/google/uuid"
)

const (
	defaultResponseWindow = 60 * time.Second
	defaultJoinTimeout    = 10 * time.Minute
)

// Options tune the scheduler's deadline behavior.
type Options struct {
	// ResponseWindow is the per-round submission window used when a
	// scene does not declare its own.
	ResponseWindow time.Duration
	// JoinTimeout is how long a pending session may wait for players
	// before it expires.
	JoinTimeout time.Duration
}

// Manager owns the session state machine: creation, joining, action
// submission, round resolution, and completion. All progress is driven
// by incoming requests; there is no per-session background goroutine.
type Manager struct {
	registry *game.Registry
	repo     store.Repository
	karma    social.KarmaAwarder
	vetting  social.VettingChecker
	opts     Options

	// Per-session mutexes. Every read-then-write operation holds the
	// session's lock so a submit-triggered resolution and a sweep
	// cannot resolve the same round twice, and racing joins cannot
	// both observe the activation transition.
	locks sync.Map

	now func() time.Time
}

// NewManager creates a session manager. Nil collaborators fall back to
// no-op implementations.
func NewManager(registry *game.Registry, repo store.Repository, karma social.KarmaAwarder, vetting social.VettingChecker, opts Options) *Manager {
	if opts.ResponseWindow <= 0 {
		opts.ResponseWindow = defaultResponseWindow
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if karma == nil {
		karma = social.NopKarma{}
	}
	if vetting == nil {
		vetting = social.AllowAll{}
	}
	return &Manager{
		registry: registry,
		repo:     repo,
		karma:    karma,
		vetting:  vetting,
		opts:     opts,
		now:      time.Now,
	}
}

func (m *Manager) lockSession(sessionID string) func() {
	v, _ := m.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (m *Manager) windowFor(scene domain.Scene) time.Duration {
	if scene.ResponseWindowSec > 0 {
		return time.Duration(scene.ResponseWindowSec) * time.Second
	}
	return m.opts.ResponseWindow
}

// CreateSession creates a pending session for the given game.
func (m *Manager) CreateSession(ctx context.Context, gameID string) (*domain.PlaygroundSession, error) {
	def, ok := m.registry.Get(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}

	s := &domain.PlaygroundSession{
		ID:        uuid.NewString(),
		GameID:    def.ID,
		Status:    domain.SessionPending,
		MaxRounds: def.MaxRounds(),
		CreatedAt: m.now(),
	}
	if err := m.repo.CreateSession(ctx, s); err != nil {
		return nil, internalError("create session", err)
	}

	slog.Info("playground session created", "session_id", s.ID, "game_id", s.GameID)
	return s, nil
}

// Join seats an agent in a pending session. When the join brings the
// participant count to the game's minimum, the session activates and
// round 0 opens; exactly one joiner observes justActivated=true.
func (m *Manager) Join(ctx context.Context, sessionID, agentID, agentName string) (s *domain.PlaygroundSession, justActivated bool, err error) {
	vetted, err := m.vetting.Vetted(ctx, agentID)
	if err != nil {
		return nil, false, internalError("check vetting", err)
	}
	if !vetted {
		return nil, false, ErrAgentNotVetted
	}

	unlock := m.lockSession(sessionID)
	defer unlock()

	s, err = m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false, internalError("load session", err)
	}
	if s == nil {
		return nil, false, ErrSessionNotFound
	}
	if s.Status != domain.SessionPending {
		return nil, false, ErrSessionNotJoinable
	}
	if s.HasParticipant(agentID) {
		return nil, false, ErrAlreadyJoined
	}

	def, ok := m.registry.Get(s.GameID)
	if !ok {
		return nil, false, internalError("session references unknown game "+s.GameID, nil)
	}
	if len(s.Participants) >= def.MaxPlayers {
		return nil, false, ErrSessionFull
	}

	s.Participants = append(s.Participants, domain.Participant{
		AgentID:   agentID,
		AgentName: agentName,
		Status:    domain.ParticipantJoined,
		Role:      fmt.Sprintf("player_%d", len(s.Participants)+1),
	})

	if len(s.Participants) == def.MinPlayers {
		now := m.now()
		scene, ok := def.SceneForRound(0)
		if !ok {
			return nil, false, internalError("game "+def.ID+" has no scene for round 0", nil)
		}
		deadline := now.Add(m.windowFor(scene))
		s.Status = domain.SessionActive
		s.StartedAt = &now
		s.RoundDeadline = &deadline
		justActivated = true
	}

	if err := m.persist(ctx, s, 0, domain.SessionPending); err != nil {
		return nil, false, err
	}

	slog.Info("agent joined playground session",
		"session_id", s.ID,
		"agent_id", agentID,
		"participants", len(s.Participants),
		"activated", justActivated)
	return s, justActivated, nil
}

// SubmitResult reports the freshest session state after a submission,
// including whether the submission completed the round.
type SubmitResult struct {
	Session       *domain.PlaygroundSession
	RoundResolved bool
}

// SubmitAction records an agent's action for the open round. A second
// submission from the same agent in the same round is rejected, not
// overwritten. When the submission makes every participant acted, the
// round resolves inline before returning.
func (m *Manager) SubmitAction(ctx context.Context, sessionID, agentID string, payload json.RawMessage) (*SubmitResult, error) {
	unlock := m.lockSession(sessionID)
	defer unlock()

	s, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, internalError("load session", err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	if s.Status != domain.SessionActive {
		return nil, ErrSessionNotActive
	}

	p := s.Participant(agentID)
	if p == nil || p.Status == domain.ParticipantLeft {
		return nil, ErrNotAParticipant
	}
	if p.Status == domain.ParticipantActed {
		return nil, ErrAlreadyActed
	}

	now := m.now()
	if s.DeadlineLapsed(now) {
		// The sweeper will force-resolve (or already has); late
		// submissions are ignored rather than racing it.
		return nil, ErrDeadlinePassed
	}

	def, ok := m.registry.Get(s.GameID)
	if !ok {
		return nil, internalError("session references unknown game "+s.GameID, nil)
	}
	scene, ok := def.SceneForRound(s.CurrentRound)
	if !ok {
		return nil, internalError(fmt.Sprintf("no scene for round %d", s.CurrentRound), nil)
	}

	normalized, err := game.ValidateAction(scene.ActionSpec, payload)
	if err != nil {
		return nil, validationError(err)
	}

	s.Pending = append(s.Pending, domain.PendingAction{
		AgentID:     agentID,
		SubmittedAt: now,
		Payload:     normalized,
	})
	p.Status = domain.ParticipantActed

	expectedRound := s.CurrentRound
	resolved := false
	if s.AllActed() {
		if err := m.resolveRound(s, def, domain.ResolvedAllActed); err != nil {
			return nil, err
		}
		resolved = true
	}

	if err := m.persist(ctx, s, expectedRound, domain.SessionActive); err != nil {
		return nil, err
	}

	if resolved {
		m.afterResolution(ctx, s)
	}
	return &SubmitResult{Session: s, RoundResolved: resolved}, nil
}

// resolveRound resolves the currently open round in memory. Callers
// hold the session lock and persist the result afterwards; a persist
// failure leaves the stored record untouched.
func (m *Manager) resolveRound(s *domain.PlaygroundSession, def domain.GameDefinition, trigger domain.ResolvedBy) error {
	scene, ok := def.SceneForRound(s.CurrentRound)
	if !ok {
		return internalError(fmt.Sprintf("no scene for round %d", s.CurrentRound), nil)
	}

	now := m.now()
	var moves []game.Move
	var actions []domain.RoundAction
	for _, p := range s.Participants {
		if p.Status == domain.ParticipantLeft {
			continue
		}
		mv := game.Move{AgentID: p.AgentID, Role: p.Role, TimedOut: true}
		if pa := s.PendingFor(p.AgentID); pa != nil {
			mv.TimedOut = false
			mv.Payload = pa.Payload
		}
		moves = append(moves, mv)
		actions = append(actions, domain.RoundAction{
			AgentID:  mv.AgentID,
			Role:     mv.Role,
			TimedOut: mv.TimedOut,
			Payload:  mv.Payload,
		})
	}

	outcome, err := game.Resolve(s.GameID, scene, moves)
	if err != nil {
		return internalError("resolve round", err)
	}

	s.Transcript = append(s.Transcript, domain.RoundRecord{
		RoundIndex: s.CurrentRound,
		SceneName:  scene.Name,
		Actions:    actions,
		Outcome:    outcome,
		ResolvedAt: now,
		ResolvedBy: trigger,
	})

	for i := range s.Participants {
		if s.Participants[i].Status == domain.ParticipantActed {
			s.Participants[i].Status = domain.ParticipantJoined
		}
	}
	s.Pending = nil
	s.CurrentRound++

	if s.CurrentRound >= s.MaxRounds {
		s.Status = domain.SessionCompleted
		s.CompletedAt = &now
		s.RoundDeadline = nil
		s.Summary = game.Summarize(s.GameID, s.Transcript)
		return nil
	}

	nextScene, ok := def.SceneForRound(s.CurrentRound)
	if !ok {
		return internalError(fmt.Sprintf("no scene for round %d", s.CurrentRound), nil)
	}
	deadline := now.Add(m.windowFor(nextScene))
	s.RoundDeadline = &deadline
	return nil
}

// persist writes the session back with the store's compare-and-update,
// mapping a stale record to a retryable conflict.
func (m *Manager) persist(ctx context.Context, s *domain.PlaygroundSession, expectedRound int, expectedStatus domain.SessionStatus) error {
	err := m.repo.UpdateSession(ctx, s, expectedRound, expectedStatus)
	if err == nil {
		return nil
	}
	if err == store.ErrStaleSession {
		return ErrConcurrentUpdate
	}
	return internalError("persist session", err)
}

func (m *Manager) afterResolution(ctx context.Context, s *domain.PlaygroundSession) {
	if s.Status != domain.SessionCompleted {
		return
	}
	slog.Info("playground session completed",
		"session_id", s.ID,
		"game_id", s.GameID,
		"rounds", len(s.Transcript))
	m.karma.SessionCompleted(ctx, s)
}

// GetSession returns one session by ID for history queries, including
// the transcripts of completed and expired sessions.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*domain.PlaygroundSession, error) {
	s, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, internalError("load session", err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ListSessions returns sessions newest first, optionally filtered by
// status.
func (m *Manager) ListSessions(ctx context.Context, status domain.SessionStatus, limit, offset int) ([]*domain.PlaygroundSession, error) {
	switch status {
	case "", domain.SessionPending, domain.SessionActive, domain.SessionCompleted, domain.SessionExpired:
	default:
		return nil, &Error{Kind: KindValidation, Msg: "unknown status filter " + string(status)}
	}
	sessions, err := m.repo.ListSessions(ctx, status, limit, offset)
	if err != nil {
		return nil, internalError("list sessions", err)
	}
	if sessions == nil {
		sessions = []*domain.PlaygroundSession{}
	}
	return sessions, nil
}

// ActiveView is the read-only projection of an agent's current session
// obligation.
type ActiveView struct {
	Session       *domain.PlaygroundSession
	NeedsAction   bool
	IsPending     bool
	CurrentPrompt string
}

// ActiveSession returns the agent's current obligation, or nil when the
// agent has no pending or active session. Reads do not take the session
// lock; a poll racing a resolution may see the just-advanced state,
// which the polling contract allows.
func (m *Manager) ActiveSession(ctx context.Context, agentID string) (*ActiveView, error) {
	s, err := m.repo.ActiveSessionForAgent(ctx, agentID)
	if err != nil {
		return nil, internalError("load active session", err)
	}
	if s == nil {
		return nil, nil
	}

	view := &ActiveView{Session: s}
	if s.Status == domain.SessionPending {
		view.IsPending = true
		view.CurrentPrompt = "Waiting for more players to join."
		return view, nil
	}

	p := s.Participant(agentID)
	view.NeedsAction = p != nil && p.Status == domain.ParticipantJoined
	if def, ok := m.registry.Get(s.GameID); ok {
		view.CurrentPrompt = promptFor(def, s)
	}
	return view, nil
}

func promptFor(def domain.GameDefinition, s *domain.PlaygroundSession) string {
	scene, ok := def.SceneForRound(s.CurrentRound)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s (scene %q, round %d of %d)",
		scene.Description, scene.Name, s.CurrentRound+1, s.MaxRounds)
}
