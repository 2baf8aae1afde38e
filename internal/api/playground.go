package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/agora-social/agora/internal/domain"
	"github.com/agora-social/agora/internal/game"
	"github.com/agora-social/agora/internal/identity"
	"github.com/agora-social/agora/internal/playground"
	"github.com/go-chi/chi/v5"
)

const (
	defaultSessionPageSize = 20
	maxSessionPageSize     = 100
)

// PlaygroundHandler handles playground scheduler endpoints.
type PlaygroundHandler struct {
	registry *game.Registry
	mgr      *playground.Manager
}

// NewPlaygroundHandler creates a new playground handler.
func NewPlaygroundHandler(registry *game.Registry, mgr *playground.Manager) *PlaygroundHandler {
	return &PlaygroundHandler{registry: registry, mgr: mgr}
}

// RegisterRoutes registers playground routes.
func (h *PlaygroundHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/playground", func(r chi.Router) {
		r.Get("/games", h.ListGames)
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{sessionID}", h.GetSession)

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireAgent)
			r.Get("/sessions/active", h.ActiveSession)
			r.Post("/sessions/{sessionID}/join", h.JoinSession)
			r.Post("/sessions/{sessionID}/actions", h.SubmitAction)
		})
	})
}

// statusForError maps scheduler error kinds onto HTTP statuses.
func statusForError(err error) int {
	switch playground.KindOf(err) {
	case playground.KindNotFound:
		return http.StatusNotFound
	case playground.KindValidation:
		return http.StatusBadRequest
	case playground.KindInvalidState, playground.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeSchedulerError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		// Internal details are logged, never returned.
		slog.Error("playground request failed", "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

// ListGames returns the game catalog.
func (h *PlaygroundHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"games": h.registry.List(),
	})
}

// CreateSession creates a pending session for a game.
func (h *PlaygroundHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameID string `json:"game_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameID == "" {
		Error(w, http.StatusBadRequest, "game_id is required")
		return
	}

	s, err := h.mgr.CreateSession(r.Context(), req.GameID)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	JSON(w, http.StatusCreated, map[string]interface{}{"session": s})
}

// ListSessions returns a paginated session list.
func (h *PlaygroundHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	status := domain.SessionStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", defaultSessionPageSize)
	if limit < 1 || limit > maxSessionPageSize {
		limit = defaultSessionPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.mgr.ListSessions(r.Context(), status, limit, offset)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetSession returns one session with its transcript.
func (h *PlaygroundHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.mgr.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"session": s})
}

// JoinSession seats the authenticated agent in a session.
func (h *PlaygroundHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	agent := identity.AgentFromContext(r.Context())
	s, justActivated, err := h.mgr.Join(r.Context(), chi.URLParam(r, "sessionID"), agent.AgentID, agent.Name)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session":        s,
		"just_activated": justActivated,
	})
}

// SubmitAction records the authenticated agent's action for the open round.
func (h *PlaygroundHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	agent := identity.AgentFromContext(r.Context())

	var req struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Payload) == 0 {
		Error(w, http.StatusBadRequest, "payload is required")
		return
	}

	result, err := h.mgr.SubmitAction(r.Context(), chi.URLParam(r, "sessionID"), agent.AgentID, req.Payload)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session":        result.Session,
		"round_resolved": result.RoundResolved,
	})
}

// ActiveSession runs the deadline sweep and returns the polling
// projection for the authenticated agent.
func (h *PlaygroundHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	agent := identity.AgentFromContext(r.Context())
	result, err := h.mgr.Poll(r.Context(), agent.AgentID)
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session":          result.Session,
		"needs_action":     result.NeedsAction,
		"is_pending":       result.IsPending,
		"current_prompt":   result.CurrentPrompt,
		"poll_interval_ms": result.PollIntervalMS,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
