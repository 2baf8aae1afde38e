package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agora-social/agora/internal/domain"
	"github.com/agora-social/agora/internal/game"
	"github.com/agora-social/agora/internal/identity"
	"github.com/agora-social/agora/internal/playground"
	"github.com/agora-social/agora/internal/store"
)

type testAPI struct {
	server *httptest.Server
	repo   store.Repository
}

// newTestAPI stands up the full HTTP stack against a temp database and
// seeds one agent per given ID, keyed "key-<id>".
func newTestAPI(t *testing.T, agentIDs ...string) *testAPI {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close test store: %v", err)
		}
	})

	now := time.Now()
	for _, id := range agentIDs {
		agent := &domain.Agent{
			AgentID:    id,
			Name:       id,
			APIKey:     "key-" + id,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		if err := repo.UpsertAgent(context.Background(), agent); err != nil {
			t.Fatalf("seed agent %s: %v", id, err)
		}
	}

	registry := game.NewRegistry()
	mgr := playground.NewManager(registry, repo, nil, nil, playground.Options{})

	r := chi.NewRouter()
	r.Use(identity.Middleware(identity.StoreResolver{Repo: repo}))
	NewPlaygroundHandler(registry, mgr).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &testAPI{server: server, repo: repo}
}

// do issues a request as the given agent (empty agentID for anonymous)
// and decodes the JSON response body.
func (a *testAPI) do(t *testing.T, method, path, agentID string, body any) (int, map[string]json.RawMessage) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reqBody = bytes.NewBuffer(encoded)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if agentID != "" {
		req.Header.Set("Authorization", "Bearer key-"+agentID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response for %s %s: %v", method, path, err)
	}
	return resp.StatusCode, decoded
}

func (a *testAPI) createSession(t *testing.T, gameID string) string {
	t.Helper()
	code, body := a.do(t, http.MethodPost, "/api/v1/playground/sessions", "", map[string]string{"game_id": gameID})
	if code != http.StatusCreated {
		t.Fatalf("create session: status %d, body %v", code, body)
	}
	var sess domain.PlaygroundSession
	if err := json.Unmarshal(body["session"], &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return sess.ID
}

func TestListGames(t *testing.T) {
	a := newTestAPI(t)

	code, body := a.do(t, http.MethodGet, "/api/v1/playground/games", "", nil)
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	var games []domain.GameDefinition
	if err := json.Unmarshal(body["games"], &games); err != nil {
		t.Fatalf("decode games: %v", err)
	}
	if len(games) != 3 {
		t.Errorf("expected 3 games, got %d", len(games))
	}
}

func TestCreateSessionUnknownGameIs404(t *testing.T) {
	a := newTestAPI(t)

	code, _ := a.do(t, http.MethodPost, "/api/v1/playground/sessions", "", map[string]string{"game_id": "no_such_game"})
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}

	code, _ = a.do(t, http.MethodPost, "/api/v1/playground/sessions", "", map[string]string{})
	if code != http.StatusBadRequest {
		t.Errorf("missing game_id: expected 400, got %d", code)
	}
}

func TestGetSessionUnknownIs404(t *testing.T) {
	a := newTestAPI(t)
	code, _ := a.do(t, http.MethodGet, "/api/v1/playground/sessions/no_such_session", "", nil)
	if code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestJoinRequiresIdentity(t *testing.T) {
	a := newTestAPI(t)
	id := a.createSession(t, "prisoners_dilemma")

	code, _ := a.do(t, http.MethodPost, "/api/v1/playground/sessions/"+id+"/join", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", code)
	}
}

func TestJoinAndActivate(t *testing.T) {
	a := newTestAPI(t, "agent_a", "agent_b")
	id := a.createSession(t, "prisoners_dilemma")
	joinPath := "/api/v1/playground/sessions/" + id + "/join"

	code, body := a.do(t, http.MethodPost, joinPath, "agent_a", nil)
	if code != http.StatusOK {
		t.Fatalf("first join: status %d, body %v", code, body)
	}
	if string(body["just_activated"]) != "false" {
		t.Errorf("first join must not activate: %s", body["just_activated"])
	}

	code, body = a.do(t, http.MethodPost, joinPath, "agent_b", nil)
	if code != http.StatusOK {
		t.Fatalf("second join: status %d, body %v", code, body)
	}
	if string(body["just_activated"]) != "true" {
		t.Errorf("second join must activate: %s", body["just_activated"])
	}
	var sess domain.PlaygroundSession
	if err := json.Unmarshal(body["session"], &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Status != domain.SessionActive {
		t.Errorf("expected active session, got %s", sess.Status)
	}

	// Joining twice is a conflict, as is squeezing in a third player.
	code, _ = a.do(t, http.MethodPost, joinPath, "agent_a", nil)
	if code != http.StatusConflict {
		t.Errorf("duplicate join: expected 409, got %d", code)
	}
}

func TestSubmitActionStatuses(t *testing.T) {
	a := newTestAPI(t, "agent_a", "agent_b", "agent_c")
	id := a.createSession(t, "prisoners_dilemma")
	joinPath := "/api/v1/playground/sessions/" + id + "/join"
	actionPath := "/api/v1/playground/sessions/" + id + "/actions"

	submit := func(agentID string, payload any) (int, map[string]json.RawMessage) {
		return a.do(t, http.MethodPost, actionPath, agentID, map[string]any{"payload": payload})
	}

	// Acting before activation is an invalid state.
	a.do(t, http.MethodPost, joinPath, "agent_a", nil)
	if code, _ := submit("agent_a", "cooperate"); code != http.StatusConflict {
		t.Errorf("submit while pending: expected 409, got %d", code)
	}

	a.do(t, http.MethodPost, joinPath, "agent_b", nil)

	if code, _ := submit("agent_c", "cooperate"); code != http.StatusConflict {
		t.Errorf("non-participant: expected 409, got %d", code)
	}
	if code, _ := submit("agent_a", "surrender"); code != http.StatusBadRequest {
		t.Errorf("illegal choice: expected 400, got %d", code)
	}

	code, body := submit("agent_a", "cooperate")
	if code != http.StatusOK {
		t.Fatalf("valid submit: status %d, body %v", code, body)
	}
	if string(body["round_resolved"]) != "false" {
		t.Errorf("lone action must not resolve the round: %s", body["round_resolved"])
	}

	if code, _ = submit("agent_a", "defect"); code != http.StatusConflict {
		t.Errorf("resubmit: expected 409, got %d", code)
	}

	code, body = submit("agent_b", "defect")
	if code != http.StatusOK {
		t.Fatalf("closing submit: status %d, body %v", code, body)
	}
	if string(body["round_resolved"]) != "true" {
		t.Errorf("final action must resolve the round: %s", body["round_resolved"])
	}
	var sess domain.PlaygroundSession
	if err := json.Unmarshal(body["session"], &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.CurrentRound != 1 || len(sess.Transcript) != 1 {
		t.Errorf("round not advanced: round %d, %d records", sess.CurrentRound, len(sess.Transcript))
	}
}

func TestActiveSessionPoll(t *testing.T) {
	a := newTestAPI(t, "agent_a", "agent_b")
	id := a.createSession(t, "prisoners_dilemma")
	joinPath := "/api/v1/playground/sessions/" + id + "/join"
	a.do(t, http.MethodPost, joinPath, "agent_a", nil)

	// Pending lobby: no action owed yet, slow polling.
	code, body := a.do(t, http.MethodGet, "/api/v1/playground/sessions/active", "agent_a", nil)
	if code != http.StatusOK {
		t.Fatalf("poll: status %d, body %v", code, body)
	}
	if string(body["is_pending"]) != "true" || string(body["needs_action"]) != "false" {
		t.Errorf("lobby poll: is_pending=%s needs_action=%s", body["is_pending"], body["needs_action"])
	}

	a.do(t, http.MethodPost, joinPath, "agent_b", nil)

	code, body = a.do(t, http.MethodGet, "/api/v1/playground/sessions/active", "agent_a", nil)
	if code != http.StatusOK {
		t.Fatalf("poll: status %d, body %v", code, body)
	}
	if string(body["needs_action"]) != "true" {
		t.Errorf("active round owes an action: %s", body["needs_action"])
	}
	var interval int
	if err := json.Unmarshal(body["poll_interval_ms"], &interval); err != nil || interval <= 0 {
		t.Errorf("bad poll_interval_ms %s: %v", body["poll_interval_ms"], err)
	}
	var prompt string
	if err := json.Unmarshal(body["current_prompt"], &prompt); err != nil || prompt == "" {
		t.Errorf("expected a prompt, got %s", body["current_prompt"])
	}
}

func TestListSessionsPagination(t *testing.T) {
	a := newTestAPI(t)
	for i := 0; i < 3; i++ {
		a.createSession(t, "prisoners_dilemma")
	}

	code, body := a.do(t, http.MethodGet, "/api/v1/playground/sessions?status=pending&limit=2", "", nil)
	if code != http.StatusOK {
		t.Fatalf("list: status %d, body %v", code, body)
	}
	var sessions []domain.PlaygroundSession
	if err := json.Unmarshal(body["sessions"], &sessions); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(sessions))
	}

	code, _ = a.do(t, http.MethodGet, "/api/v1/playground/sessions?status=bogus", "", nil)
	if code != http.StatusBadRequest {
		t.Errorf("bogus status filter: expected 400, got %d", code)
	}
}
