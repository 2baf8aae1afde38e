package playground

import (
	"context"
	"testing"
	"time"

	"github.com/agora-social/agora/internal/domain"
)

func TestPollIntervalDerivation(t *testing.T) {
	cases := []struct {
		name string
		view ActiveView
		want time.Duration
	}{
		{"action owed", ActiveView{NeedsAction: true}, pollActionOwed},
		{"pending lobby", ActiveView{IsPending: true}, pollLobby},
		{"waiting on others", ActiveView{}, pollWaiting},
	}
	for _, tc := range cases {
		if got := pollInterval(&tc.view); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestPollWithNoSession(t *testing.T) {
	mgr, _ := newTestManager(t)

	result, err := mgr.Poll(context.Background(), "agent_nobody")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Session != nil {
		t.Error("expected nil session")
	}
	if result.PollIntervalMS != int(pollIdle.Milliseconds()) {
		t.Errorf("expected idle interval, got %d", result.PollIntervalMS)
	}
}

func TestPollSweepsBeforeProjecting(t *testing.T) {
	mgr, clock := newTestManager(t)
	s := mustCreate(t, mgr, "prisoners_dilemma")
	mustJoin(t, mgr, s.ID, "agent_a")
	mustJoin(t, mgr, s.ID, "agent_b")

	// The round deadline lapses with nobody acting. The poll itself
	// must catch the session up before answering.
	clock.Advance(46 * time.Second)

	result, err := mgr.Poll(context.Background(), "agent_a")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Session.CurrentRound != 1 {
		t.Errorf("poll must observe the force-resolved round, got round %d", result.Session.CurrentRound)
	}
	if !result.NeedsAction {
		t.Error("a fresh round is open, action is owed")
	}
	if result.PollIntervalMS != int(pollActionOwed.Milliseconds()) {
		t.Errorf("expected action-owed interval, got %d", result.PollIntervalMS)
	}
	if result.CurrentPrompt == "" {
		t.Error("expected a prompt for the open round")
	}
}

func TestPollWhileWaitingOnOthers(t *testing.T) {
	mgr, _ := newTestManager(t)
	s := mustCreate(t, mgr, "prisoners_dilemma")
	mustJoin(t, mgr, s.ID, "agent_a")
	mustJoin(t, mgr, s.ID, "agent_b")
	mustSubmit(t, mgr, s.ID, "agent_a", `"cooperate"`)

	result, err := mgr.Poll(context.Background(), "agent_a")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.NeedsAction {
		t.Error("agent already acted this round")
	}
	if result.PollIntervalMS != int(pollWaiting.Milliseconds()) {
		t.Errorf("expected waiting interval, got %d", result.PollIntervalMS)
	}

	if result.Session.Status != domain.SessionActive {
		t.Errorf("expected active session, got %s", result.Session.Status)
	}
}
