package game

import (
	"encoding/json"
	"fmt"

	"github.com/agora-social/agora/internal/domain"
)

// Move is one participant's contribution to a round at resolution time.
// A timed-out participant carries no payload; the resolution logic
// interprets the abstention (the scheduler assumes no default action).
type Move struct {
	AgentID  string
	Role     string
	TimedOut bool
	Payload  json.RawMessage
}

// Resolve runs the game's resolution function for one round and returns
// the outcome as opaque JSON. The scheduler stores it in the transcript
// without interpreting it.
func Resolve(gameID string, scene domain.Scene, moves []Move) (json.RawMessage, error) {
	switch gameID {
	case "prisoners_dilemma":
		return resolveDilemma(moves)
	case "public_goods":
		return resolvePublicGoods(scene, moves)
	case "diplomacy_summit":
		if scene.Name == "parley" {
			return resolveParley(moves)
		}
		return resolveCommit(moves)
	default:
		return nil, fmt.Errorf("no resolution logic for game %q", gameID)
	}
}

// Summarize aggregates the per-round outcomes of a completed session.
// Any outcome with a "scores" object contributes to the totals.
func Summarize(gameID string, records []domain.RoundRecord) json.RawMessage {
	totals := map[string]float64{}
	for _, rec := range records {
		var outcome struct {
			Scores map[string]float64 `json:"scores"`
		}
		if err := json.Unmarshal(rec.Outcome, &outcome); err != nil {
			continue
		}
		for agent, pts := range outcome.Scores {
			totals[agent] += pts
		}
	}

	best := ""
	var bestScore float64
	for agent, pts := range totals {
		if best == "" || pts > bestScore {
			best, bestScore = agent, pts
		}
	}

	summary := map[string]any{
		"game_id": gameID,
		"rounds":  len(records),
		"totals":  totals,
	}
	if best != "" {
		summary["leader"] = best
	}
	out, _ := json.Marshal(summary)
	return out
}

func choiceOf(m Move) string {
	if m.TimedOut {
		return "abstained"
	}
	var c string
	if err := json.Unmarshal(m.Payload, &c); err != nil {
		return "abstained"
	}
	return c
}

// resolveDilemma scores a prisoner's dilemma round. Abstaining is
// treated as the worst case for the abstainer: the opponent collects
// the temptation payoff.
func resolveDilemma(moves []Move) (json.RawMessage, error) {
	if len(moves) != 2 {
		return nil, fmt.Errorf("prisoners_dilemma needs 2 moves, got %d", len(moves))
	}
	a, b := moves[0], moves[1]
	ca, cb := choiceOf(a), choiceOf(b)

	score := func(mine, theirs string) float64 {
		switch {
		case mine == "abstained":
			return 0
		case theirs == "abstained":
			return 5
		case mine == "cooperate" && theirs == "cooperate":
			return 3
		case mine == "cooperate" && theirs == "defect":
			return 0
		case mine == "defect" && theirs == "cooperate":
			return 5
		default:
			return 1
		}
	}

	return json.Marshal(map[string]any{
		"choices": map[string]string{a.AgentID: ca, b.AgentID: cb},
		"scores": map[string]float64{
			a.AgentID: score(ca, cb),
			b.AgentID: score(cb, ca),
		},
	})
}

// resolvePublicGoods pools contributions, grows the pot by half, and
// splits it evenly. Abstaining contributes nothing but still shares the
// pot, which is exactly the free-rider incentive the game studies.
func resolvePublicGoods(scene domain.Scene, moves []Move) (json.RawMessage, error) {
	contributions := map[string]int64{}
	var pot int64
	for _, m := range moves {
		var c int64
		if !m.TimedOut {
			if err := json.Unmarshal(m.Payload, &c); err != nil {
				return nil, fmt.Errorf("decode contribution for %s: %w", m.AgentID, err)
			}
		}
		contributions[m.AgentID] = c
		pot += c
	}

	grown := float64(pot) * 1.5
	share := grown / float64(len(moves))
	endowment := float64(scene.ActionSpec.Max)

	scores := map[string]float64{}
	for _, m := range moves {
		scores[m.AgentID] = endowment - float64(contributions[m.AgentID]) + share
	}

	return json.Marshal(map[string]any{
		"pot":           pot,
		"contributions": contributions,
		"scores":        scores,
	})
}

// resolveParley records the exchanged messages. No scoring happens in a
// parley round; a timed-out delegate simply stays silent.
func resolveParley(moves []Move) (json.RawMessage, error) {
	messages := map[string]any{}
	for _, m := range moves {
		if m.TimedOut {
			messages[m.AgentID] = nil
			continue
		}
		var msg string
		if err := json.Unmarshal(m.Payload, &msg); err != nil {
			return nil, fmt.Errorf("decode message for %s: %w", m.AgentID, err)
		}
		messages[m.AgentID] = msg
	}
	return json.Marshal(map[string]any{"messages": messages})
}

// resolveCommit scores the final accord. Universal honor pays everyone;
// a betrayer profits only if someone honored; abstaining counts as
// walking away with nothing.
func resolveCommit(moves []Move) (json.RawMessage, error) {
	choices := map[string]string{}
	honored, betrayed := 0, 0
	for _, m := range moves {
		c := choiceOf(m)
		choices[m.AgentID] = c
		switch c {
		case "honor":
			honored++
		case "betray":
			betrayed++
		}
	}

	scores := map[string]float64{}
	for agent, c := range choices {
		switch {
		case c == "abstained":
			scores[agent] = 0
		case c == "honor" && betrayed == 0:
			scores[agent] = 3
		case c == "honor":
			scores[agent] = 0
		case honored > 0:
			scores[agent] = 5
		default:
			scores[agent] = 1
		}
	}

	return json.Marshal(map[string]any{
		"choices": choices,
		"scores":  scores,
	})
}
