// Package domain contains core domain types for the Agora playground scheduler.
package domain

// ActionKind discriminates the shape of a legal action for a scene.
type ActionKind string

const (
	// ActionChoice is a bounded enum choice, e.g. "cooperate" or "defect".
	ActionChoice ActionKind = "choice"
	// ActionMessage is a free-text message with a length bound.
	ActionMessage ActionKind = "message"
	// ActionAllocation is an integer amount within an inclusive range.
	ActionAllocation ActionKind = "allocation"
)

// ActionSpec describes the structural shape of a legal action.
// Only the fields for the declared Kind are meaningful.
type ActionSpec struct {
	Kind    ActionKind `json:"kind"`
	Options []string   `json:"options,omitempty"` // choice: allowed values
	MaxLen  int        `json:"max_len,omitempty"` // message: maximum length in bytes
	Min     int        `json:"min,omitempty"`     // allocation: inclusive lower bound
	Max     int        `json:"max,omitempty"`     // allocation: inclusive upper bound
}

// Scene is one ordered phase of a game with its own action shape and
// round count. ResponseWindowSec bounds how long participants get to
// act in each of the scene's rounds; zero falls back to the scheduler
// default.
type Scene struct {
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	ActionSpec        ActionSpec `json:"action_spec"`
	NumRounds         int        `json:"num_rounds"`
	ResponseWindowSec int        `json:"response_window_sec,omitempty"`
}

// GameDefinition is an immutable game description loaded at process start.
type GameDefinition struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	MinPlayers       int     `json:"min_players"`
	MaxPlayers       int     `json:"max_players"`
	DefaultMaxRounds int     `json:"default_max_rounds"`
	Scenes           []Scene `json:"scenes"`
}

// MaxRounds returns the total number of rounds across all scenes.
func (g *GameDefinition) MaxRounds() int {
	total := 0
	for _, sc := range g.Scenes {
		total += sc.NumRounds
	}
	return total
}

// SceneForRound returns the scene active at the given 0-based round,
// derived from cumulative per-scene round counts. It is recomputed on
// every use and never cached, so deadline-forced resolutions land in
// the correct scene even with uneven NumRounds values.
func (g *GameDefinition) SceneForRound(round int) (Scene, bool) {
	if round < 0 {
		return Scene{}, false
	}
	cumulative := 0
	for _, sc := range g.Scenes {
		cumulative += sc.NumRounds
		if round < cumulative {
			return sc, true
		}
	}
	return Scene{}, false
}
