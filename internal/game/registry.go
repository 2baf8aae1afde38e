// Package game provides the static game catalog, structural action
// validation, and per-game round resolution logic.
package game

import (
	"fmt"

	"github.com/agora-social/agora/internal/domain"
)

// Registry is the static catalog of game definitions. Definitions are
// baked in at process start; the registry never mutates.
type Registry struct {
	order []string
	byID  map[string]domain.GameDefinition
}

// NewRegistry builds the registry with the built-in game catalog.
func NewRegistry() *Registry {
	r := &Registry{byID: make(map[string]domain.GameDefinition)}
	for _, def := range builtinGames() {
		if err := checkDefinition(def); err != nil {
			// Built-in definitions are validated at startup; a bad one
			// is a programming error, not a runtime condition.
			panic(fmt.Sprintf("invalid game definition %q: %v", def.ID, err))
		}
		def.DefaultMaxRounds = def.MaxRounds()
		r.order = append(r.order, def.ID)
		r.byID[def.ID] = def
	}
	return r
}

// List returns all game definitions in stable catalog order.
func (r *Registry) List() []domain.GameDefinition {
	out := make([]domain.GameDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (domain.GameDefinition, bool) {
	def, ok := r.byID[id]
	return def, ok
}

func checkDefinition(def domain.GameDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("empty id")
	}
	if def.MinPlayers < 1 || def.MinPlayers > def.MaxPlayers {
		return fmt.Errorf("player bounds %d..%d", def.MinPlayers, def.MaxPlayers)
	}
	if len(def.Scenes) == 0 {
		return fmt.Errorf("no scenes")
	}
	for _, sc := range def.Scenes {
		if sc.NumRounds < 1 {
			return fmt.Errorf("scene %q has %d rounds", sc.Name, sc.NumRounds)
		}
	}
	return nil
}

func builtinGames() []domain.GameDefinition {
	return []domain.GameDefinition{
		{
			ID:          "prisoners_dilemma",
			Name:        "Prisoner's Dilemma",
			Description: "Iterated prisoner's dilemma. Cooperate for mutual gain or defect for personal gain.",
			MinPlayers:  2,
			MaxPlayers:  2,
			Scenes: []domain.Scene{
				{
					Name:        "dilemma",
					Description: "Choose to cooperate with or defect against the other player.",
					ActionSpec: domain.ActionSpec{
						Kind:    domain.ActionChoice,
						Options: []string{"cooperate", "defect"},
					},
					NumRounds:         5,
					ResponseWindowSec: 45,
				},
			},
		},
		{
			ID:          "public_goods",
			Name:        "Public Goods",
			Description: "Contribute tokens to a shared pot that grows and is split evenly.",
			MinPlayers:  2,
			MaxPlayers:  4,
			Scenes: []domain.Scene{
				{
					Name:        "contribution",
					Description: "Allocate 0 to 10 tokens to the shared pot.",
					ActionSpec: domain.ActionSpec{
						Kind: domain.ActionAllocation,
						Min:  0,
						Max:  10,
					},
					NumRounds:         4,
					ResponseWindowSec: 45,
				},
			},
		},
		{
			ID:          "diplomacy_summit",
			Name:        "Diplomacy Summit",
			Description: "Exchange open messages, then commit to honoring or betraying the accord.",
			MinPlayers:  2,
			MaxPlayers:  3,
			Scenes: []domain.Scene{
				{
					Name:        "parley",
					Description: "Send an open message to the other delegates.",
					ActionSpec: domain.ActionSpec{
						Kind:   domain.ActionMessage,
						MaxLen: 500,
					},
					NumRounds:         2,
					ResponseWindowSec: 90,
				},
				{
					Name:        "commit",
					Description: "Honor the accord or betray it.",
					ActionSpec: domain.ActionSpec{
						Kind:    domain.ActionChoice,
						Options: []string{"honor", "betray"},
					},
					NumRounds:         1,
					ResponseWindowSec: 30,
				},
			},
		},
	}
}
