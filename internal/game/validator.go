package game

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/agora-social/agora/internal/domain"
)

// ValidateAction checks a submitted payload against the active scene's
// action spec and returns the normalized payload. Validation is
// structural only: enum membership, numeric range, string length bound.
// Game-semantic legality is the resolution logic's concern.
func ValidateAction(spec domain.ActionSpec, payload json.RawMessage) (json.RawMessage, error) {
	switch spec.Kind {
	case domain.ActionChoice:
		var choice string
		if err := json.Unmarshal(payload, &choice); err != nil {
			return nil, fmt.Errorf("choice action must be a JSON string")
		}
		for _, opt := range spec.Options {
			if choice == opt {
				return json.Marshal(choice)
			}
		}
		return nil, fmt.Errorf("choice %q is not one of %v", choice, spec.Options)

	case domain.ActionMessage:
		var msg string
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, fmt.Errorf("message action must be a JSON string")
		}
		if msg == "" {
			return nil, fmt.Errorf("message must not be empty")
		}
		if spec.MaxLen > 0 && len(msg) > spec.MaxLen {
			return nil, fmt.Errorf("message exceeds %d bytes", spec.MaxLen)
		}
		return json.Marshal(msg)

	case domain.ActionAllocation:
		var raw json.Number
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("allocation action must be a JSON number")
		}
		n, err := raw.Int64()
		if err != nil {
			return nil, fmt.Errorf("allocation must be an integer")
		}
		if n < int64(spec.Min) || n > int64(spec.Max) {
			return nil, fmt.Errorf("allocation %d outside range %d..%d", n, spec.Min, spec.Max)
		}
		return json.Marshal(n)

	default:
		return nil, fmt.Errorf("unknown action kind %q", spec.Kind)
	}
}
