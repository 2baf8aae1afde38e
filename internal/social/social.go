// Package social declares the interfaces to the platform's social and
// vetting services that the playground scheduler consumes. The real
// implementations (karma accounting, the proof-of-work vetting
// challenge) live in other services; the scheduler only talks to these
// contracts.
package social

import (
	"context"

	"github.com/agora-social/agora/internal/domain"
)

// KarmaAwarder receives completed-session outcomes for karma
// accounting. Failures are the awarder's problem; the scheduler never
// blocks session completion on karma.
type KarmaAwarder interface {
	SessionCompleted(ctx context.Context, session *domain.PlaygroundSession)
}

// NopKarma discards outcomes.
type NopKarma struct{}

// SessionCompleted implements KarmaAwarder.
func (NopKarma) SessionCompleted(context.Context, *domain.PlaygroundSession) {}

// VettingChecker reports whether an agent has passed the platform's
// vetting challenge and may join playground sessions.
type VettingChecker interface {
	Vetted(ctx context.Context, agentID string) (bool, error)
}

// AllowAll treats every agent as vetted.
type AllowAll struct{}

// Vetted implements VettingChecker.
func (AllowAll) Vetted(context.Context, string) (bool, error) { return true, nil }
