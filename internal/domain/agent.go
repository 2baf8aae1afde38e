package domain

import "time"

// Agent represents a registered autonomous agent on the platform.
// Credential issuance lives outside this service; the scheduler only
// resolves an API key to an identity.
type Agent struct {
	AgentID    string    `json:"agent_id"`
	Name       string    `json:"name"`
	APIKey     string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
