// Package identity resolves agent API keys into request identities.
// Credential issuance and rotation live in the platform's auth service;
// this package only maps a presented key to an agent.
package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agora-social/agora/internal/domain"
	"github.com/agora-social/agora/internal/store"
)

// KeyHeader is the fallback API key header for clients that cannot set
// Authorization.
const KeyHeader = "X-Agora-Key"

type contextKey int

const agentContextKey contextKey = iota

// Resolver maps an API key to an agent identity, or nil for an unknown
// key.
type Resolver interface {
	Resolve(ctx context.Context, apiKey string) (*domain.Agent, error)
}

// StoreResolver resolves keys against the agents table and touches the
// agent's last-seen timestamp on success.
type StoreResolver struct {
	Repo store.Repository
}

// Resolve implements Resolver.
func (r StoreResolver) Resolve(ctx context.Context, apiKey string) (*domain.Agent, error) {
	agent, err := r.Repo.GetAgentByKey(ctx, apiKey)
	if err != nil || agent == nil {
		return nil, err
	}
	if err := r.Repo.TouchAgent(ctx, agent.AgentID, time.Now()); err != nil {
		slog.Warn("failed to touch agent last-seen", "agent_id", agent.AgentID, "error", err)
	}
	return agent, nil
}

// AgentFromContext extracts the authenticated agent from the request
// context, or nil for unauthenticated requests.
func AgentFromContext(ctx context.Context) *domain.Agent {
	if a, ok := ctx.Value(agentContextKey).(*domain.Agent); ok {
		return a
	}
	return nil
}

func keyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(key)
		}
	}
	return strings.TrimSpace(r.Header.Get(KeyHeader))
}

// Middleware resolves the caller's API key, if any, into an agent
// identity on the request context. Requests without a key pass through
// unauthenticated; routes that need an identity add RequireAgent.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFromRequest(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			agent, err := resolver.Resolve(r.Context(), key)
			if err != nil {
				http.Error(w, `{"error":"failed to resolve agent identity"}`, http.StatusInternalServerError)
				return
			}
			if agent == nil {
				// Unknown key: pass through unauthenticated so public
				// routes still work; guarded routes reject below.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), agentContextKey, agent)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAgent rejects requests that did not resolve to an agent.
func RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AgentFromContext(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"agent authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
