package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/agora-social/agora/internal/domain"
	"github.com/agora-social/agora/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		api_key TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playground_sessions (
		session_id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL,
		status TEXT NOT NULL,
		current_round INTEGER NOT NULL,
		max_rounds INTEGER NOT NULL,
		round_deadline INTEGER,
		participants_json TEXT NOT NULL,
		pending_json TEXT NOT NULL,
		transcript_json TEXT NOT NULL,
		summary_json TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON playground_sessions(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_deadline ON playground_sessions(round_deadline) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS session_participants (
		session_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		PRIMARY KEY (session_id, agent_id)
	);
	CREATE INDEX IF NOT EXISTS idx_participants_agent ON session_participants(agent_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetAgentByKey resolves an API key to an agent.
func (s *SQLiteStore) GetAgentByKey(ctx context.Context, apiKey string) (*domain.Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, api_key, created_at, last_seen_at FROM agents WHERE api_key = ?`, apiKey))
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx,
		`SELECT agent_id, name, api_key, created_at, last_seen_at FROM agents WHERE agent_id = ?`, agentID))
}

func (s *SQLiteStore) scanAgent(row *sql.Row) (*domain.Agent, error) {
	var agent domain.Agent
	var createdAt, lastSeen int64

	err := row.Scan(&agent.AgentID, &agent.Name, &agent.APIKey, &createdAt, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	agent.CreatedAt = time.Unix(createdAt, 0)
	agent.LastSeenAt = time.Unix(lastSeen, 0)
	return &agent, nil
}

// UpsertAgent creates or updates an agent record.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
	INSERT INTO agents (agent_id, name, api_key, created_at, last_seen_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(agent_id) DO UPDATE SET
		name = excluded.name,
		api_key = excluded.api_key,
		last_seen_at = excluded.last_seen_at`

	_, err := s.db.ExecContext(ctx, query,
		agent.AgentID, agent.Name, agent.APIKey,
		agent.CreatedAt.Unix(), agent.LastSeenAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// TouchAgent updates the last_seen_at timestamp for an agent.
func (s *SQLiteStore) TouchAgent(ctx context.Context, agentID string, seen time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET last_seen_at = ? WHERE agent_id = ?`, seen.Unix(), agentID)
	if err != nil {
		return fmt.Errorf("touch agent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchAgent affected 0 rows", "agent_id", agentID)
	}
	return nil
}

// CreateSession inserts a new playground session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.PlaygroundSession) error {
	participants, pending, transcript, err := marshalSessionBlobs(sess)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO playground_sessions (
		session_id, game_id, status, current_round, max_rounds, round_deadline,
		participants_json, pending_json, transcript_json, summary_json,
		created_at, started_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		sess.ID, sess.GameID, string(sess.Status), sess.CurrentRound, sess.MaxRounds,
		nullableUnix(sess.RoundDeadline), participants, pending, transcript,
		nullableJSON(sess.Summary), sess.CreatedAt.Unix(),
		nullableUnix(sess.StartedAt), nullableUnix(sess.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, game_id, status, current_round, max_rounds, round_deadline,
	participants_json, pending_json, transcript_json, summary_json,
	created_at, started_at, completed_at`

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.PlaygroundSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM playground_sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// UpdateSession persists the full session state with a compare-and-update
// on (current_round, status). A concurrent writer that already advanced
// the session causes ErrStaleSession; retries on SQLITE_BUSY use
// exponential backoff as elsewhere in the codebase.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *domain.PlaygroundSession, expectedRound int, expectedStatus domain.SessionStatus) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.updateSessionOnce(ctx, sess, expectedRound, expectedStatus)
		if err == nil || err == ErrStaleSession {
			return err
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms, 200ms
			slog.Debug("UpdateSession hit SQLITE_BUSY, retrying",
				"session_id", sess.ID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}

	return nil
}

func (s *SQLiteStore) updateSessionOnce(ctx context.Context, sess *domain.PlaygroundSession, expectedRound int, expectedStatus domain.SessionStatus) error {
	participants, pending, transcript, err := marshalSessionBlobs(sess)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
	UPDATE playground_sessions SET
		status = ?, current_round = ?, round_deadline = ?,
		participants_json = ?, pending_json = ?, transcript_json = ?, summary_json = ?,
		started_at = ?, completed_at = ?
	WHERE session_id = ? AND current_round = ? AND status = ?`

	result, err := tx.ExecContext(ctx, query,
		string(sess.Status), sess.CurrentRound, nullableUnix(sess.RoundDeadline),
		participants, pending, transcript, nullableJSON(sess.Summary),
		nullableUnix(sess.StartedAt), nullableUnix(sess.CompletedAt),
		sess.ID, expectedRound, string(expectedStatus),
	)
	if err != nil {
		return fmt.Errorf("update session row: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStaleSession
	}

	// Membership index rows are only ever added; the authoritative
	// participant list lives in participants_json.
	for _, p := range sess.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO session_participants (session_id, agent_id) VALUES (?, ?)`,
			sess.ID, p.AgentID); err != nil {
			return fmt.Errorf("index participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session update: %w", err)
	}
	return nil
}

// ListSessions returns sessions ordered newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, status domain.SessionStatus, limit, offset int) ([]*domain.PlaygroundSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM playground_sessions`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, session_id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return s.querySessions(ctx, query, args...)
}

// ActiveSessionForAgent returns the agent's most recent pending or active session.
func (s *SQLiteStore) ActiveSessionForAgent(ctx context.Context, agentID string) (*domain.PlaygroundSession, error) {
	query := `
	SELECT ` + sessionColumns + `
	FROM playground_sessions
	JOIN session_participants USING (session_id)
	WHERE session_participants.agent_id = ? AND status IN ('pending', 'active')
	ORDER BY created_at DESC, session_id LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, agentID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan active session row: %w", err)
	}
	return sess, nil
}

// DueSessions returns active sessions whose round deadline has lapsed.
func (s *SQLiteStore) DueSessions(ctx context.Context, now time.Time) ([]*domain.PlaygroundSession, error) {
	query := `
	SELECT ` + sessionColumns + ` FROM playground_sessions
	WHERE status = 'active' AND round_deadline IS NOT NULL AND round_deadline <= ?
	ORDER BY round_deadline`

	return s.querySessions(ctx, query, now.Unix())
}

// StalePendingSessions returns pending sessions created before the cutoff.
func (s *SQLiteStore) StalePendingSessions(ctx context.Context, before time.Time) ([]*domain.PlaygroundSession, error) {
	query := `
	SELECT ` + sessionColumns + ` FROM playground_sessions
	WHERE status = 'pending' AND created_at < ?
	ORDER BY created_at`

	return s.querySessions(ctx, query, before.Unix())
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...interface{}) ([]*domain.PlaygroundSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.PlaygroundSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.PlaygroundSession, error) {
	var sess domain.PlaygroundSession
	var status string
	var roundDeadline, startedAt, completedAt sql.NullInt64
	var participants, pending, transcript string
	var summary sql.NullString
	var createdAt int64

	err := row.Scan(
		&sess.ID, &sess.GameID, &status, &sess.CurrentRound, &sess.MaxRounds,
		&roundDeadline, &participants, &pending, &transcript, &summary,
		&createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	sess.CreatedAt = time.Unix(createdAt, 0)
	if roundDeadline.Valid {
		t := time.Unix(roundDeadline.Int64, 0)
		sess.RoundDeadline = &t
	}
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0)
		sess.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0)
		sess.CompletedAt = &t
	}
	if summary.Valid {
		sess.Summary = json.RawMessage(summary.String)
	}

	if err := json.Unmarshal([]byte(participants), &sess.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	if err := json.Unmarshal([]byte(pending), &sess.Pending); err != nil {
		return nil, fmt.Errorf("decode pending actions: %w", err)
	}
	if err := json.Unmarshal([]byte(transcript), &sess.Transcript); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}

	return &sess, nil
}

func marshalSessionBlobs(sess *domain.PlaygroundSession) (participants, pending, transcript string, err error) {
	p, err := json.Marshal(emptySlice(sess.Participants))
	if err != nil {
		return "", "", "", fmt.Errorf("encode participants: %w", err)
	}
	a, err := json.Marshal(emptySlice(sess.Pending))
	if err != nil {
		return "", "", "", fmt.Errorf("encode pending actions: %w", err)
	}
	t, err := json.Marshal(emptySlice(sess.Transcript))
	if err != nil {
		return "", "", "", fmt.Errorf("encode transcript: %w", err)
	}
	return string(p), string(a), string(t), nil
}

// emptySlice keeps nil slices serializing as [] so the JSON columns
// always hold valid arrays.
func emptySlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func nullableUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
