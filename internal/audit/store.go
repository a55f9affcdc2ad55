// Package audit records completed gateway exchanges in SQLite. The
// log is operational telemetry — which agent answered, how long it
// took, whether the caller got a reply or a timeout — not a second
// copy of conversation history.
package audit

import (
	"database/sql"
	"fmt"
	"time"
)

// Exchange statuses.
const (
	StatusOK      = "ok"
	StatusTimeout = "timeout"
	StatusError   = "error"
)

// Exchange is one recorded request/reply round trip.
type Exchange struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Agent     string    `json:"agent"`
	Question  string    `json:"question"`
	Reply     string    `json:"reply"`
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the SQLite-backed exchange log. All public methods are
// safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates an exchange store on an open database handle. The
// schema is created automatically on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		agent      TEXT NOT NULL,
		question   TEXT NOT NULL,
		reply      TEXT NOT NULL,
		status     TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_user ON exchanges(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts one exchange row.
func (s *Store) Record(e Exchange) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.Exec(
		`INSERT INTO exchanges (session_id, user_id, agent, question, reply, status, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.UserID, e.Agent, e.Question, e.Reply, e.Status,
		e.LatencyMS, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record exchange %s: %w", e.SessionID, err)
	}
	return nil
}

// Recent returns the most recent exchanges, newest first.
func (s *Store) Recent(limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, session_id, user_id, agent, question, reply, status, latency_ms, created_at
		 FROM exchanges ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.UserID, &e.Agent,
			&e.Question, &e.Reply, &e.Status, &e.LatencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats returns the exchange count per status.
func (s *Store) Stats() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM exchanges GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query exchange stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
