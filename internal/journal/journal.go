// Package journal keeps a durable record of mode transitions, UMB
// sessions and trigger hits.
//
// It uses SQLite in WAL mode and plugs into the mode machine as an
// observer, so every published signal becomes one row.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/mode"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// DBFile is the database filename inside the data directory.
const DBFile = "journal.db"

// Kind names the signal an event was recorded from.
type Kind string

const (
	KindModeChanged   Kind = "mode_changed"
	KindUMBTriggered  Kind = "umb_triggered"
	KindUMBCompleted  Kind = "umb_completed"
	KindModeTriggered Kind = "mode_triggers_detected"
)

// Event is one journal row.
type Event struct {
	ID           int64    `json:"id"`
	Kind         Kind     `json:"kind"`
	Mode         string   `json:"mode"`
	UMBActive    bool     `json:"umb_active"`
	Status       string   `json:"memory_bank_status,omitempty"`
	Targets      []string `json:"targets,omitempty"`
	UMBSessionID *string  `json:"umb_session_id,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

// UMBSession spans one UMB activation.
type UMBSession struct {
	ID        string  `json:"id"`
	Mode      string  `json:"mode"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
}

// Config holds journal settings.
type Config struct {
	DataDir string
}

// Store is the SQLite-backed journal.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu         sync.Mutex
	lastMode   string
	umbSession string
}

var _ mode.Observer = (*Store)(nil)

// New creates the data directory if needed, opens SQLite with WAL mode
// and runs migrations.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DataDir == "" {
		return nil, errors.New("journal: data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("journal: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, DBFile)
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}

	logger.Info("journal opened", zap.String("path", dbPath))
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS umb_sessions (
			id         TEXT PRIMARY KEY,
			mode       TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at   TEXT
		);

		CREATE TABLE IF NOT EXISTS events (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			kind           TEXT    NOT NULL,
			mode           TEXT    NOT NULL,
			umb_active     INTEGER NOT NULL DEFAULT 0,
			status         TEXT,
			targets        TEXT,
			umb_session_id TEXT REFERENCES umb_sessions(id),
			created_at     TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// now returns the current time formatted for SQLite.
func now() string {
	return timeNow().UTC().Format("2006-01-02 15:04:05")
}

// ─── Recording ───────────────────────────────────────────────────────────────

func (s *Store) insert(kind Kind, modeName string, umbActive bool, status string, targets []string, sessionID string) error {
	var targetsJSON any
	if len(targets) > 0 {
		b, err := json.Marshal(targets)
		if err != nil {
			return err
		}
		targetsJSON = string(b)
	}
	var session any
	if sessionID != "" {
		session = sessionID
	}
	var st any
	if status != "" {
		st = status
	}

	_, err := s.db.Exec(
		`INSERT INTO events (kind, mode, umb_active, status, targets, umb_session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(kind), modeName, umbActive, st, targetsJSON, session, now(),
	)
	return err
}

func (s *Store) record(kind Kind, state mode.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMode = state.Name

	if err := s.insert(kind, state.Name, state.UMBActive, string(state.MemoryBankStatus), nil, s.umbSession); err != nil {
		s.logger.Warn("journal write failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// ModeChanged implements mode.Observer.
func (s *Store) ModeChanged(state mode.State) {
	s.record(KindModeChanged, state)
}

// UMBTriggered opens a UMB session and records the activation.
func (s *Store) UMBTriggered(state mode.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMode = state.Name

	if s.umbSession == "" {
		id := uuid.NewString()
		if _, err := s.db.Exec(
			"INSERT INTO umb_sessions (id, mode, started_at) VALUES (?, ?, ?)",
			id, state.Name, now(),
		); err != nil {
			s.logger.Warn("journal: open UMB session failed", zap.Error(err))
		} else {
			s.umbSession = id
		}
	}

	if err := s.insert(KindUMBTriggered, state.Name, state.UMBActive, string(state.MemoryBankStatus), nil, s.umbSession); err != nil {
		s.logger.Warn("journal write failed", zap.String("kind", string(KindUMBTriggered)), zap.Error(err))
	}
}

// UMBCompleted records the deactivation and closes the open UMB session.
func (s *Store) UMBCompleted(state mode.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMode = state.Name

	if err := s.insert(KindUMBCompleted, state.Name, state.UMBActive, string(state.MemoryBankStatus), nil, s.umbSession); err != nil {
		s.logger.Warn("journal write failed", zap.String("kind", string(KindUMBCompleted)), zap.Error(err))
	}

	if s.umbSession == "" {
		return
	}
	if _, err := s.db.Exec("UPDATE umb_sessions SET ended_at = ? WHERE id = ?", now(), s.umbSession); err != nil {
		s.logger.Warn("journal: close UMB session failed", zap.Error(err))
	}
	s.umbSession = ""
}

// ModeTriggersDetected records a trigger hit against the last known mode.
func (s *Store) ModeTriggersDetected(targets []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insert(KindModeTriggered, s.lastMode, s.umbSession != "", "", targets, s.umbSession); err != nil {
		s.logger.Warn("journal write failed", zap.String("kind", string(KindModeTriggered)), zap.Error(err))
	}
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Recent returns up to limit events, newest first.
func (s *Store) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, kind, mode, umb_active, status, targets, umb_session_id, created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e       Event
			kind    string
			status  sql.NullString
			targets sql.NullString
			session sql.NullString
			umbFlag int
		)
		if err := rows.Scan(&e.ID, &kind, &e.Mode, &umbFlag, &status, &targets, &session, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		e.Kind = Kind(kind)
		e.UMBActive = umbFlag != 0
		e.Status = status.String
		if targets.Valid {
			if err := json.Unmarshal([]byte(targets.String), &e.Targets); err != nil {
				return nil, fmt.Errorf("journal: decode targets of event %d: %w", e.ID, err)
			}
		}
		if session.Valid {
			id := session.String
			e.UMBSessionID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UMBSessions returns up to limit UMB sessions, newest first.
func (s *Store) UMBSessions(limit int) ([]UMBSession, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, mode, started_at, ended_at FROM umb_sessions
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: UMB sessions: %w", err)
	}
	defer rows.Close()

	var out []UMBSession
	for rows.Next() {
		var (
			us    UMBSession
			ended sql.NullString
		)
		if err := rows.Scan(&us.ID, &us.Mode, &us.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("journal: scan UMB session: %w", err)
		}
		if ended.Valid {
			v := ended.String
			us.EndedAt = &v
		}
		out = append(out, us)
	}
	return out, rows.Err()
}
