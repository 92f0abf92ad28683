package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Session status values. A session is active until it ends with one of the
// other values.
const (
	StatusActive = "active"
	EndStopped   = "stopped"
	EndErrored   = "errored"
	EndReset     = "reset"
	EndShutdown  = "shutdown"
)

type Session struct {
	ID        string     `json:"id"`
	Mode      string     `json:"mode"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	ToolCalls int        `json:"tool_calls"`
}

// ToolInvocation is one dispatched agent tool call and the result returned
// to the agent.
type ToolInvocation struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	CallID    string    `json:"call_id,omitempty"`
	Name      string    `json:"name"`
	Arguments string    `json:"arguments"`
	Result    string    `json:"result"`
	OK        bool      `json:"ok"`
	At        time.Time `json:"at"`
}

type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "coach-engine.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			call_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			arguments TEXT NOT NULL DEFAULT '{}',
			result TEXT NOT NULL,
			ok INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create tool_invocations table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)",
		"CREATE INDEX IF NOT EXISTS idx_tool_invocations_session_id ON tool_invocations(session_id, id)",
		// A correlated call is recorded once even if the agent repeats it.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_tool_invocations_call ON tool_invocations(session_id, call_id) WHERE call_id != ''",
	}
	for _, stmt := range indexes {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Path is the database file, for backups.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) CreateSession(id, mode string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions(id, mode, started_at, status) VALUES(?, ?, ?, ?)`,
		id,
		mode,
		startedAt.UTC().Format(time.RFC3339Nano),
		StatusActive,
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) EndSession(id string, endedAt time.Time, endState, errText string) error {
	if endState == "" || endState == StatusActive {
		return fmt.Errorf("end session %s: invalid end state %q", id, endState)
	}

	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, status = ?, error = ? WHERE id = ? AND ended_at IS NULL`,
		endedAt.UTC().Format(time.RFC3339Nano),
		endState,
		errText,
		id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// EndActiveSessions closes every session still marked active, e.g. on
// shutdown or after a crash. It returns how many were closed.
func (s *SQLiteStore) EndActiveSessions(endedAt time.Time, endState string) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, status = ? WHERE ended_at IS NULL`,
		endedAt.UTC().Format(time.RFC3339Nano),
		endState,
	)
	if err != nil {
		return 0, fmt.Errorf("end active sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("end active sessions rows affected: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) RecordToolInvocation(inv ToolInvocation) error {
	args := inv.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO tool_invocations(session_id, call_id, name, arguments, result, ok, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		inv.SessionID,
		inv.CallID,
		inv.Name,
		args,
		inv.Result,
		inv.OK,
		inv.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record tool invocation for session %s: %w", inv.SessionID, err)
	}
	return nil
}

const sessionColumns = `s.id, s.mode, s.started_at, s.ended_at, s.status, s.error,
	(SELECT COUNT(*) FROM tool_invocations t WHERE t.session_id = s.id)`

func (s *SQLiteStore) GetSessionsByDate(date string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+`
		 FROM sessions s
		 WHERE substr(s.started_at, 1, 10) = ?
		 ORDER BY s.started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM sessions ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ?`, id)

	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetToolInvocations(sessionID string) ([]ToolInvocation, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, call_id, name, arguments, result, ok, created_at
		 FROM tool_invocations
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tool invocations for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	invocations := make([]ToolInvocation, 0, 8)
	for rows.Next() {
		var inv ToolInvocation
		var at string
		if err := rows.Scan(&inv.ID, &inv.SessionID, &inv.CallID, &inv.Name, &inv.Arguments, &inv.Result, &inv.OK, &at); err != nil {
			return nil, fmt.Errorf("scan tool invocation for session %s: %w", sessionID, err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse tool invocation time for session %s: %w", sessionID, err)
		}
		inv.At = parsed

		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool invocation rows for session %s: %w", sessionID, err)
	}

	return invocations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&sess.ID, &sess.Mode, &startedAt, &endedAt, &sess.Status, &sess.Error, &sess.ToolCalls); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	sess.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		sess.EndedAt = &parsedEnd
	}

	return sess, nil
}
