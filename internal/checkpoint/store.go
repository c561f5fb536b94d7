package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS controller_snapshots (
	version_id    TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	controller    TEXT NOT NULL,
	step          INTEGER NOT NULL,
	snapshot_json TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_lookup
ON controller_snapshots(session_id, controller, created_at);

CREATE TABLE IF NOT EXISTS adjustment_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	controller    TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	old_value     REAL,
	new_value     REAL,
	reason        TEXT,
	step          INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adjustments_session
ON adjustment_log(session_id, created_at);

CREATE TABLE IF NOT EXISTS step_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	epoch         INTEGER NOT NULL,
	step          INTEGER NOT NULL,
	loss          REAL NOT NULL,
	val_loss      REAL,
	lr            REAL NOT NULL,
	batch_size    INTEGER NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_steps_session
ON step_log(session_id, step);
`

// #endregion schema

// #region store-struct
// Store persists controller snapshots, adjustment provenance, and per-step
// training records in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region snapshots

// SaveSnapshot serializes a controller snapshot as JSON under a fresh
// version ID and returns that ID.
func (s *Store) SaveSnapshot(sessionID, controller string, step int, snapshot any) (string, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	id := uuid.New().String()
	_, err = s.db.Exec(
		`INSERT INTO controller_snapshots (version_id, session_id, controller, step, snapshot_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, sessionID, controller, step, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// LatestSnapshot unmarshals the most recent snapshot for the given session
// and controller into out.
func (s *Store) LatestSnapshot(sessionID, controller string, out any) error {
	var data string
	err := s.db.QueryRow(
		`SELECT snapshot_json FROM controller_snapshots
		 WHERE session_id = ? AND controller = ?
		 ORDER BY step DESC, created_at DESC LIMIT 1`,
		sessionID, controller,
	).Scan(&data)
	if err != nil {
		return fmt.Errorf("latest snapshot %s/%s: %w", sessionID, controller, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns metadata for the most recent snapshots of a session.
func (s *Store) ListSnapshots(sessionID string, limit int) ([]SnapshotInfo, error) {
	rows, err := s.db.Query(
		`SELECT version_id, controller, step, created_at FROM controller_snapshots
		 WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var createdStr string
		if err := rows.Scan(&info.VersionID, &info.Controller, &info.Step, &createdStr); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		info.SessionID = sessionID
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// #endregion snapshots

// #region adjustments

// LogAdjustment writes one provenance entry for a controller decision.
func (s *Store) LogAdjustment(entry Adjustment) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO adjustment_log (session_id, controller, event_type, old_value, new_value, reason, step, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.Controller,
		entry.EventType,
		entry.OldValue,
		entry.NewValue,
		nullIfEmpty(entry.Reason),
		entry.Step,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log adjustment: %w", err)
	}
	return nil
}

// ListAdjustments returns a session's provenance entries in insertion order.
func (s *Store) ListAdjustments(sessionID string, limit int) ([]Adjustment, error) {
	rows, err := s.db.Query(
		`SELECT session_id, controller, event_type, old_value, new_value, reason, step, created_at
		 FROM adjustment_log WHERE session_id = ? ORDER BY id ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()

	var entries []Adjustment
	for rows.Next() {
		var e Adjustment
		var reason sql.NullString
		var createdStr string
		if err := rows.Scan(&e.SessionID, &e.Controller, &e.EventType,
			&e.OldValue, &e.NewValue, &reason, &e.Step, &createdStr); err != nil {
			return nil, fmt.Errorf("scan adjustment row: %w", err)
		}
		if reason.Valid {
			e.Reason = reason.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion adjustments

// #region steps

// LogStep records one training step for later inspection or fixture export.
func (s *Store) LogStep(rec StepRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var valLoss any
	if rec.ValLoss != nil {
		valLoss = *rec.ValLoss
	}
	_, err := s.db.Exec(
		`INSERT INTO step_log (session_id, epoch, step, loss, val_loss, lr, batch_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Epoch, rec.Step, rec.Loss, valLoss, rec.LR, rec.BatchSize,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log step: %w", err)
	}
	return nil
}

// ListSteps returns a session's step records in step order.
func (s *Store) ListSteps(sessionID string) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, epoch, step, loss, val_loss, lr, batch_size, created_at
		 FROM step_log WHERE session_id = ? ORDER BY step ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var recs []StepRecord
	for rows.Next() {
		var r StepRecord
		var valLoss sql.NullFloat64
		var createdStr string
		if err := rows.Scan(&r.SessionID, &r.Epoch, &r.Step, &r.Loss,
			&valLoss, &r.LR, &r.BatchSize, &createdStr); err != nil {
			return nil, fmt.Errorf("scan step row: %w", err)
		}
		if valLoss.Valid {
			v := valLoss.Float64
			r.ValLoss = &v
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// ListSessions returns the distinct session IDs present in the step log.
func (s *Store) ListSessions() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT session_id FROM step_log ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// #endregion steps

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
