// Package db is the sqlite audit log of craft runs and tool executions.
// Conversation state is never stored here.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"netcraft/internal/models"
	"netcraft/internal/tools"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS crafts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		report TEXT NOT NULL DEFAULT '',
		steps INTEGER NOT NULL DEFAULT 0,
		exhausted INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS tool_executions (
		id TEXT PRIMARY KEY,
		craft_id INTEGER,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		tool TEXT NOT NULL,
		source TEXT NOT NULL,
		params TEXT NOT NULL DEFAULT '{}',
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT 'null',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY(craft_id) REFERENCES crafts(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_crafts_created_at ON crafts(created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_executions_craft_id ON tool_executions(craft_id, created_at);`,
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	return db, nil
}

// CraftRun is one finished craft call.
type CraftRun struct {
	CreatedAtUnix int64
	SessionID     string
	Provider      string
	Prompt        string
	Report        string
	Steps         int
	Exhausted     bool
	Executions    []tools.Execution
}

// RecordCraft stores the run and its executions in one transaction and
// returns the craft id.
func RecordCraft(db *sql.DB, run CraftRun) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		"INSERT INTO crafts(created_at, session_id, provider, prompt, report, steps, exhausted) VALUES(?, ?, ?, ?, ?, ?, ?)",
		run.CreatedAtUnix,
		run.SessionID,
		run.Provider,
		run.Prompt,
		run.Report,
		run.Steps,
		run.Exhausted,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, e := range run.Executions {
		if err := insertExecution(tx, sql.NullInt64{Int64: id, Valid: true}, run.SessionID, e); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

// RecordExecution stores a direct tool execution.
func RecordExecution(db *sql.DB, sessionID string, e tools.Execution) error {
	return insertExecution(db, sql.NullInt64{}, sessionID, e)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertExecution(x execer, craftID sql.NullInt64, sessionID string, e tools.Execution) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	payload, err := json.Marshal(e.Outcome.Payload)
	if err != nil {
		payload = []byte("null")
	}
	_, err = x.Exec(
		`INSERT INTO tool_executions(id, craft_id, session_id, created_at, tool, source, params, success, error, payload, duration_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		craftID,
		sessionID,
		e.Timestamp.Unix(),
		e.Tool,
		string(e.Source),
		string(params),
		e.Outcome.Success,
		e.Outcome.Error,
		string(payload),
		e.Duration.Milliseconds(),
	)
	return err
}

// GetRecentCrafts returns the total number of runs and one page of them,
// newest first.
func GetRecentCrafts(db *sql.DB, limit, offset int) (int, []models.CraftListItem, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM crafts").Scan(&count); err != nil {
		return 0, nil, err
	}

	rows, err := db.Query(
		"SELECT id, created_at, session_id, provider, prompt, report, steps, exhausted FROM crafts ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit,
		offset,
	)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	items := make([]models.CraftListItem, 0, limit)
	for rows.Next() {
		var it models.CraftListItem
		if err := rows.Scan(&it.ID, &it.CreatedAtUnix, &it.SessionID, &it.Provider, &it.Prompt, &it.Report, &it.Steps, &it.Exhausted); err != nil {
			return 0, nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}
	return count, items, nil
}

// ErrCraftNotFound is returned by GetCraft for an unknown id.
var ErrCraftNotFound = errors.New("craft not found")

func GetCraft(db *sql.DB, id int64) (models.CraftListItem, error) {
	var it models.CraftListItem
	err := db.QueryRow(
		"SELECT id, created_at, session_id, provider, prompt, report, steps, exhausted FROM crafts WHERE id = ?",
		id,
	).Scan(&it.ID, &it.CreatedAtUnix, &it.SessionID, &it.Provider, &it.Prompt, &it.Report, &it.Steps, &it.Exhausted)
	if errors.Is(err, sql.ErrNoRows) {
		return it, fmt.Errorf("%w: %d", ErrCraftNotFound, id)
	}
	return it, err
}

// GetCraftExecutions lists the tool calls of one craft run in order.
func GetCraftExecutions(db *sql.DB, craftID int64) ([]models.ExecutionListItem, error) {
	rows, err := db.Query(
		"SELECT id, craft_id, created_at, tool, source, params, success, error, duration_ms FROM tool_executions WHERE craft_id = ? ORDER BY created_at ASC, id ASC",
		craftID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.ExecutionListItem{}
	for rows.Next() {
		var it models.ExecutionListItem
		var cid sql.NullInt64
		if err := rows.Scan(&it.ID, &cid, &it.CreatedAtUnix, &it.Tool, &it.Source, &it.Params, &it.Success, &it.Error, &it.DurationMS); err != nil {
			return nil, err
		}
		it.CraftID = cid.Int64
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
