package gorepl

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// HistoryManager persists submissions to SQLite. History survives process
// restarts; everything else about a session does not.
type HistoryManager struct {
	db *sql.DB
}

func NewHistoryManager(dbPath string) (*HistoryManager, error) {
	if dbPath == "" {
		dbPath = filepath.Join(DefaultDataDir(), historyFileName)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
    CREATE TABLE IF NOT EXISTS submission(
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id VARCHAR(64) NOT NULL,
        ordinal INT NOT NULL,
        input TEXT NOT NULL,
        outcome VARCHAR(16) NOT NULL,
        duration_ms INTEGER NOT NULL,
        created INTEGER NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_submission_session ON submission(session_id);`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryManager{db: db}, nil
}

func (h *HistoryManager) Insert(sessionID string, ordinal int, input string, result EvaluationResult, duration time.Duration) error {
	outcome := "success"
	switch result.(type) {
	case Error:
		outcome = "error"
	case Cancelled:
		outcome = "cancelled"
	}
	_, err := h.db.Exec(
		`INSERT INTO submission (session_id, ordinal, input, outcome, duration_ms, created) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, ordinal, input, outcome, duration.Milliseconds(), time.Now().Unix())
	return err
}

// Dump returns the full submission history, oldest first.
func (h *HistoryManager) Dump() ([]string, error) {
	rows, err := h.db.Query("SELECT input FROM submission ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []string
	for rows.Next() {
		var input string
		if err := rows.Scan(&input); err != nil {
			return nil, err
		}
		history = append(history, input)
	}
	return history, rows.Err()
}

// Recent returns the n most recent submissions, oldest of those first.
func (h *HistoryManager) Recent(n int) ([]string, error) {
	rows, err := h.db.Query("SELECT input FROM submission ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []string
	for rows.Next() {
		var input string
		if err := rows.Scan(&input); err != nil {
			return nil, err
		}
		history = append(history, input)
	}
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, rows.Err()
}

func (h *HistoryManager) Close() error {
	return h.db.Close()
}
