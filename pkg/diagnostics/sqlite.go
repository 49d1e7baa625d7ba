package diagnostics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const schema = `
CREATE TABLE IF NOT EXISTS compaction_diagnostics (
	id TEXT PRIMARY KEY,
	session_key TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	reason TEXT NOT NULL,
	error TEXT,
	model TEXT,
	thinking_level TEXT,
	turns INTEGER NOT NULL DEFAULT 0,
	tool_calls INTEGER NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	summary TEXT,
	record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_compaction_diagnostics_session
	ON compaction_diagnostics(session_key, created_at);
`

// SQLiteSink stores records in the compaction_diagnostics table. The full
// record is kept as JSON in the record column.
type SQLiteSink struct {
	db     *sql.DB
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewSQLiteSink opens or creates the database at path
func NewSQLiteSink(path string, logger zerolog.Logger) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("diagnostics database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteSink{db: db, logger: logger.With().Str("component", "diagnostics").Logger()}, nil
}

// Write inserts rec
func (s *SQLiteSink) Write(ctx context.Context, rec Record) error {
	prepare(&rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compaction_diagnostics (
			id, session_key, created_at, reason, error, model, thinking_level,
			turns, tool_calls, input_tokens, output_tokens, summary, record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionKey, rec.CreatedAt, rec.Reason, rec.Error, rec.Model, rec.ThinkingLevel,
		rec.Turns, rec.ToolCalls, rec.InputTokens, rec.OutputTokens, rec.Summary, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert diagnostics: %w", err)
	}

	s.logger.Info().Str("id", rec.ID).Str("reason", rec.Reason).Msg("Compaction diagnostics stored")
	return nil
}

// Recent returns up to limit records of a session, newest first
func (s *SQLiteSink) Recent(ctx context.Context, sessionKey string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM compaction_diagnostics
		WHERE session_key = ?
		ORDER BY created_at DESC
		LIMIT ?`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode diagnostics: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
