// Package diagnostics persists debug records of compaction runs that failed
// or produced a suspiciously short summary. Records are written for humans
// and are never read back by the compaction pipeline.
package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Backend selects where records are written
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// Reasons a record is written
const (
	ReasonFailed       = "failed"
	ReasonShortSummary = "summary_too_short"
)

var ErrInvalidBackend = errors.New("invalid diagnostics backend")

// Record captures the inputs and outcome of one compaction run
type Record struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"`
	CreatedAt  time.Time `json:"created_at"`
	Reason     string    `json:"reason"`
	Error      string    `json:"error,omitempty"`

	Model         string `json:"model,omitempty"`
	ThinkingLevel string `json:"thinking_level,omitempty"`
	Turns         int    `json:"turns"`
	ToolCalls     int    `json:"tool_calls"`
	InputTokens   int    `json:"input_tokens"`
	OutputTokens  int    `json:"output_tokens"`

	Summary       string   `json:"summary,omitempty"`
	Note          string   `json:"note,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
	Instruction   string   `json:"instruction,omitempty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
	DeletedFiles  []string `json:"deleted_files,omitempty"`

	// Conversation is the analyzed conversation in its wire form
	Conversation json.RawMessage `json:"conversation,omitempty"`

	// Transcript is the agent transcript as JSON
	Transcript json.RawMessage `json:"transcript,omitempty"`
}

// Sink stores diagnostic records
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// Reader lists stored records; both built-in sinks implement it
type Reader interface {
	Recent(ctx context.Context, sessionKey string, limit int) ([]Record, error)
}

// Config selects and configures a sink
type Config struct {
	Enabled bool    `json:"enabled" mapstructure:"enabled"`
	Backend Backend `json:"backend" mapstructure:"backend"`
	Dir     string  `json:"dir" mapstructure:"dir"`
	DBPath  string  `json:"db_path" mapstructure:"db_path"`
}

// New returns the sink for cfg. A disabled config yields a NopSink.
func New(cfg Config, logger zerolog.Logger) (Sink, error) {
	if !cfg.Enabled {
		return NopSink{}, nil
	}
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileSink(cfg.Dir, logger)
	case BackendSQLite:
		return NewSQLiteSink(cfg.DBPath, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackend, cfg.Backend)
	}
}

// prepare fills the ID and creation time
func prepare(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

// NopSink discards records
type NopSink struct{}

func (NopSink) Write(context.Context, Record) error { return nil }
func (NopSink) Close() error                        { return nil }
