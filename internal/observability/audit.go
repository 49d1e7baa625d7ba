package observability

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent represents a structured event for the audit log
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // session key
	Action    string                 `json:"action"`          // e.g. "compact", "session_write"
	Status    string                 `json:"status"`          // compaction status or "success"/"failure"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger handles recording and persisting audit events
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditOnce sync.Once
	auditInst *AuditLogger
)

// GetAuditLogger returns the global audit logger instance. Events are
// discarded until InitAuditLogger is called.
func GetAuditLogger() *AuditLogger {
	auditOnce.Do(func() {
		auditInst = &AuditLogger{
			logger: zerolog.Nop(),
		}
	})
	return auditInst
}

// InitAuditLogger sends audit events to a JSON lines file
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	inst := GetAuditLogger()
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.file != nil {
		_ = inst.file.Close()
	}
	inst.logger = zerolog.New(file).With().Timestamp().Logger()
	inst.file = file
	return nil
}

// Record emits an audit event to the log file and optionally to OpenTelemetry
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Extract tracing info if available
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		// Also record as a span event for Otel
		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Direct JSON logging to file/logger
	entry := a.logger.Log().
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.logger = zerolog.Nop()
	return err
}

// RecordCompactionAudit records the terminal state of one compaction run
func RecordCompactionAudit(ctx context.Context, sessionKey, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "compaction",
		Actor:    sessionKey,
		Action:   "compact",
		Status:   status,
		Metadata: metadata,
	})
}

// RecordSessionAudit records a write to a session file
func RecordSessionAudit(ctx context.Context, sessionKey, action string, success bool, metadata map[string]interface{}) {
	status := "success"
	if !success {
		status = "failure"
	}
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "session",
		Actor:    sessionKey,
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}
