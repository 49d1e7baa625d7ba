package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/recap/internal/observability"
	"github.com/harun/recap/internal/tracing"
	"github.com/harun/recap/pkg/conversation"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "recap.session"

// maxLineBytes bounds a single JSONL entry
const maxLineBytes = 16 * 1024 * 1024

// ErrSessionNotFound is returned when a session file does not exist
var ErrSessionNotFound = errors.New("session does not exist")

// Config configures a Manager
type Config struct {
	// Dir holds the session files; defaults to ~/.recap/sessions
	Dir    string
	Logger zerolog.Logger
}

// Info describes a stored session
type Info struct {
	SessionKey   string    `json:"session_key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Messages     int       `json:"messages"`
	Compactions  int       `json:"compactions"`
}

// Manager manages conversation persistence using JSONL format
type Manager struct {
	dir        string
	logger     zerolog.Logger
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// New creates a Manager, creating its directory if needed
func New(cfg Config) (*Manager, error) {
	dir := cfg.Dir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".recap", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &Manager{
		dir:        dir,
		logger:     cfg.Logger.With().Str("component", "session").Logger(),
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the sessions directory
func (m *Manager) Dir() string {
	return m.dir
}

// ValidateSessionKey rejects keys that are not safe as file names
func ValidateSessionKey(sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(sessionKey, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(sessionKey, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(sessionKey, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

func (m *Manager) sessionPath(sessionKey string) string {
	return filepath.Join(m.dir, sessionKey+".jsonl")
}

func (m *Manager) writeLock(sessionKey string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if lock, exists := m.writeLocks[sessionKey]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	m.writeLocks[sessionKey] = lock
	return lock
}

// AppendMessage appends a conversation message and returns its entry ID
func (m *Manager) AppendMessage(ctx context.Context, sessionKey string, msg conversation.Message) (string, error) {
	if len(msg.Content) == 0 {
		return "", fmt.Errorf("message content cannot be empty")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return m.append(ctx, sessionKey, Entry{Type: EntryMessage, Message: &msg, Timestamp: msg.Timestamp})
}

// AppendCompaction appends a compaction entry and returns its entry ID.
// FirstKeptEntryID must name an existing message entry.
func (m *Manager) AppendCompaction(ctx context.Context, sessionKey string, c Compaction) (string, error) {
	if strings.TrimSpace(c.Summary) == "" {
		return "", fmt.Errorf("compaction summary cannot be empty")
	}
	if c.FirstKeptEntryID != "" {
		entries, err := m.Load(ctx, sessionKey)
		if err != nil {
			return "", err
		}
		if !containsEntry(entries, c.FirstKeptEntryID) {
			return "", fmt.Errorf("first kept entry %q not found in session %s", c.FirstKeptEntryID, sessionKey)
		}
	}

	id, err := m.append(ctx, sessionKey, Entry{Type: EntryCompaction, Compaction: &c, Timestamp: time.Now().UTC()})
	observability.RecordSessionAudit(ctx, sessionKey, "append_compaction", err == nil, map[string]interface{}{
		"first_kept_entry_id": c.FirstKeptEntryID,
		"tokens_before":       c.TokensBefore,
	})
	return id, err
}

func containsEntry(entries []Entry, id string) bool {
	for _, e := range entries {
		if e.ID == id && e.Type == EntryMessage {
			return true
		}
	}
	return false
}

func (m *Manager) append(ctx context.Context, sessionKey string, entry Entry) (string, error) {
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		tracerName,
		"session.append",
		attribute.String("session_key", sessionKey),
		attribute.String("entry_type", string(entry.Type)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if err := ValidateSessionKey(sessionKey); err != nil {
		return fail(err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return fail(fmt.Errorf("failed to generate entry id: %w", err))
	}
	entry.ID = id
	entry.SessionKey = sessionKey

	data, err := json.Marshal(entry)
	if err != nil {
		return fail(fmt.Errorf("failed to marshal entry: %w", err))
	}

	lock := m.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(m.sessionPath(sessionKey), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fail(fmt.Errorf("failed to open session file: %w", err))
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fail(fmt.Errorf("failed to write entry: %w", err))
	}
	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync file: %w", err))
	}

	logger.Debug().Str("entry_id", id).Str("type", string(entry.Type)).Msg("Entry appended")
	return id, nil
}

// Load reads all entries of a session. Malformed lines are skipped with a
// warning. A missing session yields ErrSessionNotFound.
func (m *Manager) Load(ctx context.Context, sessionKey string) ([]Entry, error) {
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.load", attribute.String("session_key", sessionKey))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	if err := ValidateSessionKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	file, err := os.Open(m.sessionPath(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionKey)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if err := entry.validate(); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Invalid entry, skipping")
			continue
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	span.SetAttributes(attribute.Int("entries", len(entries)))
	logger.Debug().Int("entries", len(entries)).Msg("Session loaded")
	return entries, nil
}

// Import replaces a session with the given messages, one entry each
func (m *Manager) Import(ctx context.Context, sessionKey string, msgs []conversation.Message) error {
	if err := m.Delete(ctx, sessionKey); err != nil {
		return err
	}
	for i, msg := range msgs {
		if _, err := m.AppendMessage(ctx, sessionKey, msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// Delete removes a session file; deleting a missing session is not an error
func (m *Manager) Delete(ctx context.Context, sessionKey string) error {
	if err := ValidateSessionKey(sessionKey); err != nil {
		return err
	}

	lock := m.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(m.sessionPath(sessionKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	tracing.LoggerFromContext(tracing.WithSessionKey(ctx, sessionKey), m.logger).Info().Msg("Session deleted")
	return nil
}

// List returns the keys of all stored sessions, sorted
func (m *Manager) List() ([]string, error) {
	dirEntries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	sessions := []string{}
	for _, entry := range dirEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(entry.Name(), ".jsonl"))
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Repair rewrites a session file without its unparseable lines
func (m *Manager) Repair(ctx context.Context, sessionKey string) error {
	entries, err := m.Load(ctx, sessionKey)
	if err != nil {
		return err
	}

	lock := m.writeLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	sessionPath := m.sessionPath(sessionKey)
	tempPath := sessionPath + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	writer := bufio.NewWriter(file)
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err == nil {
			_, err = writer.Write(append(data, '\n'))
		}
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	err = writer.Flush()
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to flush temp file: %w", err)
	}

	if err := os.Rename(tempPath, sessionPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	m.logger.Info().Str("session_key", sessionKey).Int("entries", len(entries)).Msg("Session repaired")
	return nil
}

// Info returns metadata about a session
func (m *Manager) Info(ctx context.Context, sessionKey string) (Info, error) {
	if err := ValidateSessionKey(sessionKey); err != nil {
		return Info{}, err
	}

	stat, err := os.Stat(m.sessionPath(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionKey)
		}
		return Info{}, fmt.Errorf("failed to stat session file: %w", err)
	}

	entries, err := m.Load(ctx, sessionKey)
	if err != nil {
		return Info{}, err
	}

	info := Info{SessionKey: sessionKey, Size: stat.Size(), LastModified: stat.ModTime()}
	for _, e := range entries {
		switch e.Type {
		case EntryMessage:
			info.Messages++
		case EntryCompaction:
			info.Compactions++
		}
	}
	return info, nil
}
