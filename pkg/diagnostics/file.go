package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const fileTimestamp = "20060102T150405Z"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileSink writes one JSON file per record
type FileSink struct {
	dir    string
	logger zerolog.Logger
}

// NewFileSink creates dir if needed
func NewFileSink(dir string, logger zerolog.Logger) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("diagnostics directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create diagnostics directory: %w", err)
	}
	return &FileSink{dir: dir, logger: logger.With().Str("component", "diagnostics").Logger()}, nil
}

// Path returns the file a record is written to
func (s *FileSink) Path(rec Record) string {
	session := unsafeNameChars.ReplaceAllString(rec.SessionKey, "_")
	if session == "" {
		session = "unknown"
	}
	name := fmt.Sprintf("%s-%s-%s.json", session, rec.CreatedAt.UTC().Format(fileTimestamp), rec.ID)
	return filepath.Join(s.dir, name)
}

// Write stores rec atomically
func (s *FileSink) Write(ctx context.Context, rec Record) error {
	prepare(&rec)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	path := s.Path(rec)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}

	s.logger.Info().Str("path", path).Str("reason", rec.Reason).Msg("Compaction diagnostics written")
	return nil
}

// Recent returns up to limit records of a session, newest first. Unreadable
// files are skipped.
func (s *FileSink) Recent(ctx context.Context, sessionKey string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnostics: %w", err)
	}

	var records []Record
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", f.Name()).Msg("Skipping unreadable diagnostics file")
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn().Err(err).Str("file", f.Name()).Msg("Skipping corrupt diagnostics file")
			continue
		}
		if rec.SessionKey == sessionKey {
			records = append(records, rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *FileSink) Close() error { return nil }
