package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer logger.Close()

		logger.Info().Str("session_key", "s1").Msg("compaction started")
		logger.Debug().Msg("hidden")

		assert.Contains(t, buf.String(), `"session_key":"s1"`)
		assert.Contains(t, buf.String(), "compaction started")
		assert.NotContains(t, buf.String(), "hidden")
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "recap.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		logger.Debug().Msg("written to file")
		require.NoError(t, logger.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
	})

	t.Run("redaction", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Config{Level: "info", Console: true, Redaction: true, Output: &buf})
		require.NoError(t, err)
		assert.NotNil(t, logger.redactor)

		logger.Info().Str("key", "sk-ant-REDACTED").Msg("calling provider")
		assert.NotContains(t, buf.String(), "abcdefghijklmnop")
		assert.Contains(t, buf.String(), "[REDACTED]")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "chatty"})
		require.NoError(t, err)
		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
	})
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Console: true, Output: &buf})
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.Contains(t, buf.String(), `"level":"`+level+`"`)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)

	child := logger.With().Str("component", "compaction").Logger()
	child.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"compaction"`)
}
