package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "subdir", "recap.log")

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	assert.FileExists(t, logFile)
}

func TestRotatingWriterAppends(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "recap.log")
	require.NoError(t, os.WriteFile(logFile, []byte("existing\n"), 0644))

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)

	_, err = rw.Write([]byte("next\n"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "existing\nnext\n", string(data))

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriterRotation(t *testing.T) {
	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "recap.log")

	rw, err := NewRotatingWriter(logFile, 1, 0, true)
	require.NoError(t, err)
	defer rw.Close()

	line := []byte(strings.Repeat("x", 600*1024) + "\n")
	_, err = rw.Write(line)
	require.NoError(t, err)
	_, err = rw.Write(line)
	require.NoError(t, err)

	rotated, err := filepath.Glob(filepath.Join(tmpDir, "recap.log.*.gz"))
	require.NoError(t, err)
	require.Len(t, rotated, 1)

	info, err := os.Stat(logFile)
	require.NoError(t, err)
	assert.Equal(t, int64(len(line)), info.Size())
}

func TestRotatingWriterConcurrentWrites(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "recap.log")
	rw, err := NewRotatingWriter(logFile, 0, 0, false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = rw.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, rw.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "line\n"))
}

func TestCompressFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "recap.log.1")
	require.NoError(t, os.WriteFile(testFile, []byte("test content"), 0644))

	require.NoError(t, compressFile(testFile))

	_, err := os.Stat(testFile)
	assert.True(t, os.IsNotExist(err))

	f, err := os.Open(testFile + ".gz")
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "test content", string(data))
}

func TestCleanup(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "recap.log")

	oldFile := logFile + ".20200101-120000.000"
	recentFile := logFile + ".20990101-120000.000"
	require.NoError(t, os.WriteFile(oldFile, []byte("old log"), 0644))
	require.NoError(t, os.WriteFile(recentFile, []byte("recent log"), 0644))

	oldTime := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, recentFile)
}
