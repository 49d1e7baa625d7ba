package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, InitAuditLogger(path))
	defer func() { _ = GetAuditLogger().Close() }()

	RecordCompactionAudit(context.Background(), "sess-1", "completed", map[string]interface{}{"summary_chars": 512})
	RecordSessionAudit(context.Background(), "sess-1", "append_compaction", false, nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "compaction", first["type"])
	assert.Equal(t, "sess-1", first["actor"])
	assert.Equal(t, "completed", first["status"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "session", second["type"])
	assert.Equal(t, "failure", second["status"])
}

func TestAuditLogger_DiscardsAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, InitAuditLogger(path))
	require.NoError(t, GetAuditLogger().Close())

	RecordCompactionAudit(context.Background(), "sess-2", "skipped", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}
