package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/recap/pkg/conversation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(Config{Dir: t.TempDir(), Logger: zerolog.Nop()})
	require.NoError(t, err)
	return m
}

func textMessage(role conversation.Role, text string) conversation.Message {
	return conversation.Message{Role: role, Content: []conversation.ContentBlock{conversation.Text(text)}}
}

func TestValidateSessionKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		shouldErr bool
	}{
		{"valid key", "test-session", false},
		{"empty key", "", true},
		{"path traversal", "../etc/passwd", true},
		{"forward slash", "test/session", true},
		{"backslash", "test\\session", true},
		{"null byte", "test\x00session", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionKey(tt.key)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestManager_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	m := setupTestManager(t)

	msgs := []conversation.Message{
		textMessage(conversation.RoleUser, "fix the login bug"),
		{
			Role: conversation.RoleAssistant,
			Content: []conversation.ContentBlock{
				conversation.Text("editing"),
				conversation.ToolCall("c1", "edit", map[string]interface{}{"path": "auth.go"}),
			},
		},
		{
			Role:       conversation.RoleToolResult,
			Content:    []conversation.ContentBlock{conversation.ToolResultMarker()},
			ToolCallID: "c1",
			ToolName:   "edit",
		},
	}

	var ids []string
	for _, msg := range msgs {
		id, err := m.AppendMessage(ctx, "s1", msg)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])

	entries, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, entry := range entries {
		assert.Equal(t, ids[i], entry.ID)
		assert.Equal(t, EntryMessage, entry.Type)
		assert.Equal(t, "s1", entry.SessionKey)
	}

	loaded := Messages(entries)
	assert.Equal(t, "fix the login bug", loaded[0].TextContent())
	require.Len(t, loaded[1].ToolCalls(), 1)
	assert.Equal(t, "auth.go", loaded[1].ToolCalls()[0].Arguments["path"])
	assert.Equal(t, "c1", loaded[2].ToolCallID)
}

func TestManager_AppendMessageRejectsEmpty(t *testing.T) {
	m := setupTestManager(t)

	_, err := m.AppendMessage(context.Background(), "s1", conversation.Message{Role: conversation.RoleUser})
	assert.Error(t, err)

	_, err = m.AppendMessage(context.Background(), "../s1", textMessage(conversation.RoleUser, "hi"))
	assert.Error(t, err)
}

func TestManager_LoadMissingSession(t *testing.T) {
	m := setupTestManager(t)

	_, err := m.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_AppendCompaction(t *testing.T) {
	ctx := context.Background()
	m := setupTestManager(t)

	_, err := m.AppendMessage(ctx, "s1", textMessage(conversation.RoleUser, "old"))
	require.NoError(t, err)
	keptID, err := m.AppendMessage(ctx, "s1", textMessage(conversation.RoleUser, "recent"))
	require.NoError(t, err)

	t.Run("appends a compaction entry", func(t *testing.T) {
		id, err := m.AppendCompaction(ctx, "s1", Compaction{
			Summary:          "## Main Goal\nfix login",
			FirstKeptEntryID: keptID,
			TokensBefore:     1200,
			Details:          CompactionDetails{ModifiedFiles: []string{"auth.go"}},
		})
		require.NoError(t, err)

		entries, err := m.Load(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, entries, 3)

		idx := LatestCompaction(entries)
		require.Equal(t, 2, idx)
		assert.Equal(t, id, entries[idx].ID)
		assert.Equal(t, keptID, entries[idx].Compaction.FirstKeptEntryID)
		assert.Equal(t, []string{"auth.go"}, entries[idx].Compaction.Details.ModifiedFiles)
		assert.Len(t, Messages(entries), 2)
	})

	t.Run("rejects an unknown first kept entry", func(t *testing.T) {
		_, err := m.AppendCompaction(ctx, "s1", Compaction{Summary: "x", FirstKeptEntryID: "nope"})
		assert.Error(t, err)
	})

	t.Run("rejects an empty summary", func(t *testing.T) {
		_, err := m.AppendCompaction(ctx, "s1", Compaction{Summary: "  "})
		assert.Error(t, err)
	})
}

func TestManager_LoadSkipsCorruptLines(t *testing.T) {
	ctx := context.Background()
	m := setupTestManager(t)

	_, err := m.AppendMessage(ctx, "s1", textMessage(conversation.RoleUser, "one"))
	require.NoError(t, err)

	path := filepath.Join(m.Dir(), "s1.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n{\"id\":\"x\",\"type\":\"bogus\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = m.AppendMessage(ctx, "s1", textMessage(conversation.RoleAssistant, "two"))
	require.NoError(t, err)

	entries, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	t.Run("repair drops the corrupt lines", func(t *testing.T) {
		require.NoError(t, m.Repair(ctx, "s1"))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "not json")

		entries, err := m.Load(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestManager_ListInfoDelete(t *testing.T) {
	ctx := context.Background()
	m := setupTestManager(t)

	for _, key := range []string{"b", "a", "c"} {
		_, err := m.AppendMessage(ctx, key, textMessage(conversation.RoleUser, "hi"))
		require.NoError(t, err)
	}

	list, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, list)

	info, err := m.Info(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Messages)
	assert.Zero(t, info.Compactions)
	assert.Positive(t, info.Size)

	require.NoError(t, m.Delete(ctx, "a"))
	require.NoError(t, m.Delete(ctx, "a"))

	_, err = m.Info(ctx, "a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_Import(t *testing.T) {
	ctx := context.Background()
	m := setupTestManager(t)

	_, err := m.AppendMessage(ctx, "s1", textMessage(conversation.RoleUser, "stale"))
	require.NoError(t, err)

	err = m.Import(ctx, "s1", []conversation.Message{
		textMessage(conversation.RoleUser, "first"),
		textMessage(conversation.RoleAssistant, "second"),
	})
	require.NoError(t, err)

	entries, err := m.Load(ctx, "s1")
	require.NoError(t, err)
	msgs := Messages(entries)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].TextContent())
}
