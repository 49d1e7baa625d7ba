package compaction

import (
	"testing"

	"github.com/harun/recap/pkg/conversation"
	"github.com/harun/recap/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageEntry(id string, role conversation.Role, text string) session.Entry {
	msg := conversation.Message{Role: role, Content: []conversation.ContentBlock{conversation.Text(text)}}
	return session.Entry{ID: id, Type: session.EntryMessage, Message: &msg}
}

func compactionEntry(id, summary, firstKept string) session.Entry {
	return session.Entry{
		ID:         id,
		Type:       session.EntryCompaction,
		Compaction: &session.Compaction{Summary: summary, FirstKeptEntryID: firstKept},
	}
}

func TestPrepare(t *testing.T) {
	u, a := conversation.RoleUser, conversation.RoleAssistant

	t.Run("keeps recent messages from a user turn", func(t *testing.T) {
		entries := []session.Entry{
			messageEntry("1", u, "fix login"),
			messageEntry("2", a, "done"),
			messageEntry("3", u, "now logout"),
			messageEntry("4", a, "ok"),
		}

		prep, err := Prepare(entries, 2)
		require.NoError(t, err)
		assert.Len(t, prep.Messages, 2)
		assert.Equal(t, "3", prep.FirstKeptEntryID)
		assert.Equal(t, 2, prep.Kept())
		assert.Empty(t, prep.PreviousSummary)
		assert.Positive(t, prep.TokensBefore)
	})

	t.Run("moves the cut back to a user message", func(t *testing.T) {
		entries := []session.Entry{
			messageEntry("1", u, "a"),
			messageEntry("2", a, "b"),
			messageEntry("3", a, "c"),
			messageEntry("4", a, "d"),
		}

		_, err := Prepare(entries, 2)
		assert.ErrorIs(t, err, ErrNothingToCompact)

		entries = append(entries, messageEntry("5", u, "e"), messageEntry("6", a, "f"))
		prep, err := Prepare(entries, 1)
		require.NoError(t, err)
		assert.Equal(t, "5", prep.FirstKeptEntryID)
		assert.Len(t, prep.Messages, 4)
	})

	t.Run("keep zero summarizes everything", func(t *testing.T) {
		prep, err := Prepare([]session.Entry{messageEntry("1", u, "a"), messageEntry("2", a, "b")}, 0)
		require.NoError(t, err)
		assert.Len(t, prep.Messages, 2)
		assert.Empty(t, prep.FirstKeptEntryID)
	})

	t.Run("starts after the previous compaction", func(t *testing.T) {
		entries := []session.Entry{
			messageEntry("1", u, "old"),
			messageEntry("2", a, "old reply"),
			messageEntry("3", u, "kept"),
			compactionEntry("c1", "## Main Goal\nold work", "3"),
			messageEntry("4", a, "kept reply"),
			messageEntry("5", u, "newest"),
		}

		prep, err := Prepare(entries, 1)
		require.NoError(t, err)
		assert.Equal(t, "## Main Goal\nold work", prep.PreviousSummary)
		require.Len(t, prep.Live, 3)
		assert.Equal(t, "kept", prep.Live[0].TextContent())
		assert.Len(t, prep.Messages, 2)
		assert.Equal(t, "5", prep.FirstKeptEntryID)
	})

	t.Run("empty session", func(t *testing.T) {
		_, err := Prepare(nil, 0)
		assert.ErrorIs(t, err, ErrNothingToCompact)
	})
}

func TestEstimateTokens(t *testing.T) {
	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Content: []conversation.ContentBlock{conversation.Text("12345678")}},
		{Role: conversation.RoleAssistant, Content: []conversation.ContentBlock{
			conversation.ToolCall("c1", "edit", map[string]interface{}{"path": "a.go", "line": 3}),
		}},
	}
	// 8/4 + "edit" 1 + "path" 1 + "a.go" 1
	assert.Equal(t, 5, EstimateTokens(msgs))
}
