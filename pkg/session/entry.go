package session

import (
	"fmt"
	"time"

	"github.com/harun/recap/pkg/conversation"
)

// EntryType tags the payload of an Entry
type EntryType string

const (
	EntryMessage    EntryType = "message"
	EntryCompaction EntryType = "compaction"
)

// Entry is one line of a session file
type Entry struct {
	ID         string                `json:"id"`
	Type       EntryType             `json:"type"`
	SessionKey string                `json:"sessionKey"`
	Timestamp  time.Time             `json:"timestamp"`
	Message    *conversation.Message `json:"message,omitempty"`
	Compaction *Compaction           `json:"compaction,omitempty"`
}

// Compaction records a summary that replaces the entries before FirstKeptEntryID
type Compaction struct {
	Summary          string            `json:"summary"`
	FirstKeptEntryID string            `json:"firstKeptEntryId"`
	TokensBefore     int               `json:"tokensBefore"`
	Details          CompactionDetails `json:"details"`
}

// CompactionDetails carries the file facts extracted during compaction
type CompactionDetails struct {
	ModifiedFiles []string `json:"modifiedFiles,omitempty"`
	DeletedFiles  []string `json:"deletedFiles,omitempty"`
}

func (e Entry) validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	switch e.Type {
	case EntryMessage:
		if e.Message == nil {
			return fmt.Errorf("message entry %s has no message", e.ID)
		}
	case EntryCompaction:
		if e.Compaction == nil || e.Compaction.Summary == "" {
			return fmt.Errorf("compaction entry %s has no summary", e.ID)
		}
	default:
		return fmt.Errorf("unknown entry type %q", e.Type)
	}
	return nil
}

// Messages returns the conversation messages of entries in order
func Messages(entries []Entry) []conversation.Message {
	msgs := make([]conversation.Message, 0, len(entries))
	for _, e := range entries {
		if e.Type == EntryMessage && e.Message != nil {
			msgs = append(msgs, *e.Message)
		}
	}
	return msgs
}

// LatestCompaction returns the index of the newest compaction entry, or -1
func LatestCompaction(entries []Entry) int {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Type == EntryCompaction && entries[i].Compaction != nil {
			return i
		}
	}
	return -1
}
