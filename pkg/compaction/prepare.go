package compaction

import (
	"unicode/utf8"

	"github.com/harun/recap/pkg/conversation"
	"github.com/harun/recap/pkg/session"
)

// charsPerToken is the heuristic used for token estimates
const charsPerToken = 4

// Preparation is the part of a session a run summarizes
type Preparation struct {
	// Messages are summarized, oldest first
	Messages []conversation.Message

	// Live are all messages since the previous compaction, including kept ones
	Live []conversation.Message

	// FirstKeptEntryID is the first entry left verbatim; empty when none is kept
	FirstKeptEntryID string

	// PreviousSummary comes from the latest compaction entry
	PreviousSummary string

	// TokensBefore estimates the context size before compaction
	TokensBefore int
}

// Kept returns how many live messages stay verbatim
func (p Preparation) Kept() int {
	return len(p.Live) - len(p.Messages)
}

// Prepare picks the cut point. Messages after the latest compaction are live;
// at least keepRecent of them are kept, and the first kept message is always
// a user message so tool results never lose their calls.
func Prepare(entries []session.Entry, keepRecent int) (Preparation, error) {
	if keepRecent < 0 {
		keepRecent = 0
	}

	var prep Preparation
	start := 0
	if idx := session.LatestCompaction(entries); idx >= 0 {
		c := entries[idx].Compaction
		prep.PreviousSummary = c.Summary
		start = idx + 1
		if c.FirstKeptEntryID != "" {
			for i, e := range entries[:idx] {
				if e.ID == c.FirstKeptEntryID {
					start = i
					break
				}
			}
		}
	}

	var live []session.Entry
	for _, e := range entries[start:] {
		if e.Type == session.EntryMessage && e.Message != nil {
			live = append(live, e)
		}
	}

	cut := len(live) - keepRecent
	if cut < len(live) {
		for cut > 0 && live[cut].Message.Role != conversation.RoleUser {
			cut--
		}
	}
	if cut <= 0 {
		return Preparation{}, ErrNothingToCompact
	}

	prep.Live = session.Messages(live)
	prep.Messages = prep.Live[:cut]
	if cut < len(live) {
		prep.FirstKeptEntryID = live[cut].ID
	}
	prep.TokensBefore = EstimateTokens(prep.Live) + estimateText(prep.PreviousSummary)
	return prep, nil
}

// EstimateTokens approximates the token count of msgs
func EstimateTokens(msgs []conversation.Message) int {
	total := 0
	for _, msg := range msgs {
		total += estimateText(msg.TextContent())
		for _, call := range msg.ToolCalls() {
			total += estimateText(call.Name)
			for k, v := range call.Arguments {
				if s, ok := v.(string); ok {
					total += estimateText(k) + estimateText(s)
				}
			}
		}
	}
	return total
}

func estimateText(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}
