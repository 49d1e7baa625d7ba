package compaction

import (
	"context"

	"github.com/harun/recap/pkg/hooks"
	"github.com/rs/zerolog"
)

// Severity grades a notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Notifier receives fire-and-forget progress messages. Notify may be called
// from several goroutines and must not block.
type Notifier interface {
	Notify(message string, severity Severity)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(message string, severity Severity)

func (f NotifierFunc) Notify(message string, severity Severity) {
	f(message, severity)
}

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(message string, severity Severity) {
	event := n.Logger.Info()
	if severity == SeverityWarning {
		event = n.Logger.Warn()
	}
	event.Str("severity", string(severity)).Msg(message)
}

// HookNotifier fires compaction:info and compaction:warning hooks in the background
type HookNotifier struct {
	Hooks      *hooks.Manager
	SessionKey string
}

func (n HookNotifier) Notify(message string, severity Severity) {
	event := hooks.EventCompactionInfo
	if severity == SeverityWarning {
		event = hooks.EventCompactionWarning
	}
	n.Hooks.TriggerAsync(context.Background(), event, map[string]interface{}{
		"message":     message,
		"severity":    string(severity),
		"session_key": n.SessionKey,
	})
}

// MultiNotifier fans a notification out to every notifier
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(message string, severity Severity) {
	for _, n := range m {
		if n != nil {
			n.Notify(message, severity)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, Severity) {}
