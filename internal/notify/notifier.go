package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	EventAccountMismatch     EventKind = "account_mismatch"
	EventSteamNotRunning     EventKind = "steam_not_running"
	EventOutdatedCredentials EventKind = "outdated_credentials"
	EventTaskComplete        EventKind = "task_complete"
	EventTaskFailed          EventKind = "task_failed"
)

// AutomationEvent is a user-actionable condition or a task outcome.
type AutomationEvent struct {
	AtMs     int64     `json:"atMs"`
	Kind     EventKind `json:"kind"`
	Task     string    `json:"task,omitempty"`
	RunID    string    `json:"runId,omitempty"`
	AppID    int64     `json:"appid,omitempty"`
	GameName string    `json:"gameName,omitempty"`
	Message  string    `json:"message,omitempty"`
}

func (e AutomationEvent) Title() string {
	switch e.Kind {
	case EventAccountMismatch:
		return "Account mismatch"
	case EventSteamNotRunning:
		return "Steam is not running"
	case EventOutdatedCredentials:
		return "Steam credentials expired"
	case EventTaskComplete:
		return "Task complete"
	case EventTaskFailed:
		return "Task failed"
	default:
		return string(e.Kind)
	}
}

// Text is a one-line human summary used by chat notifiers.
func (e AutomationEvent) Text() string {
	var b strings.Builder
	b.WriteString(e.Title())
	if e.Task != "" {
		fmt.Fprintf(&b, " [%s]", e.Task)
	}
	if e.GameName != "" {
		fmt.Fprintf(&b, " %s", e.GameName)
		if e.AppID != 0 {
			fmt.Fprintf(&b, " (%d)", e.AppID)
		}
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e AutomationEvent) Time() time.Time {
	if e.AtMs == 0 {
		return time.Now()
	}
	return time.UnixMilli(e.AtMs)
}

// Notifier must not block the caller on network I/O.
type Notifier interface {
	NotifyAutomationEvent(ctx context.Context, evt AutomationEvent)
}

// Multi fans an event out to every notifier.
type Multi []Notifier

func (m Multi) NotifyAutomationEvent(ctx context.Context, evt AutomationEvent) {
	if evt.AtMs == 0 {
		evt.AtMs = time.Now().UnixMilli()
	}
	for _, n := range m {
		if n != nil {
			n.NotifyAutomationEvent(ctx, evt)
		}
	}
}
