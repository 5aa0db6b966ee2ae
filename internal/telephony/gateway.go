package telephony

import (
	"context"
	"time"
)

// Gateway is the provider-agnostic boundary to the telephony switch.
//
// Rules:
// - No switch protocol details outside telephony adapters.
// - Dial returns once the switch acknowledges queuing the attempt, not
//   when the call completes; completion arrives on the event feed.
// - The event feed is at-least-once and unordered; EventID is the dedup
//   key and the state machine's edge table decides validity, never
//   arrival time.
type Gateway interface {
	Name() string
	Dial(ctx context.Context, req DialRequest) (DialResult, error)
}

type DialRequest struct {
	CallID     string `json:"call_id"`
	DialString string `json:"dial_string"`
}

type DialResult struct {
	Accepted bool `json:"accepted"`

	// Reason is set when the switch refused the dial, e.g. "no route".
	Reason string `json:"reason,omitempty"`
}

// Event is one switch-originated lifecycle notification.
type Event struct {
	CallID  string    `json:"call_id"`
	EventID string    `json:"event_id"`
	Type    EventType `json:"type"`

	// OccurredAt is the switch's event time. Informational only; ordering
	// is decided by the state machine.
	OccurredAt time.Time `json:"occurred_at"`
}

type EventType string

const (
	// EventRinging: dialing progressed, far end is being alerted.
	EventRinging EventType = "ringing"
	// EventAnswered: far end picked up.
	EventAnswered EventType = "answered"
	// EventHangup: the call ended. Target state depends on whether it was
	// answered first (completed) or not (no-answer).
	EventHangup EventType = "hangup"
	// EventBusy: busy signal before answer.
	EventBusy EventType = "busy"
	// EventFailed: switch-side error at any point before a normal end.
	EventFailed EventType = "failed"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventRinging, EventAnswered, EventHangup, EventBusy, EventFailed:
		return true
	}
	return false
}
