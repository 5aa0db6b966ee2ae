package diag

import "time"

// Record is an immutable, append-only diagnostic entry for protocol
// anomalies observed on the switch event feed.
//
// Invariants:
// - Records are never updated or deleted.
// - Appends are best-effort; the event loop must not block or fail on
//   diagnostics.
type Record struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id,omitempty" db:"call_id"`

	Kind Kind `json:"kind" db:"kind"`

	// EventID identifies the offending switch event when applicable.
	EventID string `json:"event_id,omitempty" db:"event_id"`

	// Detail is a short human-readable description for internal ops.
	Detail string `json:"detail,omitempty" db:"detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	// KindInvalidTransition: the switch sent an event whose edge is not in
	// the lifecycle table (e.g. answered for a queued call).
	KindInvalidTransition Kind = "invalid_transition"
	// KindUnknownCall: an event referenced a call id this process never
	// created.
	KindUnknownCall Kind = "unknown_call"
	// KindMalformedEvent: the hook payload failed to parse.
	KindMalformedEvent Kind = "malformed_event"
)
