package telephony

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SwitchEventForm captures the subset of the switch's event hook fields we
// care about. The switch posts application/x-www-form-urlencoded, one
// event per request. Unknown fields are ignored.
type SwitchEventForm struct {
	CallID    string
	EventID   string
	EventType string
	Timestamp string
}

// ParseSwitchEvent parses and validates one posted hook into an Event.
func ParseSwitchEvent(r *http.Request) (Event, error) {
	if err := r.ParseForm(); err != nil {
		return Event{}, err
	}
	f := SwitchEventForm{
		CallID:    strings.TrimSpace(r.PostFormValue("call_id")),
		EventID:   strings.TrimSpace(r.PostFormValue("event_id")),
		EventType: strings.TrimSpace(r.PostFormValue("event_type")),
		Timestamp: strings.TrimSpace(r.PostFormValue("timestamp")),
	}
	return f.toEvent()
}

func (f SwitchEventForm) toEvent() (Event, error) {
	if f.CallID == "" {
		return Event{}, fmt.Errorf("telephony: event missing call_id")
	}
	if f.EventID == "" {
		return Event{}, fmt.Errorf("telephony: event missing event_id")
	}
	t := EventType(f.EventType)
	if !t.Valid() {
		return Event{}, fmt.Errorf("telephony: unknown event_type %q", f.EventType)
	}

	occurredAt := time.Now().UTC()
	if f.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, f.Timestamp); err == nil {
			occurredAt = ts.UTC()
		}
		// Unparseable timestamps fall back to receive time; ordering is
		// not derived from it anyway.
	}

	return Event{
		CallID:     f.CallID,
		EventID:    f.EventID,
		Type:       t,
		OccurredAt: occurredAt,
	}, nil
}
