package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestParseSwitchEvent(t *testing.T) {
	form := url.Values{}
	form.Set("call_id", "c1")
	form.Set("event_id", "ev-1")
	form.Set("event_type", "answered")
	form.Set("timestamp", "2026-08-30T12:00:00Z")
	// Switches attach extra fields; they must be ignored.
	form.Set("sip_hangup_cause", "NORMAL_CLEARING")

	r := httptest.NewRequest("POST", "/switch/events", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseSwitchEvent(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ev.CallID != "c1" || ev.EventID != "ev-1" || ev.Type != EventAnswered {
		t.Fatalf("unexpected event %+v", ev)
	}
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if !ev.OccurredAt.Equal(want) {
		t.Fatalf("expected %v, got %v", want, ev.OccurredAt)
	}
}

func TestParseSwitchEvent_BadTimestampFallsBack(t *testing.T) {
	form := url.Values{}
	form.Set("call_id", "c1")
	form.Set("event_id", "ev-1")
	form.Set("event_type", "ringing")
	form.Set("timestamp", "not-a-time")

	r := httptest.NewRequest("POST", "/switch/events", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ev, err := ParseSwitchEvent(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ev.OccurredAt.IsZero() {
		t.Fatalf("expected fallback timestamp")
	}
}

func TestParseSwitchEvent_Invalid(t *testing.T) {
	cases := []url.Values{
		{"event_id": {"ev-1"}, "event_type": {"ringing"}},              // missing call_id
		{"call_id": {"c1"}, "event_type": {"ringing"}},                 // missing event_id
		{"call_id": {"c1"}, "event_id": {"ev-1"}},                      // missing type
		{"call_id": {"c1"}, "event_id": {"ev-1"}, "event_type": {"x"}}, // unknown type
	}
	for i, form := range cases {
		r := httptest.NewRequest("POST", "/switch/events", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if _, err := ParseSwitchEvent(r); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestEventTypeValid(t *testing.T) {
	for _, typ := range []EventType{EventRinging, EventAnswered, EventHangup, EventBusy, EventFailed} {
		if !typ.Valid() {
			t.Fatalf("expected %q to be valid", typ)
		}
	}
	if EventType("answered ").Valid() {
		t.Fatalf("expected invalid")
	}
}
