package calls

import "testing"

func TestCanTransition_TableEdges(t *testing.T) {
	allowed := [][2]CallStatus{
		{CallStatusQueued, CallStatusRinging},
		{CallStatusQueued, CallStatusFailed},
		{CallStatusQueued, CallStatusCanceled},
		{CallStatusRinging, CallStatusInProgress},
		{CallStatusRinging, CallStatusNoAnswer},
		{CallStatusRinging, CallStatusBusy},
		{CallStatusRinging, CallStatusFailed},
		{CallStatusInProgress, CallStatusCompleted},
		{CallStatusInProgress, CallStatusFailed},
	}
	for _, edge := range allowed {
		if !CanTransition(edge[0], edge[1]) {
			t.Fatalf("expected %s -> %s to be allowed", edge[0], edge[1])
		}
	}
}

func TestCanTransition_RejectsEverythingElse(t *testing.T) {
	all := []CallStatus{
		CallStatusQueued, CallStatusRinging, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusCanceled,
		CallStatusNoAnswer, CallStatusBusy,
	}
	allowed := map[[2]CallStatus]bool{
		{CallStatusQueued, CallStatusRinging}:        true,
		{CallStatusQueued, CallStatusFailed}:         true,
		{CallStatusQueued, CallStatusCanceled}:       true,
		{CallStatusRinging, CallStatusInProgress}:    true,
		{CallStatusRinging, CallStatusNoAnswer}:      true,
		{CallStatusRinging, CallStatusBusy}:          true,
		{CallStatusRinging, CallStatusFailed}:        true,
		{CallStatusInProgress, CallStatusCompleted}:  true,
		{CallStatusInProgress, CallStatusFailed}:     true,
	}
	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			if got != allowed[[2]CallStatus{from, to}] {
				t.Fatalf("%s -> %s: got %v", from, to, got)
			}
		}
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	all := []CallStatus{
		CallStatusQueued, CallStatusRinging, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusCanceled,
		CallStatusNoAnswer, CallStatusBusy,
	}
	for _, s := range all {
		if !s.Terminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(s, to) {
				t.Fatalf("terminal %s must be absorbing, found edge to %s", s, to)
			}
		}
	}
}

func TestSnapshotHidesSecrets(t *testing.T) {
	c := Call{
		ID:               "c1",
		Source:           "2442",
		Destination:      "+85512334667",
		DialInstruction:  "85512334667@127.0.0.1",
		AccountAuthToken: "secret",
		Status:           CallStatusQueued,
	}
	snap := c.Snapshot()
	if snap.ID != "c1" || snap.From != "2442" || snap.To != "+85512334667" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Status != CallStatusQueued {
		t.Fatalf("expected queued, got %s", snap.Status)
	}
}
