package calls

// CallStatus is the lifecycle state of a call.
type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusCanceled   CallStatus = "canceled"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
)

// transitions is the only legal edge set. Terminal states have no outgoing
// edges, which makes them absorbing without a special case.
var transitions = map[CallStatus][]CallStatus{
	CallStatusQueued:     {CallStatusRinging, CallStatusFailed, CallStatusCanceled},
	CallStatusRinging:    {CallStatusInProgress, CallStatusNoAnswer, CallStatusBusy, CallStatusFailed},
	CallStatusInProgress: {CallStatusCompleted, CallStatusFailed},
}

// Valid reports whether s is a known status value.
func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusQueued, CallStatusRinging, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusCanceled,
		CallStatusNoAnswer, CallStatusBusy:
		return true
	}
	return false
}

// Terminal reports whether s is an absorbing state.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusCanceled,
		CallStatusNoAnswer, CallStatusBusy:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to CallStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
