package calls

import "errors"

var (
	// ErrNotFound is returned on lookups of unknown call ids.
	ErrNotFound = errors.New("calls: not found")

	// ErrDuplicateID is returned by Create when the id already exists.
	ErrDuplicateID = errors.New("calls: duplicate call id")

	// ErrStaleTransition is returned by Transition when the compare-and-set
	// loses a race or when the event id has already been applied to this
	// call. It carries no side effects and is not an error to the caller of
	// the event path; the coordinator drops it.
	ErrStaleTransition = errors.New("calls: stale transition")

	// ErrInvalidTransition is returned for edges outside the lifecycle
	// table, including any transition out of a terminal state.
	ErrInvalidTransition = errors.New("calls: invalid transition")
)
