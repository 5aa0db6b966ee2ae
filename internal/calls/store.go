package calls

import (
	"context"
	"sync"
	"time"
)

// Store is the single source of truth for call state.
//
// Transition is a per-call compare-and-set: it commits only when the
// current status equals expected AND eventID has never been applied to
// this call. Different call ids never contend; no caller-side locking is
// required.
type Store interface {
	Create(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, error)

	// Transition returns the updated call on success.
	// Failure modes:
	// - ErrNotFound: unknown call id.
	// - ErrInvalidTransition: expected -> next is not a legal edge.
	// - ErrStaleTransition: current status != expected, or eventID was
	//   already applied. The record is left untouched.
	Transition(ctx context.Context, id string, expected, next CallStatus, eventID string) (Call, error)
}

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and the
// local env; production uses PostgresStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Call
	// applied tracks event ids per call for idempotent transitions.
	applied map[string]map[string]struct{}

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Call),
		applied: make(map[string]map[string]struct{}),
		clock:   time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[c.ID]; ok {
		return ErrDuplicateID
	}
	s.records[c.ID] = c
	s.applied[c.ID] = make(map[string]struct{})
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.records[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, expected, next CallStatus, eventID string) (Call, error) {
	if !CanTransition(expected, next) {
		return Call{}, ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.records[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	if _, dup := s.applied[id][eventID]; dup {
		return Call{}, ErrStaleTransition
	}
	if c.Status != expected {
		return Call{}, ErrStaleTransition
	}

	now := s.clock().UTC()
	if now.Before(c.UpdatedAt) {
		// Clock went backwards; keep updated_at monotone.
		now = c.UpdatedAt
	}
	c.Status = next
	c.UpdatedAt = now
	s.records[id] = c
	s.applied[id][eventID] = struct{}{}
	return c, nil
}
