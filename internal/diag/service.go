package diag

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for diagnostic records.
// It MUST be append-only; no Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, r Record) error
}

// Service flags switch/protocol anomalies for later inspection. Callers
// treat it as best-effort: a failed append is logged by the caller and
// never interrupts event processing.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidRecord = errors.New("diag: invalid record")

func (s *Service) Append(ctx context.Context, r Record) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if r.Kind == "" {
		return ErrInvalidRecord
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, r)
}
