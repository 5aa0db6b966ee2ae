package diag

import (
	"context"
	"errors"
	"testing"
)

func TestService_AppendFillsDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.Append(context.Background(), Record{
		CallID:  "c1",
		Kind:    KindInvalidTransition,
		EventID: "ev-1",
		Detail:  "answered while queued",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	recs := repo.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].ID == "" || recs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be filled, got %+v", recs[0])
	}
}

func TestService_RejectsMissingKind(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Append(context.Background(), Record{CallID: "c1"}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestService_NilServiceIsNoop(t *testing.T) {
	var svc *Service
	if err := svc.Append(context.Background(), Record{Kind: KindUnknownCall}); err != nil {
		t.Fatalf("nil service must be a no-op, got %v", err)
	}
}
