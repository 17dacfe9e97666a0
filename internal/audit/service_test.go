package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestService_AppendRequiresType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{LeadID: "lead-1"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_AppendStampsIDAndTime(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }

	if err := svc.LogClaimSettled(context.Background(), "lead-1", "prov-1", "pi_1", 4500); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !e.CreatedAt.Equal(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected stamped created_at, got %v", e.CreatedAt)
	}
	if e.Type != EventTypeClaimSettled || e.GatewayTxnID != "pi_1" || e.AmountCents != 4500 {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestService_ReconciliationCarriesSettlementDetail(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	err := svc.LogReconciliationRequired(context.Background(), "lead-1", "prov-1", "pi_9", 2500, "commit failed after charge")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs, err := repo.ListByType(context.Background(), EventTypeReconciliationRequired, 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("expected 1 reconciliation event")
	}
	e := evs[0]
	if e.GatewayTxnID != "pi_9" || e.AmountCents != 2500 || e.LeadID != "lead-1" || e.ProviderID != "prov-1" {
		t.Fatalf("reconciliation event must carry the refund handle, got %+v", e)
	}
}

func TestService_NilServiceIsNoop(t *testing.T) {
	var svc *Service
	if err := svc.LogTrialExpired(context.Background(), "prov-1"); err != nil {
		t.Fatalf("nil service must be a no-op, got %v", err)
	}
}
