package orders

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	"github.com/vladislavdragonenkov/orderpipe/internal/storage/memory"
)

func seedPendingOrder(t *testing.T, store *memory.Store, orderID string) {
	t.Helper()

	err := store.Do(context.Background(), func(ctx context.Context, scope domain.Scope) error {
		order, err := domain.NewOrder(orderID, "cust-1", []domain.ItemLine{{SKU: "widget", Quantity: 1, Price: 10}})
		if err != nil {
			return err
		}
		return scope.Orders().Put(ctx, order)
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestApplyProcessedUseCase_SuccessMarksOrderDone(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedPendingOrder(t, store, "ord-proc-123")
	useCase := NewApplyProcessedUseCase(store, nil, nil)

	err := useCase.Execute(context.Background(), ApplyProcessedCommand{
		OrderID: "ord-proc-123",
		Status:  domain.ResultSuccess,
		Version: 2,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	order, ok := store.OrderByID("ord-proc-123")
	if !ok {
		t.Fatal("order disappeared")
	}
	if order.Status != domain.OrderStatusDone {
		t.Fatalf("expected done, got %s", order.Status)
	}
	if order.Version != 2 {
		t.Fatalf("expected version 2, got %d", order.Version)
	}
	if order.FailReason != nil {
		t.Fatalf("success must not set fail reason, got %q", *order.FailReason)
	}
	if !store.InboxContains("order.processed:ord-proc-123:2") {
		t.Fatal("inbox key was not recorded")
	}
}

func TestApplyProcessedUseCase_FailureSetsReason(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedPendingOrder(t, store, "ord-1")
	useCase := NewApplyProcessedUseCase(store, nil, nil)

	reason := "Random failure"
	err := useCase.Execute(context.Background(), ApplyProcessedCommand{
		OrderID: "ord-1",
		Status:  domain.ResultFailed,
		Reason:  &reason,
		Version: 2,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	order, _ := store.OrderByID("ord-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected failed, got %s", order.Status)
	}
	if order.FailReason == nil || *order.FailReason != reason {
		t.Fatalf("expected fail reason %q, got %v", reason, order.FailReason)
	}
}

func TestApplyProcessedUseCase_RedeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedPendingOrder(t, store, "ord-1")
	useCase := NewApplyProcessedUseCase(store, nil, nil)

	cmd := ApplyProcessedCommand{OrderID: "ord-1", Status: domain.ResultSuccess, Version: 2}
	if err := useCase.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	before, _ := store.OrderByID("ord-1")
	if err := useCase.Execute(context.Background(), cmd); err != nil {
		t.Fatalf("second execute: %v", err)
	}

	after, _ := store.OrderByID("ord-1")
	if after.Status != before.Status || after.Version != before.Version {
		t.Fatalf("redelivery changed the order: %+v vs %+v", after, before)
	}
}

func TestApplyProcessedUseCase_StaleVersionDropped(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedPendingOrder(t, store, "ord-1")
	useCase := NewApplyProcessedUseCase(store, nil, nil)

	tests := []struct {
		name    string
		version int
	}{
		{name: "equal version", version: 1},
		{name: "lower version", version: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := useCase.Execute(context.Background(), ApplyProcessedCommand{
				OrderID: "ord-1",
				Status:  domain.ResultSuccess,
				Version: tt.version,
			})
			if err != nil {
				t.Fatalf("execute: %v", err)
			}

			order, _ := store.OrderByID("ord-1")
			if order.Status != domain.OrderStatusPending {
				t.Fatalf("stale event must not mutate order, got %s", order.Status)
			}
			key := domain.EventKey(domain.EventTypeOrderProcessed, "ord-1", tt.version)
			if store.InboxContains(key) {
				t.Fatal("stale event must not record an inbox key")
			}
		})
	}
}

func TestApplyProcessedUseCase_UnknownOrderDropped(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	useCase := NewApplyProcessedUseCase(store, nil, nil)

	err := useCase.Execute(context.Background(), ApplyProcessedCommand{
		OrderID: "ghost",
		Status:  domain.ResultSuccess,
		Version: 2,
	})
	if err != nil {
		t.Fatalf("unknown order must be dropped silently, got %v", err)
	}
	if store.InboxContains("order.processed:ghost:2") {
		t.Fatal("unknown order must not record an inbox key")
	}
}
