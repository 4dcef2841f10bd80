package app

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	"github.com/vladislavdragonenkov/orderpipe/internal/service/orders"
	"github.com/vladislavdragonenkov/orderpipe/internal/service/processing"
	"github.com/vladislavdragonenkov/orderpipe/internal/storage/memory"
)

func TestOrderCreatedHandlerAppliesEvent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	useCase := processing.NewHandleOrderCreatedUseCase(store, func() float64 { return 0.5 }, nil, nil)
	handler := orderCreatedHandler(useCase, nil)

	body := `{"order_id":"ord-1","customer_id":"cust-1","items":[{"sku":"widget","quantity":1,"price":10}],"amount":10,"version":1}`
	if err := handler(context.Background(), []byte(body)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	state, ok := store.StateByID("ord-1")
	if !ok {
		t.Fatal("processing state was not persisted")
	}
	if state.Status != domain.ProcessingStatusDone {
		t.Fatalf("unexpected status: %s", state.Status)
	}
}

func TestOrderCreatedHandlerSwallowsMalformedMessage(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	useCase := processing.NewHandleOrderCreatedUseCase(store, nil, nil, nil)
	handler := orderCreatedHandler(useCase, nil)

	if err := handler(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("malformed message must be acked, got %v", err)
	}
	if got := len(store.OutboxEntries()); got != 0 {
		t.Fatalf("malformed message must not produce events, got %d", got)
	}
}

func TestApplyProcessedHandlerAppliesEvent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	err := store.Do(context.Background(), func(ctx context.Context, scope domain.Scope) error {
		order, err := domain.NewOrder("ord-1", "cust-1", []domain.ItemLine{{SKU: "widget", Quantity: 1, Price: 10}})
		if err != nil {
			return err
		}
		return scope.Orders().Put(ctx, order)
	})
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	useCase := orders.NewApplyProcessedUseCase(store, nil, nil)
	handler := applyProcessedHandler(useCase, nil)

	body := `{"order_id":"ord-1","status":"success","reason":null,"version":2}`
	if err := handler(context.Background(), []byte(body)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	order, _ := store.OrderByID("ord-1")
	if order.Status != domain.OrderStatusDone {
		t.Fatalf("unexpected status: %s", order.Status)
	}
}

func TestApplyProcessedHandlerSwallowsMalformedMessage(t *testing.T) {
	t.Parallel()

	useCase := orders.NewApplyProcessedUseCase(memory.NewStore(), nil, nil)
	handler := applyProcessedHandler(useCase, nil)

	if err := handler(context.Background(), []byte(`{"status":"maybe"}`)); err != nil {
		t.Fatalf("malformed message must be acked, got %v", err)
	}
}
