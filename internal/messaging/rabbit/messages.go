package rabbit

import (
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// DecodeOrderCreated разбирает и валидирует тело события order.created.
// Отсутствующая версия трактуется как 1.
func DecodeOrderCreated(body []byte) (*domain.OrderCreatedEvent, error) {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode order.created: %w", err)
	}

	if event.OrderID == "" {
		return nil, fmt.Errorf("order.created: order_id is required")
	}
	if len(event.Items) == 0 {
		return nil, fmt.Errorf("order.created: items are required")
	}
	if event.Version == 0 {
		event.Version = 1
	}
	if event.Version < 1 {
		return nil, fmt.Errorf("order.created: version must be >= 1, got %d", event.Version)
	}

	return &event, nil
}

// DecodeOrderProcessed разбирает и валидирует тело события order.processed.
func DecodeOrderProcessed(body []byte) (*domain.OrderProcessedEvent, error) {
	var event domain.OrderProcessedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode order.processed: %w", err)
	}

	if event.OrderID == "" {
		return nil, fmt.Errorf("order.processed: order_id is required")
	}
	if event.Status != domain.ResultSuccess && event.Status != domain.ResultFailed {
		return nil, fmt.Errorf("order.processed: unexpected status %q", event.Status)
	}
	if event.Version < 1 {
		return nil, fmt.Errorf("order.processed: version must be >= 1, got %d", event.Version)
	}

	return &event, nil
}

// ItemSKUs извлекает SKU из позиций события: бизнес-правилам процессора
// нужны только они.
func ItemSKUs(items []domain.ItemLine) []string {
	skus := make([]string, 0, len(items))
	for _, item := range items {
		skus = append(skus, item.SKU)
	}
	return skus
}
