package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	"github.com/vladislavdragonenkov/orderpipe/internal/metrics"
)

// CreateOrderCommand — команда создания заказа, приходящая с HTTP-границы.
type CreateOrderCommand struct {
	OrderID    string
	CustomerID string
	Items      []domain.ItemLine
}

// CreateOrderUseCase создаёт заказ и событие order.created в одной транзакции.
// Повторный вызов с тем же order_id идемпотентен: возвращается существующий
// заказ, новое событие не создаётся.
type CreateOrderUseCase struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.Pipeline
}

// NewCreateOrderUseCase создаёт use case поверх unit of work.
func NewCreateOrderUseCase(uow domain.UnitOfWork, logger *log.Entry, pipeline *metrics.Pipeline) *CreateOrderUseCase {
	if logger == nil {
		logger = log.WithField("component", "create-order")
	}
	return &CreateOrderUseCase{uow: uow, logger: logger, metrics: pipeline}
}

// Execute выполняет команду и возвращает итоговое состояние заказа.
func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	var (
		result  *domain.Order
		created bool
	)

	err := uc.uow.Do(ctx, func(ctx context.Context, scope domain.Scope) error {
		existing, err := scope.Orders().Get(ctx, cmd.OrderID)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return fmt.Errorf("load order: %w", err)
		}

		order, err := domain.NewOrder(cmd.OrderID, cmd.CustomerID, cmd.Items)
		if err != nil {
			return err
		}

		if err := scope.Orders().Put(ctx, order); err != nil {
			return fmt.Errorf("store order: %w", err)
		}

		payload, err := json.Marshal(domain.OrderCreatedEvent{
			OrderID:    order.OrderID,
			CustomerID: order.CustomerID,
			Items:      order.Items,
			Amount:     order.TotalAmount,
			Version:    order.Version,
		})
		if err != nil {
			return fmt.Errorf("encode order.created event: %w", err)
		}
		if err := scope.Outbox().Put(ctx, domain.EventTypeOrderCreated, payload); err != nil {
			return fmt.Errorf("enqueue order.created event: %w", err)
		}

		result = order
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		uc.metrics.RecordOrderCreated()
		uc.logger.WithFields(log.Fields{
			"order_id": result.OrderID,
			"amount":   result.TotalAmount,
		}).Info("order created")
	}

	return result, nil
}
