package orders

import (
	"context"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// GetOrderUseCase читает текущее состояние заказа.
type GetOrderUseCase struct {
	uow domain.UnitOfWork
}

// NewGetOrderUseCase создаёт use case чтения заказа.
func NewGetOrderUseCase(uow domain.UnitOfWork) *GetOrderUseCase {
	return &GetOrderUseCase{uow: uow}
}

// Execute возвращает заказ или domain.ErrOrderNotFound.
func (uc *GetOrderUseCase) Execute(ctx context.Context, orderID string) (*domain.Order, error) {
	var result *domain.Order
	err := uc.uow.Do(ctx, func(ctx context.Context, scope domain.Scope) error {
		order, err := scope.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
