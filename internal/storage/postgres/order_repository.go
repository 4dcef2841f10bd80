package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// orderRepository — доступ к таблице orders внутри транзакции scope.
// Позиции заказа хранятся одной JSONB-колонкой items.
type orderRepository struct {
	tx *sql.Tx
}

func (r *orderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		customerID string
		itemsRaw   []byte
		amount     float64
		status     string
		version    int
		failReason sql.NullString
	)

	err := r.tx.QueryRowContext(ctx, `
		SELECT customer_id, items, amount, status, version, fail_reason
		FROM orders
		WHERE order_id = $1
	`, orderID).Scan(&customerID, &itemsRaw, &amount, &status, &version, &failReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	var items []domain.ItemLine
	if err := json.Unmarshal(itemsRaw, &items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}

	var reason *string
	if failReason.Valid {
		reason = &failReason.String
	}

	return domain.HydrateOrder(orderID, customerID, items, domain.OrderStatus(status), version, amount, reason), nil
}

func (r *orderRepository) Put(ctx context.Context, order *domain.Order) error {
	itemsRaw, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}

	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, customer_id, items, amount, status, version, fail_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (order_id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			items = EXCLUDED.items,
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			version = EXCLUDED.version,
			fail_reason = EXCLUDED.fail_reason
	`,
		order.OrderID, order.CustomerID, itemsRaw, order.TotalAmount,
		string(order.Status), order.Version, order.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
