package domain

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ принят, результат обработки ещё не известен.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusDone — обработка завершилась успешно.
	OrderStatusDone OrderStatus = "done"
	// OrderStatusFailed — обработка завершилась отказом.
	OrderStatusFailed OrderStatus = "failed"
)

// ItemLine представляет одну позицию заказа.
// JSON-теги совпадают с wire-форматом события order.created и колонкой items.
type ItemLine struct {
	SKU      string  `json:"sku"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order агрегирует состояние заказа. TotalAmount всегда выводится из Items
// и никогда не задаётся извне.
type Order struct {
	OrderID     string
	CustomerID  string
	Items       []ItemLine
	TotalAmount float64
	Status      OrderStatus
	Version     int
	FailReason  *string
}

// NewOrder создаёт заказ в статусе pending с версией 1.
// Возвращает валидационную ошибку при пустом списке позиций,
// неположительном количестве или неположительной цене.
func NewOrder(orderID, customerID string, items []ItemLine) (*Order, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	return &Order{
		OrderID:     orderID,
		CustomerID:  customerID,
		Items:       append([]ItemLine(nil), items...),
		TotalAmount: ItemsTotal(items),
		Status:      OrderStatusPending,
		Version:     1,
	}, nil
}

// HydrateOrder восстанавливает заказ из хранилища без повторной валидации.
func HydrateOrder(orderID, customerID string, items []ItemLine, status OrderStatus, version int, totalAmount float64, failReason *string) *Order {
	return &Order{
		OrderID:     orderID,
		CustomerID:  customerID,
		Items:       append([]ItemLine(nil), items...),
		TotalAmount: totalAmount,
		Status:      status,
		Version:     version,
		FailReason:  failReason,
	}
}

// ItemsTotal считает сумму заказа как Σ quantity·price.
func ItemsTotal(items []ItemLine) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * item.Price
	}
	return total
}

// ApplyProcessed применяет результат обработки заказа.
// Допустим только при newVersion строго больше текущей версии, иначе
// возвращает ErrStaleVersion без изменения состояния. Статус success
// переводит заказ в done, любой другой — в failed с указанием причины.
func (o *Order) ApplyProcessed(status ResultStatus, newVersion int, failReason *string) error {
	if newVersion <= o.Version {
		return ErrStaleVersion
	}

	o.Version = newVersion
	if status == ResultSuccess {
		o.Status = OrderStatusDone
		return nil
	}

	o.Status = OrderStatusFailed
	o.FailReason = failReason
	return nil
}

func validateItems(items []ItemLine) error {
	if len(items) == 0 {
		return ErrItemsRequired
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return ErrItemQuantityInvalid
		}
		if item.Price <= 0 {
			return ErrItemPriceInvalid
		}
	}
	return nil
}
