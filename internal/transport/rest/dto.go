package rest

import (
	"fmt"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// ItemRequest — одна позиция в теле POST /orders.
type ItemRequest struct {
	SKU      string  `json:"sku"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// CreateOrderRequest — тело POST /orders.
type CreateOrderRequest struct {
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id"`
	Items      []ItemRequest `json:"items"`
}

// Validate возвращает список ошибок формата запроса; пустой список
// означает валидный запрос.
func (r CreateOrderRequest) Validate() []string {
	var errs []string
	if r.OrderID == "" {
		errs = append(errs, "order_id must not be empty")
	}
	if r.CustomerID == "" {
		errs = append(errs, "customer_id must not be empty")
	}
	if len(r.Items) == 0 {
		errs = append(errs, "items must not be empty")
	}
	for i, item := range r.Items {
		if item.SKU == "" {
			errs = append(errs, fmt.Sprintf("items[%d].sku must not be empty", i))
		}
		if item.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("items[%d].quantity must be a positive integer", i))
		}
		if item.Price <= 0 {
			errs = append(errs, fmt.Sprintf("items[%d].price must be positive", i))
		}
	}
	return errs
}

// ItemLines переводит позиции запроса в доменный вид.
func (r CreateOrderRequest) ItemLines() []domain.ItemLine {
	items := make([]domain.ItemLine, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, domain.ItemLine{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return items
}

// ItemResponse — позиция заказа в ответах API.
type ItemResponse struct {
	SKU      string  `json:"sku"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// OrderResponse — каноническое представление заказа в ответах API.
type OrderResponse struct {
	OrderID     string         `json:"order_id"`
	CustomerID  string         `json:"customer_id"`
	Items       []ItemResponse `json:"items"`
	TotalAmount float64        `json:"total_amount"`
	Status      string         `json:"status"`
	Version     int            `json:"version"`
	FailReason  *string        `json:"fail_reason"`
}

// NewOrderResponse строит представление заказа из доменной модели.
func NewOrderResponse(order *domain.Order) OrderResponse {
	items := make([]ItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemResponse{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return OrderResponse{
		OrderID:     order.OrderID,
		CustomerID:  order.CustomerID,
		Items:       items,
		TotalAmount: order.TotalAmount,
		Status:      string(order.Status),
		Version:     order.Version,
		FailReason:  order.FailReason,
	}
}

// ErrorResponse — единый формат тела ошибки API. Detail — строка либо
// список строк для ошибок валидации формата запроса.
type ErrorResponse struct {
	Detail    any    `json:"detail"`
	ErrorType string `json:"error_type"`
}

// Типы ошибок в поле error_type.
const (
	ErrorTypeRequestValidation = "RequestValidationError"
	ErrorTypeValidation        = "ValidationError"
	ErrorTypeNotFound          = "NotFoundError"
	ErrorTypeInternal          = "InternalServerError"
)
