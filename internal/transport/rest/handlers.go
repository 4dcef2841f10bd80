package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	"github.com/vladislavdragonenkov/orderpipe/internal/service/orders"
)

// Handler обслуживает HTTP API сервиса заказов.
type Handler struct {
	service     string
	createOrder *orders.CreateOrderUseCase
	getOrder    *orders.GetOrderUseCase
	logger      *log.Entry
}

// NewHandler создаёт обработчик поверх use case-ов сервиса заказов.
func NewHandler(service string, createOrder *orders.CreateOrderUseCase, getOrder *orders.GetOrderUseCase, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "rest-handler")
	}
	return &Handler{
		service:     service,
		createOrder: createOrder,
		getOrder:    getOrder,
		logger:      logger,
	}
}

// Health отвечает на GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"service": h.service,
		"status":  "ok",
	})
}

// CreateOrder обслуживает POST /orders. Повторный запрос с тем же order_id
// возвращает существующий заказ, статус всегда 201.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, ErrorTypeRequestValidation, []string{"request body must be valid JSON"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.fail(w, r, http.StatusBadRequest, ErrorTypeRequestValidation, errs)
		return
	}

	order, err := h.createOrder.Execute(r.Context(), orders.CreateOrderCommand{
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Items:      req.ItemLines(),
	})
	if err != nil {
		if domain.IsValidation(err) {
			h.fail(w, r, http.StatusBadRequest, ErrorTypeValidation, err.Error())
			return
		}
		h.internal(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, NewOrderResponse(order))
}

// GetOrder обслуживает GET /orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	order, err := h.getOrder.Execute(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.fail(w, r, http.StatusNotFound, ErrorTypeNotFound, fmt.Sprintf("Order %s not found", orderID))
			return
		}
		h.internal(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, NewOrderResponse(order))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, errorType string, detail any) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Detail: detail, ErrorType: errorType})
}

// internal отдаёт клиенту обезличенный 500; причина остаётся в логах.
func (h *Handler) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithError(err).WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error("request failed")
	h.fail(w, r, http.StatusInternalServerError, ErrorTypeInternal, "Internal server error")
}
