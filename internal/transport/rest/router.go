package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter собирает маршруты HTTP API сервиса заказов.
func NewRouter(handler *Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/health", handler.Health)
	router.Post("/orders", handler.CreateOrder)
	router.Get("/orders/{orderID}", handler.GetOrder)

	return router
}

// NewHealthRouter собирает маршруты процесса без публичного API:
// только GET /health.
func NewHealthRouter(handler *Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/health", handler.Health)

	return router
}
