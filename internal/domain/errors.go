package domain

import "errors"

var (
	// Валидационные ошибки конструктора заказа. Формулировки уходят клиенту
	// как есть в теле HTTP 400, поэтому менять их нельзя.
	ErrItemsRequired       = errors.New("Order must contain at least one item")
	ErrItemQuantityInvalid = errors.New("Item quantity must be positive")
	ErrItemPriceInvalid    = errors.New("Item price must be positive")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStateNotFound возвращается, если состояние обработки заказа не найдено.
	ErrStateNotFound = errors.New("processing state not found")
	// ErrStaleVersion сигнализирует о событии с версией не новее сохранённой.
	ErrStaleVersion = errors.New("stale event version")
	// ErrOutboxEntryNotFound возвращается, если запись outbox уже удалена или не существует.
	ErrOutboxEntryNotFound = errors.New("outbox entry not found")
)

// IsValidation проверяет, относится ли ошибка к валидации заказа.
func IsValidation(err error) bool {
	return errors.Is(err, ErrItemsRequired) ||
		errors.Is(err, ErrItemQuantityInvalid) ||
		errors.Is(err, ErrItemPriceInvalid)
}

// IsStaleVersion проверяет, является ли ошибка отбрасыванием устаревшей версии.
func IsStaleVersion(err error) bool {
	return errors.Is(err, ErrStaleVersion)
}
