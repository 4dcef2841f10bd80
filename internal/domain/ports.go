package domain

import (
	"context"
	"time"
)

// OrderRepository — хранилище заказов внутри транзакционного scope.
type OrderRepository interface {
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, orderID string) (*Order, error)
	// Put вставляет новый заказ или полностью перезаписывает существующий
	// (status, version, items, total_amount, fail_reason) по order_id.
	Put(ctx context.Context, order *Order) error
}

// ProcessingStateRepository — хранилище состояний обработки processor-сервиса.
type ProcessingStateRepository interface {
	// Get возвращает состояние или ErrStateNotFound.
	Get(ctx context.Context, orderID string) (*ProcessingState, error)
	Upsert(ctx context.Context, state *ProcessingState) error
}

// InboxRepository хранит ключи уже применённых событий.
type InboxRepository interface {
	Exists(ctx context.Context, eventKey string) (bool, error)
	// Add идемпотентен: повторная вставка существующего ключа — no-op.
	Add(ctx context.Context, eventKey string) error
}

// OutboxWriter добавляет события в transactional outbox внутри scope.
type OutboxWriter interface {
	// Put сохраняет событие с published_at=NULL и retry_count=0.
	Put(ctx context.Context, eventType string, payload []byte) error
}

// Scope объединяет репозитории, доступные внутри одной транзакции.
type Scope interface {
	Orders() OrderRepository
	States() ProcessingStateRepository
	Inbox() InboxRepository
	Outbox() OutboxWriter
}

// UnitOfWork выполняет fn в рамках одной транзакции: commit при nil-ошибке,
// rollback в любом другом случае. Scope действителен только внутри fn.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, scope Scope) error) error
}

// OutboxEntry — строка transactional outbox.
type OutboxEntry struct {
	ID          int64
	EventType   string
	Payload     []byte
	PublishedAt *time.Time
	RetryCount  int
	LastRetryAt *time.Time
}

// DLQEntry — событие, исчерпавшее бюджет повторов публикации.
type DLQEntry struct {
	ID                int64
	OriginalEventType string
	Payload           []byte
	RetryCount        int
	LastRetryAt       *time.Time
	FailureReason     string
	MovedToDLQAt      time.Time
}

// OutboxStore — доступ publisher-воркера к outbox вне пользовательских scope.
// Каждая операция выполняется в собственной короткой транзакции.
type OutboxStore interface {
	// ClaimPending возвращает все неопубликованные записи в порядке возрастания id.
	ClaimPending(ctx context.Context) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, id int64, at time.Time) error
	// RecordFailure инкрементирует retry_count и ставит отметку времени попытки.
	RecordFailure(ctx context.Context, id int64, at time.Time) error
	// MoveToDLQ атомарно переносит запись в dead_letter_queue и удаляет её из outbox.
	MoveToDLQ(ctx context.Context, id int64, reason string, at time.Time) error
}

// DLQStore — операции над dead_letter_queue для операторских инструментов.
type DLQStore interface {
	List(ctx context.Context, limit int) ([]DLQEntry, error)
	// Requeue возвращает событие в outbox с retry_count=0 и удаляет строку DLQ.
	Requeue(ctx context.Context, id int64) error
}

// EventPublisher публикует событие в брокер с routing key = eventType.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte) error
}
