package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// ClaimPending возвращает снимок неопубликованных записей outbox в порядке вставки.
func (s *Store) ClaimPending(ctx context.Context) ([]domain.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []domain.OutboxEntry
	for _, entry := range s.outbox {
		if entry.PublishedAt != nil {
			continue
		}
		pending = append(pending, cloneOutboxEntry(entry))
	}
	return pending, nil
}

// MarkPublished помечает запись опубликованной.
func (s *Store) MarkPublished(ctx context.Context, id int64, publishedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID == id {
			at := publishedAt
			s.outbox[i].PublishedAt = &at
			return nil
		}
	}
	return domain.ErrOutboxEntryNotFound
}

// RecordFailure увеличивает счётчик попыток записи и фиксирует время неудачи.
func (s *Store) RecordFailure(ctx context.Context, id int64, failedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID == id {
			at := failedAt
			s.outbox[i].RetryCount++
			s.outbox[i].LastRetryAt = &at
			return nil
		}
	}
	return domain.ErrOutboxEntryNotFound
}

// MoveToDLQ атомарно переносит запись из outbox в dead_letter_queue.
func (s *Store) MoveToDLQ(ctx context.Context, id int64, reason string, movedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID != id {
			continue
		}
		entry := s.outbox[i]
		s.dlq = append(s.dlq, domain.DLQEntry{
			ID:                s.nextDLQID,
			OriginalEventType: entry.EventType,
			Payload:           append([]byte(nil), entry.Payload...),
			RetryCount:        entry.RetryCount,
			LastRetryAt:       entry.LastRetryAt,
			FailureReason:     reason,
			MovedToDLQAt:      movedAt,
		})
		s.nextDLQID++
		s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
		return nil
	}
	return domain.ErrOutboxEntryNotFound
}

// List возвращает снимок dead_letter_queue в порядке попадания.
func (s *Store) List(ctx context.Context, limit int) ([]domain.DLQEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.DLQEntry
	for _, entry := range s.dlq {
		entries = append(entries, cloneDLQEntry(entry))
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// Requeue возвращает запись DLQ в outbox со сброшенным счётчиком попыток.
func (s *Store) Requeue(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.dlq {
		if s.dlq[i].ID != id {
			continue
		}
		entry := s.dlq[i]
		s.outbox = append(s.outbox, domain.OutboxEntry{
			ID:        s.nextOutboxID,
			EventType: entry.OriginalEventType,
			Payload:   append([]byte(nil), entry.Payload...),
		})
		s.nextOutboxID++
		s.dlq = append(s.dlq[:i], s.dlq[i+1:]...)
		return nil
	}
	return domain.ErrOutboxEntryNotFound
}

// OrderByID возвращает копию заказа вне транзакции. Хелпер для тестов.
func (s *Store) OrderByID(orderID string) (*domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, false
	}
	return cloneOrder(order), true
}

// StateByID возвращает копию состояния обработки вне транзакции. Хелпер для тестов.
func (s *Store) StateByID(orderID string) (*domain.ProcessingState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[orderID]
	if !ok {
		return nil, false
	}
	return cloneState(state), true
}

// InboxContains сообщает, зафиксирован ли ключ события во входящем журнале.
func (s *Store) InboxContains(eventKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.inbox[eventKey]
	return ok
}

// OutboxEntries возвращает снимок всех записей outbox, включая опубликованные.
func (s *Store) OutboxEntries() []domain.OutboxEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.OutboxEntry, 0, len(s.outbox))
	for _, entry := range s.outbox {
		entries = append(entries, cloneOutboxEntry(entry))
	}
	return entries
}

// DLQEntries возвращает снимок dead_letter_queue.
func (s *Store) DLQEntries() []domain.DLQEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.DLQEntry, 0, len(s.dlq))
	for _, entry := range s.dlq {
		entries = append(entries, cloneDLQEntry(entry))
	}
	return entries
}

func cloneOutboxEntry(entry domain.OutboxEntry) domain.OutboxEntry {
	clone := entry
	clone.Payload = append([]byte(nil), entry.Payload...)
	if entry.PublishedAt != nil {
		at := *entry.PublishedAt
		clone.PublishedAt = &at
	}
	if entry.LastRetryAt != nil {
		at := *entry.LastRetryAt
		clone.LastRetryAt = &at
	}
	return clone
}

func cloneDLQEntry(entry domain.DLQEntry) domain.DLQEntry {
	clone := entry
	clone.Payload = append([]byte(nil), entry.Payload...)
	if entry.LastRetryAt != nil {
		at := *entry.LastRetryAt
		clone.LastRetryAt = &at
	}
	return clone
}

var _ domain.OutboxStore = (*Store)(nil)
var _ domain.DLQStore = (*Store)(nil)
