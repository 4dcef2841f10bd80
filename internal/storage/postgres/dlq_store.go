package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// DLQStore — операторский доступ к dead_letter_queue: просмотр событий,
// исчерпавших повторы, и возврат их в outbox на новый круг публикации.
type DLQStore struct {
	db *sql.DB
}

// NewDLQStore создаёт PostgreSQL-реализацию domain.DLQStore.
func NewDLQStore(store *Store) *DLQStore {
	return &DLQStore{db: store.DB()}
}

// List возвращает записи DLQ в порядке попадания. limit<=0 ограничивается 100.
func (s *DLQStore) List(ctx context.Context, limit int) ([]domain.DLQEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, original_event_type, payload, retry_count, last_retry_at, failure_reason, moved_to_dlq_at
		FROM dead_letter_queue
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select dlq entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.DLQEntry, 0, limit)
	for rows.Next() {
		var (
			entry       domain.DLQEntry
			lastRetryAt sql.NullString
			movedAtRaw  string
		)
		if err := rows.Scan(
			&entry.ID, &entry.OriginalEventType, &entry.Payload,
			&entry.RetryCount, &lastRetryAt, &entry.FailureReason, &movedAtRaw,
		); err != nil {
			return nil, fmt.Errorf("scan dlq entry: %w", err)
		}

		entry.LastRetryAt, err = parseNullableTime(lastRetryAt)
		if err != nil {
			return nil, fmt.Errorf("dlq entry %d: %w", entry.ID, err)
		}
		movedAt, err := time.Parse(time.RFC3339Nano, movedAtRaw)
		if err != nil {
			return nil, fmt.Errorf("dlq entry %d: parse moved_to_dlq_at %q: %w", entry.ID, movedAtRaw, err)
		}
		entry.MovedToDLQAt = movedAt.UTC()

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dlq entries: %w", err)
	}

	return entries, nil
}

// Requeue возвращает событие в outbox с retry_count=0 и удаляет строку DLQ.
// Перенос выполняется одной транзакцией.
func (s *DLQStore) Requeue(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin requeue tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (event_type, payload)
		SELECT original_event_type, payload
		FROM dead_letter_queue
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("requeue dlq entry: %w", err)
	}
	if err := oneRowAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete dlq entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit requeue: %w", err)
	}

	return nil
}

var _ domain.DLQStore = (*DLQStore)(nil)
