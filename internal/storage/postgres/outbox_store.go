package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// OutboxStore — доступ publisher-воркера к таблице outbox вне пользовательских
// scope. Каждая операция идёт в собственной короткой транзакции, поэтому сбой
// публикации одной записи не трогает остальные.
type OutboxStore struct {
	db *sql.DB
}

// NewOutboxStore создаёт PostgreSQL-реализацию domain.OutboxStore.
func NewOutboxStore(store *Store) *OutboxStore {
	return &OutboxStore{db: store.DB()}
}

// ClaimPending возвращает снимок неопубликованных записей в порядке
// возрастания id. FOR UPDATE SKIP LOCKED не даёт конкурирующим воркерам
// столкнуться на строках, которые прямо сейчас помечаются или переносятся.
// Блокировки живут только до commit снимка и не покрывают публикацию:
// два воркера, снявшие снимок в разные моменты, могут отправить одну
// запись дважды — дубль гасится inbox-ом получателя.
func (s *OutboxStore) ClaimPending(ctx context.Context) ([]domain.OutboxEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_type, payload, retry_count, last_retry_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY id
		FOR UPDATE SKIP LOCKED
	`)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.OutboxEntry, 0)
	for rows.Next() {
		var (
			entry       domain.OutboxEntry
			lastRetryAt sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.EventType, &entry.Payload, &entry.RetryCount, &lastRetryAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entry.LastRetryAt, err = parseNullableTime(lastRetryAt)
		if err != nil {
			return nil, fmt.Errorf("outbox entry %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	return entries, nil
}

// MarkPublished помечает запись опубликованной.
func (s *OutboxStore) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET published_at = $2
		WHERE id = $1
	`, id, formatTime(at))
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}

	return oneRowAffected(res)
}

// RecordFailure инкрементирует retry_count и фиксирует время неудачной попытки.
func (s *OutboxStore) RecordFailure(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1,
		    last_retry_at = $2
		WHERE id = $1
	`, id, formatTime(at))
	if err != nil {
		return fmt.Errorf("record outbox failure: %w", err)
	}

	return oneRowAffected(res)
}

// MoveToDLQ переносит запись из outbox в dead_letter_queue одной транзакцией.
func (s *OutboxStore) MoveToDLQ(ctx context.Context, id int64, reason string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dlq tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dead_letter_queue (
			original_event_type, payload, retry_count, last_retry_at, failure_reason, moved_to_dlq_at
		)
		SELECT event_type, payload, retry_count, last_retry_at, $2, $3
		FROM outbox
		WHERE id = $1
	`, id, reason, formatTime(at))
	if err != nil {
		return fmt.Errorf("copy outbox entry to dlq: %w", err)
	}
	if err := oneRowAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dlq move: %w", err)
	}

	return nil
}

// Временные метки outbox/DLQ хранятся строками RFC 3339 в UTC.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	t = t.UTC()
	return &t, nil
}

func oneRowAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOutboxEntryNotFound
	}
	return nil
}

var _ domain.OutboxStore = (*OutboxStore)(nil)
