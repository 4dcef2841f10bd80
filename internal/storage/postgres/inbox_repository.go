package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// inboxRepository — доступ к таблице processed_inbox внутри транзакции scope.
// Ключ события фиксируется в той же транзакции, что и применённый эффект,
// поэтому повторная доставка события не применяется второй раз.
type inboxRepository struct {
	tx *sql.Tx
}

func (r *inboxRepository) Exists(ctx context.Context, eventKey string) (bool, error) {
	var exists bool
	err := r.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_inbox WHERE event_key = $1)
	`, eventKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check inbox key: %w", err)
	}
	return exists, nil
}

func (r *inboxRepository) Add(ctx context.Context, eventKey string) error {
	// ON CONFLICT DO NOTHING: повторная вставка не должна отравить транзакцию.
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO processed_inbox (event_key)
		VALUES ($1)
		ON CONFLICT (event_key) DO NOTHING
	`, eventKey)
	if err != nil {
		return fmt.Errorf("insert inbox key: %w", err)
	}
	return nil
}

var _ domain.InboxRepository = (*inboxRepository)(nil)
