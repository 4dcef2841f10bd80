package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// outboxWriter кладёт события в outbox в той же транзакции, что и изменение
// доменного состояния: либо фиксируются оба, либо ни одно.
type outboxWriter struct {
	tx *sql.Tx
}

func (w *outboxWriter) Put(ctx context.Context, eventType string, payload []byte) error {
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO outbox (event_type, payload)
		VALUES ($1, $2)
	`, eventType, payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

var _ domain.OutboxWriter = (*outboxWriter)(nil)
