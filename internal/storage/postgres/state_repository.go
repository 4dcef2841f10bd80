package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// stateRepository — доступ к таблице processing_states внутри транзакции scope.
type stateRepository struct {
	tx *sql.Tx
}

func (r *stateRepository) Get(ctx context.Context, orderID string) (*domain.ProcessingState, error) {
	var (
		state     domain.ProcessingState
		status    string
		lastError sql.NullString
	)

	err := r.tx.QueryRowContext(ctx, `
		SELECT order_id, version, status, attempt_count, last_error
		FROM processing_states
		WHERE order_id = $1
	`, orderID).Scan(&state.OrderID, &state.Version, &status, &state.AttemptCount, &lastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrStateNotFound
		}
		return nil, fmt.Errorf("select processing state: %w", err)
	}

	state.Status = domain.ProcessingStatus(status)
	if lastError.Valid {
		state.LastError = &lastError.String
	}

	return &state, nil
}

func (r *stateRepository) Upsert(ctx context.Context, state *domain.ProcessingState) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO processing_states (order_id, version, status, attempt_count, last_error)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id) DO UPDATE SET
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			attempt_count = EXCLUDED.attempt_count,
			last_error = EXCLUDED.last_error
	`, state.OrderID, state.Version, string(state.Status), state.AttemptCount, state.LastError)
	if err != nil {
		return fmt.Errorf("upsert processing state: %w", err)
	}

	return nil
}

var _ domain.ProcessingStateRepository = (*stateRepository)(nil)
