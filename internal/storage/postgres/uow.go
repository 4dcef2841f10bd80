package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// UnitOfWork исполняет прикладной сценарий в одной транзакции PostgreSQL:
// изменение доменного состояния, запись в outbox и отметка inbox фиксируются
// или откатываются только вместе.
type UnitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork создаёт UnitOfWork поверх пула подключений store.
func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{db: store.DB()}
}

// Do открывает транзакцию и передаёт fn транзакционный scope.
// Commit выполняется только при nil-ошибке fn, любая ошибка откатывает
// транзакцию целиком. Scope недействителен за пределами fn.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, scope domain.Scope) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, &txScope{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// txScope выдаёт репозитории, привязанные к одной открытой транзакции.
type txScope struct {
	tx *sql.Tx
}

func (s *txScope) Orders() domain.OrderRepository { return &orderRepository{tx: s.tx} }

func (s *txScope) States() domain.ProcessingStateRepository { return &stateRepository{tx: s.tx} }

func (s *txScope) Inbox() domain.InboxRepository { return &inboxRepository{tx: s.tx} }

func (s *txScope) Outbox() domain.OutboxWriter { return &outboxWriter{tx: s.tx} }

var _ domain.UnitOfWork = (*UnitOfWork)(nil)
var _ domain.Scope = (*txScope)(nil)
