package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

// Store — in-memory реализация хранилища пайплайна для локальной разработки
// и тестов. Все таблицы живут под одним мьютексом; транзакция (Do)
// сериализуется целиком, её записи буферизуются и применяются на commit.
type Store struct {
	mu           sync.RWMutex
	orders       map[string]domain.Order
	states       map[string]domain.ProcessingState
	inbox        map[string]struct{}
	outbox       []domain.OutboxEntry
	dlq          []domain.DLQEntry
	nextOutboxID int64
	nextDLQID    int64
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		orders:       make(map[string]domain.Order),
		states:       make(map[string]domain.ProcessingState),
		inbox:        make(map[string]struct{}),
		nextOutboxID: 1,
		nextDLQID:    1,
	}
}

// staging буферизует записи незавершённой транзакции.
type staging struct {
	orders map[string]domain.Order
	states map[string]domain.ProcessingState
	inbox  map[string]struct{}
	outbox []domain.OutboxEntry
}

func newStaging() *staging {
	return &staging{
		orders: make(map[string]domain.Order),
		states: make(map[string]domain.ProcessingState),
		inbox:  make(map[string]struct{}),
	}
}

// Do выполняет fn в рамках одной «транзакции»: при nil-ошибке буфер
// применяется к хранилищу, при любой другой — отбрасывается целиком.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, scope domain.Scope) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sc := &scope{store: s, pending: newStaging()}
	if err := fn(ctx, sc); err != nil {
		return err
	}

	for id, order := range sc.pending.orders {
		s.orders[id] = order
	}
	for id, state := range sc.pending.states {
		s.states[id] = state
	}
	for key := range sc.pending.inbox {
		s.inbox[key] = struct{}{}
	}
	s.outbox = append(s.outbox, sc.pending.outbox...)

	return nil
}

type scope struct {
	store   *Store
	pending *staging
}

func (s *scope) Orders() domain.OrderRepository { return &orderRepository{s} }

func (s *scope) States() domain.ProcessingStateRepository { return &stateRepository{s} }

func (s *scope) Inbox() domain.InboxRepository { return &inboxRepository{s} }

func (s *scope) Outbox() domain.OutboxWriter { return &outboxWriter{s} }

type orderRepository struct {
	scope *scope
}

func (r *orderRepository) Get(_ context.Context, orderID string) (*domain.Order, error) {
	if order, ok := r.scope.pending.orders[orderID]; ok {
		return cloneOrder(order), nil
	}
	order, ok := r.scope.store.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (r *orderRepository) Put(_ context.Context, order *domain.Order) error {
	r.scope.pending.orders[order.OrderID] = *cloneOrder(*order)
	return nil
}

type stateRepository struct {
	scope *scope
}

func (r *stateRepository) Get(_ context.Context, orderID string) (*domain.ProcessingState, error) {
	if state, ok := r.scope.pending.states[orderID]; ok {
		return cloneState(state), nil
	}
	state, ok := r.scope.store.states[orderID]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return cloneState(state), nil
}

func (r *stateRepository) Upsert(_ context.Context, state *domain.ProcessingState) error {
	r.scope.pending.states[state.OrderID] = *cloneState(*state)
	return nil
}

type inboxRepository struct {
	scope *scope
}

func (r *inboxRepository) Exists(_ context.Context, eventKey string) (bool, error) {
	if _, ok := r.scope.pending.inbox[eventKey]; ok {
		return true, nil
	}
	_, ok := r.scope.store.inbox[eventKey]
	return ok, nil
}

func (r *inboxRepository) Add(_ context.Context, eventKey string) error {
	// Повторная вставка существующего ключа — no-op, как ON CONFLICT DO NOTHING.
	r.scope.pending.inbox[eventKey] = struct{}{}
	return nil
}

type outboxWriter struct {
	scope *scope
}

func (w *outboxWriter) Put(_ context.Context, eventType string, payload []byte) error {
	entry := domain.OutboxEntry{
		ID:        w.scope.store.nextOutboxID,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
	}
	w.scope.store.nextOutboxID++
	w.scope.pending.outbox = append(w.scope.pending.outbox, entry)
	return nil
}

func cloneOrder(order domain.Order) *domain.Order {
	clone := order
	clone.Items = append([]domain.ItemLine(nil), order.Items...)
	if order.FailReason != nil {
		reason := *order.FailReason
		clone.FailReason = &reason
	}
	return &clone
}

func cloneState(state domain.ProcessingState) *domain.ProcessingState {
	clone := state
	if state.LastError != nil {
		lastErr := *state.LastError
		clone.LastError = &lastErr
	}
	return &clone
}

var _ domain.UnitOfWork = (*Store)(nil)
var _ domain.Scope = (*scope)(nil)
