package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

func TestWorker_ProcessOnce_PublishesAndMarks(t *testing.T) {
	t.Parallel()

	store := &stubOutboxStore{
		pending: []domain.OutboxEntry{
			{ID: 1, EventType: "order.created", Payload: []byte(`{"order_id":"ord-1"}`)},
			{ID: 2, EventType: "order.created", Payload: []byte(`{"order_id":"ord-2"}`)},
		},
	}
	publisher := &stubPublisher{}

	worker := NewWorker(store, publisher)
	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 2 {
		t.Fatalf("expected 2 publish calls, got %d", got)
	}
	if got := len(store.published); got != 2 {
		t.Fatalf("expected 2 published marks, got %d", got)
	}
	if store.published[0] != 1 || store.published[1] != 2 {
		t.Fatalf("expected id-ascending publish order, got %v", store.published)
	}
	if got := len(store.failures); got != 0 {
		t.Fatalf("expected 0 failure records, got %d", got)
	}
}

func TestWorker_ProcessOnce_FailureRecordsRetry(t *testing.T) {
	t.Parallel()

	store := &stubOutboxStore{
		pending: []domain.OutboxEntry{
			{ID: 1, EventType: "order.created", Payload: []byte(`{}`)},
			{ID: 2, EventType: "order.created", Payload: []byte(`{}`)},
		},
	}
	publisher := &stubPublisher{errs: map[int]error{0: errors.New("broker down")}}

	worker := NewWorker(store, publisher)
	worker.ProcessOnce(context.Background())

	if got := len(store.failures); got != 1 {
		t.Fatalf("expected 1 failure record, got %d", got)
	}
	if store.failures[0] != 1 {
		t.Fatalf("expected failure for id 1, got %d", store.failures[0])
	}
	// Отравленная запись не прерывает батч.
	if got := len(store.published); got != 1 {
		t.Fatalf("expected 1 published mark, got %d", got)
	}
	if store.published[0] != 2 {
		t.Fatalf("expected id 2 published, got %d", store.published[0])
	}
}

func TestWorker_ProcessOnce_ExhaustedEntryRetiresToDLQ(t *testing.T) {
	t.Parallel()

	lastRetry := time.Now().Add(-time.Hour)
	store := &stubOutboxStore{
		pending: []domain.OutboxEntry{
			{ID: 7, EventType: "order.created", Payload: []byte(`{}`), RetryCount: 5, LastRetryAt: &lastRetry},
		},
	}
	publisher := &stubPublisher{}

	worker := NewWorker(store, publisher)
	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 0 {
		t.Fatalf("retired entry must never reach the broker, got %d publish calls", got)
	}
	if got := len(store.dlq); got != 1 {
		t.Fatalf("expected 1 dlq move, got %d", got)
	}
	if store.dlq[0].id != 7 {
		t.Fatalf("expected id 7 in dlq, got %d", store.dlq[0].id)
	}
	if store.dlq[0].reason != DLQReason {
		t.Fatalf("expected reason %q, got %q", DLQReason, store.dlq[0].reason)
	}
}

func TestWorker_ProcessOnce_BackoffWindowSkipsEntry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		retryCount  int
		lastRetryAt time.Time
		published   bool
	}{
		{name: "inside window", retryCount: 1, lastRetryAt: now.Add(-2 * time.Second), published: false},
		{name: "window elapsed", retryCount: 1, lastRetryAt: now.Add(-6 * time.Second), published: true},
		{name: "second retry waits longer", retryCount: 2, lastRetryAt: now.Add(-6 * time.Second), published: false},
		{name: "fresh entry has no window", retryCount: 0, lastRetryAt: time.Time{}, published: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			entry := domain.OutboxEntry{ID: 1, EventType: "order.created", Payload: []byte(`{}`), RetryCount: tt.retryCount}
			if !tt.lastRetryAt.IsZero() {
				at := tt.lastRetryAt
				entry.LastRetryAt = &at
			}
			store := &stubOutboxStore{pending: []domain.OutboxEntry{entry}}
			publisher := &stubPublisher{}

			worker := NewWorker(store, publisher, WithClock(func() time.Time { return now }))
			worker.ProcessOnce(context.Background())

			if tt.published && publisher.calls() != 1 {
				t.Fatalf("expected publish attempt, got %d", publisher.calls())
			}
			if !tt.published && publisher.calls() != 0 {
				t.Fatalf("expected entry skipped, got %d publish attempts", publisher.calls())
			}
			// Пропуск по backoff не трогает состояние записи.
			if !tt.published && (len(store.failures) != 0 || len(store.dlq) != 0) {
				t.Fatalf("skipped entry must stay untouched: failures=%v dlq=%v", store.failures, store.dlq)
			}
		})
	}
}

func TestWorker_BackoffDelay(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxStore{}, &stubPublisher{})

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{retryCount: 1, want: 5 * time.Second},
		{retryCount: 2, want: 10 * time.Second},
		{retryCount: 3, want: 20 * time.Second},
		{retryCount: 4, want: 40 * time.Second},
		{retryCount: 10, want: 300 * time.Second},
		{retryCount: 0, want: 0},
	}

	for _, tt := range tests {
		tt := tt
		if got := worker.backoffDelay(tt.retryCount); got != tt.want {
			t.Fatalf("backoffDelay(%d) = %s, want %s", tt.retryCount, got, tt.want)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	for retryCount := 0; retryCount < MaxRetries; retryCount++ {
		if !ShouldRetry(retryCount) {
			t.Fatalf("ShouldRetry(%d) = false, want true", retryCount)
		}
	}
	if ShouldRetry(MaxRetries) {
		t.Fatalf("ShouldRetry(%d) = true, want false", MaxRetries)
	}
	if ShouldRetry(MaxRetries + 1) {
		t.Fatalf("ShouldRetry(%d) = true, want false", MaxRetries+1)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	store := &stubOutboxStore{}
	publisher := &stubPublisher{}
	worker := NewWorker(store, publisher, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

type dlqMove struct {
	id     int64
	reason string
}

type stubOutboxStore struct {
	mu        sync.Mutex
	pending   []domain.OutboxEntry
	published []int64
	failures  []int64
	dlq       []dlqMove
}

func (s *stubOutboxStore) ClaimPending(context.Context) ([]domain.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxEntry(nil), s.pending...), nil
}

func (s *stubOutboxStore) MarkPublished(_ context.Context, id int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, id)
	return nil
}

func (s *stubOutboxStore) RecordFailure(_ context.Context, id int64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, id)
	return nil
}

func (s *stubOutboxStore) MoveToDLQ(_ context.Context, id int64, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dlq = append(s.dlq, dlqMove{id: id, reason: reason})
	return nil
}

type stubPublisher struct {
	mu    sync.Mutex
	count int
	errs  map[int]error
}

func (p *stubPublisher) Publish(context.Context, string, []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.errs[p.count]
	p.count++
	return err
}

func (p *stubPublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
