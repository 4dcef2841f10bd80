package outbox

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

const (
	// MaxRetries — бюджет попыток публикации; после него событие уходит в DLQ.
	MaxRetries = 5
	// DLQReason записывается в failure_reason при переносе в dead_letter_queue.
	DLQReason = "Max retries (5) exceeded"

	defaultPollInterval   = 5 * time.Second
	defaultInitialBackoff = 5 * time.Second
	defaultMaxBackoff     = 300 * time.Second
)

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderpipe_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orderpipe_outbox_pending_records",
		Help: "Number of pending records seen by the last publisher cycle.",
	})
	outboxMovedToDLQ = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderpipe_outbox_moved_to_dlq_total",
		Help: "Total number of outbox records retired to the dead letter queue.",
	})
)

// WorkerOptions задаёт параметры publisher-воркера.
type WorkerOptions struct {
	Logger         *log.Entry
	PollInterval   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Now            func() time.Time
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBackoff задаёт базовую и максимальную задержку между попытками.
func WithBackoff(initial, max time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.InitialBackoff = initial
		opts.MaxBackoff = max
	}
}

// WithClock подменяет источник времени. Нужен детерминированным тестам
// окна backoff.
func WithClock(now func() time.Time) Option {
	return func(opts *WorkerOptions) {
		opts.Now = now
	}
}

// Worker публикует pending-события из outbox в брокер. Состояние повторов
// живёт в самих строках outbox (retry_count, last_retry_at), поэтому backoff
// переживает рестарт процесса. Сбой публикации одной записи никогда не
// прерывает остальной батч.
type Worker struct {
	store          domain.OutboxStore
	publisher      domain.EventPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// NewWorker создаёт publisher-воркер поверх store и publisher.
func NewWorker(store domain.OutboxStore, publisher domain.EventPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Worker{
		store:          store,
		publisher:      publisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		now:            opts.Now,
	}
}

// Run запускает периодический polling outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.store == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: store or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.closePublisher()
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл: снимок pending-записей, затем
// для каждой — ретирование в DLQ, пропуск по окну backoff или публикация.
// Соединение с брокером амортизируется на весь батч и закрывается в конце цикла.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer w.closePublisher()

	entries, err := w.store.ClaimPending(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to claim pending outbox entries")
		return
	}

	outboxPendingRecords.Set(float64(len(entries)))
	if len(entries) == 0 {
		return
	}

	published := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if w.processEntry(ctx, entry) {
			published++
		}
	}

	if published > 0 {
		w.logger.WithField("published", published).Info("outbox cycle finished")
	}
}

func (w *Worker) processEntry(ctx context.Context, entry domain.OutboxEntry) bool {
	entryLogger := w.logger.WithFields(log.Fields{
		"outbox_id":   entry.ID,
		"event_type":  entry.EventType,
		"retry_count": entry.RetryCount,
	})

	now := w.now()

	if !ShouldRetry(entry.RetryCount) {
		if err := w.store.MoveToDLQ(ctx, entry.ID, DLQReason, now); err != nil {
			entryLogger.WithError(err).Warn("failed to move outbox entry to dlq")
			return false
		}
		outboxMovedToDLQ.Inc()
		entryLogger.Warn("outbox entry retired to dlq")
		return false
	}

	if w.withinBackoffWindow(entry, now) {
		return false
	}

	if err := w.publisher.Publish(ctx, entry.EventType, entry.Payload); err != nil {
		outboxPublishAttempts.WithLabelValues("failed").Inc()
		entryLogger.WithError(err).Warn("outbox publish failed")
		if recordErr := w.store.RecordFailure(ctx, entry.ID, w.now()); recordErr != nil {
			entryLogger.WithError(recordErr).Warn("failed to record outbox failure")
		}
		return false
	}

	if err := w.store.MarkPublished(ctx, entry.ID, w.now()); err != nil {
		// Событие ушло в брокер, но осталось pending: следующий цикл
		// опубликует дубликат, его поглотит inbox получателя.
		entryLogger.WithError(err).Warn("failed to mark outbox entry published")
		return false
	}

	outboxPublishAttempts.WithLabelValues("published").Inc()
	entryLogger.Debug("outbox entry published")
	return true
}

// withinBackoffWindow сообщает, рано ли повторять публикацию записи.
func (w *Worker) withinBackoffWindow(entry domain.OutboxEntry, now time.Time) bool {
	if entry.RetryCount == 0 || entry.LastRetryAt == nil {
		return false
	}
	return now.Sub(*entry.LastRetryAt) < w.backoffDelay(entry.RetryCount)
}

// backoffDelay считает задержку min(initial·2^(retryCount−1), max).
func (w *Worker) backoffDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}

	delay := w.initialBackoff
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= w.maxBackoff {
			return w.maxBackoff
		}
	}
	if delay > w.maxBackoff {
		return w.maxBackoff
	}
	return delay
}

// ShouldRetry сообщает, остались ли у записи попытки публикации.
func ShouldRetry(retryCount int) bool {
	return retryCount < MaxRetries
}

func (w *Worker) closePublisher() {
	closer, ok := w.publisher.(interface{ Close() error })
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		w.logger.WithError(err).Debug("failed to close publisher connection")
	}
}
