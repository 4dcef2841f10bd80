package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	"github.com/vladislavdragonenkov/orderpipe/internal/service/orders"
	"github.com/vladislavdragonenkov/orderpipe/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderpipe/internal/service/processing"
	"github.com/vladislavdragonenkov/orderpipe/internal/storage/memory"
)

// recordingPublisher собирает публикации вместо брокера и по желанию
// отклоняет все попытки.
type recordingPublisher struct {
	mu        sync.Mutex
	published []publishedEvent
	failAll   bool
}

type publishedEvent struct {
	eventType string
	payload   []byte
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		return errBrokerDown
	}
	p.published = append(p.published, publishedEvent{
		eventType: eventType,
		payload:   append([]byte(nil), payload...),
	})
	return nil
}

func (p *recordingPublisher) events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.published...)
}

var errBrokerDown = errors.New("broker unavailable")

// PipelineTestSuite прогоняет полный цикл: создание заказа, публикация
// через outbox, обработка процессором и применение результата.
type PipelineTestSuite struct {
	suite.Suite

	orderStore *memory.Store
	procStore  *memory.Store

	createOrder    *orders.CreateOrderUseCase
	applyProcessed *orders.ApplyProcessedUseCase
	handleCreated  *processing.HandleOrderCreatedUseCase
}

func (s *PipelineTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "integration-test")

	s.orderStore = memory.NewStore()
	s.procStore = memory.NewStore()

	s.createOrder = orders.NewCreateOrderUseCase(s.orderStore, logger, nil)
	s.applyProcessed = orders.NewApplyProcessedUseCase(s.orderStore, logger, nil)
	s.handleCreated = processing.NewHandleOrderCreatedUseCase(
		s.procStore, func() float64 { return 0.5 }, logger, nil,
	)
}

// deliverCreatedEvents прогоняет publisher-воркер сервиса заказов и отдаёт
// каждое опубликованное событие order.created процессору.
func (s *PipelineTestSuite) deliverCreatedEvents(ctx context.Context) {
	publisher := &recordingPublisher{}
	worker := outbox.NewWorker(s.orderStore, publisher)
	worker.ProcessOnce(ctx)

	for _, event := range publisher.events() {
		s.Require().Equal(domain.EventTypeOrderCreated, event.eventType)

		var created domain.OrderCreatedEvent
		s.Require().NoError(json.Unmarshal(event.payload, &created))

		skus := make([]string, 0, len(created.Items))
		for _, item := range created.Items {
			skus = append(skus, item.SKU)
		}
		s.Require().NoError(s.handleCreated.Execute(ctx, processing.HandleOrderCreatedCommand{
			OrderID: created.OrderID,
			Items:   skus,
			Amount:  created.Amount,
			Version: created.Version,
		}))
	}
}

// collectProcessedEvents прогоняет publisher-воркер процессора и возвращает
// опубликованные события order.processed.
func (s *PipelineTestSuite) collectProcessedEvents(ctx context.Context) []domain.OrderProcessedEvent {
	publisher := &recordingPublisher{}
	worker := outbox.NewWorker(s.procStore, publisher)
	worker.ProcessOnce(ctx)

	events := make([]domain.OrderProcessedEvent, 0)
	for _, event := range publisher.events() {
		s.Require().Equal(domain.EventTypeOrderProcessed, event.eventType)

		var processed domain.OrderProcessedEvent
		s.Require().NoError(json.Unmarshal(event.payload, &processed))
		events = append(events, processed)
	}
	return events
}

func (s *PipelineTestSuite) createTestOrder(ctx context.Context, orderID string, items []domain.ItemLine) *domain.Order {
	order, err := s.createOrder.Execute(ctx, orders.CreateOrderCommand{
		OrderID:    orderID,
		CustomerID: "cust-1",
		Items:      items,
	})
	s.Require().NoError(err)
	return order
}

func (s *PipelineTestSuite) TestCreateOrderComputesTotal() {
	ctx := context.Background()

	order := s.createTestOrder(ctx, "ord-123", []domain.ItemLine{
		{SKU: "widget", Quantity: 5, Price: 100},
		{SKU: "gadget", Quantity: 3, Price: 250},
	})

	s.Require().InDelta(1250.0, order.TotalAmount, 0.001)
	s.Require().Equal(domain.OrderStatusPending, order.Status)
	s.Require().Equal(1, order.Version)

	entries := s.orderStore.OutboxEntries()
	s.Require().Len(entries, 1)
	s.Require().Equal(domain.EventTypeOrderCreated, entries[0].EventType)
}

func (s *PipelineTestSuite) TestRepeatedCreateIsIdempotent() {
	ctx := context.Background()
	items := []domain.ItemLine{{SKU: "widget", Quantity: 1, Price: 10}}

	first := s.createTestOrder(ctx, "ord-1", items)
	second := s.createTestOrder(ctx, "ord-1", items)

	s.Require().Equal(first.Version, second.Version)
	s.Require().Len(s.orderStore.OutboxEntries(), 1)
}

func (s *PipelineTestSuite) TestEndToEndSuccess() {
	ctx := context.Background()
	s.createTestOrder(ctx, "ord-1", []domain.ItemLine{{SKU: "widget", Quantity: 1, Price: 10}})

	s.deliverCreatedEvents(ctx)

	state, ok := s.procStore.StateByID("ord-1")
	s.Require().True(ok)
	s.Require().Equal(domain.ProcessingStatusDone, state.Status)

	events := s.collectProcessedEvents(ctx)
	s.Require().Len(events, 1)
	s.Require().Equal(domain.ResultSuccess, events[0].Status)
	s.Require().Nil(events[0].Reason)

	s.Require().NoError(s.applyProcessed.Execute(ctx, orders.ApplyProcessedCommand{
		OrderID: events[0].OrderID,
		Status:  events[0].Status,
		Reason:  events[0].Reason,
		Version: 2,
	}))

	order, ok := s.orderStore.OrderByID("ord-1")
	s.Require().True(ok)
	s.Require().Equal(domain.OrderStatusDone, order.Status)
	s.Require().Equal(2, order.Version)
}

func (s *PipelineTestSuite) TestEmbargoItemFailsOrder() {
	ctx := context.Background()
	s.createTestOrder(ctx, "ord-1", []domain.ItemLine{{SKU: "teapot", Quantity: 1, Price: 10}})

	s.deliverCreatedEvents(ctx)

	events := s.collectProcessedEvents(ctx)
	s.Require().Len(events, 1)
	s.Require().Equal(domain.ResultFailed, events[0].Status)
	s.Require().NotNil(events[0].Reason)
	s.Require().Equal(domain.ReasonEmbargo, *events[0].Reason)

	s.Require().NoError(s.applyProcessed.Execute(ctx, orders.ApplyProcessedCommand{
		OrderID: events[0].OrderID,
		Status:  events[0].Status,
		Reason:  events[0].Reason,
		Version: 2,
	}))

	order, ok := s.orderStore.OrderByID("ord-1")
	s.Require().True(ok)
	s.Require().Equal(domain.OrderStatusFailed, order.Status)
	s.Require().NotNil(order.FailReason)
	s.Require().Equal(domain.ReasonEmbargo, *order.FailReason)
}

func (s *PipelineTestSuite) TestDuplicateDeliveryToProcessorIsNoop() {
	ctx := context.Background()
	s.createTestOrder(ctx, "ord-1", []domain.ItemLine{{SKU: "widget", Quantity: 1, Price: 10}})

	cmd := processing.HandleOrderCreatedCommand{
		OrderID: "ord-1", Items: []string{"widget"}, Amount: 10, Version: 1,
	}
	s.Require().NoError(s.handleCreated.Execute(ctx, cmd))
	s.Require().NoError(s.handleCreated.Execute(ctx, cmd))

	state, _ := s.procStore.StateByID("ord-1")
	s.Require().Equal(1, state.AttemptCount)
	s.Require().Len(s.procStore.OutboxEntries(), 1)
}

func (s *PipelineTestSuite) TestStaleProcessedEventIsDropped() {
	ctx := context.Background()
	s.createTestOrder(ctx, "ord-1", []domain.ItemLine{{SKU: "widget", Quantity: 1, Price: 10}})

	s.Require().NoError(s.applyProcessed.Execute(ctx, orders.ApplyProcessedCommand{
		OrderID: "ord-1",
		Status:  domain.ResultSuccess,
		Version: 1,
	}))

	order, _ := s.orderStore.OrderByID("ord-1")
	s.Require().Equal(domain.OrderStatusPending, order.Status)
	s.Require().False(s.orderStore.InboxContains("order.processed:ord-1:1"))
}

func (s *PipelineTestSuite) TestBrokerOutageRetiresEventToDLQ() {
	ctx := context.Background()
	s.createTestOrder(ctx, "ord-1", []domain.ItemLine{{SKU: "widget", Quantity: 1, Price: 10}})

	now := time.Now().UTC()
	clock := func() time.Time { return now }
	publisher := &recordingPublisher{failAll: true}
	worker := outbox.NewWorker(s.orderStore, publisher, outbox.WithClock(clock))

	// Каждый цикл сдвигаем время за пределы максимального backoff.
	for i := 0; i <= outbox.MaxRetries; i++ {
		worker.ProcessOnce(ctx)
		now = now.Add(301 * time.Second)
	}

	s.Require().Empty(s.orderStore.OutboxEntries())

	dlq := s.orderStore.DLQEntries()
	s.Require().Len(dlq, 1)
	s.Require().Equal(domain.EventTypeOrderCreated, dlq[0].OriginalEventType)
	s.Require().Equal(outbox.MaxRetries, dlq[0].RetryCount)
	s.Require().Equal(outbox.DLQReason, dlq[0].FailureReason)

	// Возврат из DLQ снова делает событие доступным воркеру.
	s.Require().NoError(s.orderStore.Requeue(ctx, dlq[0].ID))
	s.Require().Empty(s.orderStore.DLQEntries())

	entries := s.orderStore.OutboxEntries()
	s.Require().Len(entries, 1)
	s.Require().Zero(entries[0].RetryCount)

	publisher.failAll = false
	worker.ProcessOnce(ctx)

	entries = s.orderStore.OutboxEntries()
	require.Len(s.T(), entries, 1)
	s.Require().NotNil(entries[0].PublishedAt)

	events := publisher.events()
	require.Len(s.T(), events, 1)
	s.Require().Equal(domain.EventTypeOrderCreated, events[0].eventType)
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}
