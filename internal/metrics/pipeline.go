package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline содержит метрики сквозного конвейера заказов: приём по HTTP,
// публикация событий и применение результатов обработки.
type Pipeline struct {
	ordersCreated   prometheus.Counter
	ordersProcessed *prometheus.CounterVec
	eventsApplied   *prometheus.CounterVec
	eventsIgnored   prometheus.Counter
}

// NewPipeline создаёт метрики в default-регистре Prometheus.
func NewPipeline() *Pipeline {
	return newPipelineWithRegisterer(prometheus.DefaultRegisterer)
}

func newPipelineWithRegisterer(registerer prometheus.Registerer) *Pipeline {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Pipeline{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderpipe_orders_created_total",
			Help: "Total number of orders accepted and persisted",
		}),
		ordersProcessed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderpipe_orders_processed_total",
			Help: "Total number of order.created events decided by the processor",
		}, []string{"status"}),
		eventsApplied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderpipe_events_applied_total",
			Help: "Total number of order.processed events applied to orders",
		}, []string{"status"}),
		eventsIgnored: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderpipe_events_ignored_total",
			Help: "Total number of duplicate or stale events dropped by consumers",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик принятых заказов.
func (m *Pipeline) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordOrderProcessed увеличивает счётчик решений процессора по статусу результата.
func (m *Pipeline) RecordOrderProcessed(status string) {
	if m == nil {
		return
	}
	m.ordersProcessed.WithLabelValues(status).Inc()
}

// RecordEventApplied увеличивает счётчик применённых событий order.processed.
func (m *Pipeline) RecordEventApplied(status string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(status).Inc()
}

// RecordEventIgnored увеличивает счётчик отброшенных дублей и устаревших событий.
func (m *Pipeline) RecordEventIgnored() {
	if m == nil {
		return
	}
	m.eventsIgnored.Inc()
}
