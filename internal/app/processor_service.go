package app

import (
	"context"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderpipe/internal/health"
	"github.com/vladislavdragonenkov/orderpipe/internal/messaging/rabbit"
	"github.com/vladislavdragonenkov/orderpipe/internal/metrics"
	"github.com/vladislavdragonenkov/orderpipe/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderpipe/internal/service/processing"
	"github.com/vladislavdragonenkov/orderpipe/internal/storage/postgres"
	"github.com/vladislavdragonenkov/orderpipe/internal/transport/rest"
	"github.com/vladislavdragonenkov/orderpipe/internal/version"
)

// RunProcessorService поднимает сервис-процессор: consumer событий
// order.created, publisher-воркер outbox и health-эндпоинт.
// Блокируется до отмены ctx.
func RunProcessorService(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "processor-service")
	logger.Info(version.String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := postgres.Open(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	uow := postgres.NewUnitOfWork(store)
	pipeline := metrics.NewPipeline()

	handleCreated := processing.NewHandleOrderCreatedUseCase(
		uow, nil, logger.WithField("use_case", "handle-order-created"), pipeline,
	)

	handler := rest.NewHandler(cfg.ServiceName, nil, nil, logger.WithField("layer", "rest"))
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: rest.NewHealthRouter(handler)}

	publisher := rabbit.NewPublisher(cfg.RabbitURL, logger.WithField("layer", "rabbit"))
	worker := outbox.NewWorker(
		postgres.NewOutboxStore(store),
		publisher,
		outbox.WithLogger(logger.WithField("layer", "outbox")),
	)

	consumerLogger := logger.WithField("layer", "consumer")
	consumer := rabbit.NewConsumer(
		cfg.RabbitURL,
		cfg.ServiceName,
		domain.EventTypeOrderCreated,
		orderCreatedHandler(handleCreated, consumerLogger),
		rabbit.WithConsumerLogger(consumerLogger),
	)

	healthHandler := healthcheck.NewHandler(version.String())
	healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
		return store.Ping(context.Background())
	}))
	healthHandler.RegisterChecker("rabbitmq", healthcheck.NewSimpleChecker("rabbitmq", func() error {
		return rabbit.Ping(cfg.RabbitURL)
	}))
	opsSrv := startOpsServer(ctx, cfg.OpsAddr, logger, healthHandler)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("health HTTP слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	return awaitShutdown(ctx, cancel, logger, apiSrv, opsSrv, &wg, errCh)
}

// orderCreatedHandler переводит доставку order.created в команду use case-а.
// Неразбираемое сообщение подтверждается после warn.
func orderCreatedHandler(useCase *processing.HandleOrderCreatedUseCase, logger *log.Entry) rabbit.DeliveryHandler {
	if logger == nil {
		logger = log.WithField("layer", "consumer")
	}
	return func(ctx context.Context, body []byte) error {
		event, err := rabbit.DecodeOrderCreated(body)
		if err != nil {
			logger.WithError(err).Warn("dropping malformed order.created message")
			return nil
		}

		return useCase.Execute(ctx, processing.HandleOrderCreatedCommand{
			OrderID: event.OrderID,
			Items:   rabbit.ItemSKUs(event.Items),
			Amount:  event.Amount,
			Version: event.Version,
		})
	}
}
