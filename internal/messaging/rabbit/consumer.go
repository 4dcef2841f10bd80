package rabbit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPrefetch       = 10
	defaultReconnectDelay = 5 * time.Second
)

// DeliveryHandler обрабатывает тело одного сообщения. nil подтверждает
// доставку; ошибка оставляет сообщение неподтверждённым, consumer рвёт
// соединение и брокер доставит сообщение повторно после переподключения.
// Неразбираемые (poison) сообщения handler должен глотать с warn и nil:
// повторная доставка не чинит ошибку парсинга.
type DeliveryHandler func(ctx context.Context, body []byte) error

// ConsumerOptions задаёт параметры consumer-воркера.
type ConsumerOptions struct {
	Logger         *log.Entry
	Prefetch       int
	ReconnectDelay time.Duration
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*ConsumerOptions)

// WithConsumerLogger задаёт logger для consumer-а.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.Logger = logger
	}
}

// WithPrefetch задаёт окно неподтверждённых доставок.
func WithPrefetch(prefetch int) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.Prefetch = prefetch
	}
}

// WithReconnectDelay задаёт паузу перед переподключением к брокеру.
func WithReconnectDelay(delay time.Duration) ConsumerOption {
	return func(opts *ConsumerOptions) {
		opts.ReconnectDelay = delay
	}
}

// Consumer читает сообщения durable-очереди, привязанной к exchange orders
// по одному routing key. Переживает рестарты брокера: любая ошибка канала
// приводит к переподключению через reconnectDelay.
type Consumer struct {
	url            string
	queue          string
	routingKey     string
	handler        DeliveryHandler
	logger         *log.Entry
	prefetch       int
	reconnectDelay time.Duration
}

// NewConsumer создаёт consumer очереди "<service>.<routingKey>".
func NewConsumer(url, service, routingKey string, handler DeliveryHandler, options ...ConsumerOption) *Consumer {
	opts := ConsumerOptions{
		Prefetch:       defaultPrefetch,
		ReconnectDelay: defaultReconnectDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "rabbit-consumer")
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = defaultPrefetch
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}

	return &Consumer{
		url:            url,
		queue:          QueueName(service, routingKey),
		routingKey:     routingKey,
		handler:        handler,
		logger:         logger.WithField("queue", QueueName(service, routingKey)),
		prefetch:       opts.Prefetch,
		reconnectDelay: opts.ReconnectDelay,
	}
}

// QueueName строит имя durable-очереди сервиса для routing key.
func QueueName(service, routingKey string) string {
	return service + "." + routingKey
}

// Run потребляет сообщения до отмены ctx, переподключаясь после любых
// ошибок брокера.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if err := c.consume(ctx); err != nil {
			c.logger.WithError(err).Warn("consumer session ended, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

// consume держит одну сессию: dial, объявление топологии, цикл доставок.
// Возврат с ошибкой означает обрыв сессии; неподтверждённые доставки брокер
// вернёт в очередь.
func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() {
		_ = ch.Close()
	}()

	if err := ch.ExchangeDeclare(ExchangeName, exchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}

	queue, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	if err := ch.QueueBind(queue.Name, c.routingKey, ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue.Name, c.routingKey, err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	consumerTag := c.queue + "-" + uuid.NewString()
	deliveries, err := ch.Consume(queue.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	c.logger.Info("consumer started, waiting for messages")

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handler(ctx, delivery.Body); err != nil {
				// Сообщение остаётся неподтверждённым; закрытие
				// соединения вернёт его в очередь на повторную доставку.
				return fmt.Errorf("handle delivery: %w", err)
			}
			if err := delivery.Ack(false); err != nil {
				return fmt.Errorf("ack delivery: %w", err)
			}
		}
	}
}
