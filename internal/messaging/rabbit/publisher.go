package rabbit

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderpipe/internal/domain"
)

const (
	// ExchangeName — единственный topic-exchange пайплайна; routing key
	// сообщения совпадает с типом события.
	ExchangeName = "orders"

	exchangeKind = "topic"
)

// Publisher публикует события в RabbitMQ. Соединение и канал открываются
// лениво при первой публикации и живут до Close: publisher-воркер закрывает
// их в конце каждого polling-цикла, так что батч амортизирует один dial.
type Publisher struct {
	url    string
	logger *log.Entry

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher создаёт publisher для указанного URL брокера.
func NewPublisher(url string, logger *log.Entry) *Publisher {
	if logger == nil {
		logger = log.WithField("component", "rabbit-publisher")
	}
	return &Publisher{url: url, logger: logger}
}

// Publish отправляет persistent-сообщение в exchange orders с routing key,
// равным типу события. Любая ошибка сбрасывает соединение: следующая
// публикация переподключится заново.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, ExchangeName, eventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		p.teardown()
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	return nil
}

// Close закрывает канал и соединение. Повторный вызов безопасен.
func (p *Publisher) Close() error {
	p.teardown()
	return nil
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}

	p.conn = conn
	p.ch = ch
	return ch, nil
}

// Ping проверяет доступность брокера одним коротким соединением.
func Ping(url string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn.Close()
}

func (p *Publisher) teardown() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

var _ domain.EventPublisher = (*Publisher)(nil)
