package messaging

import (
	"context"
	"fmt"
	"io"
	"sync"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the part of *amqp.Channel used by the publisher.
type AMQPChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes each event to a durable queue named after the
// event, through the default exchange.
type RabbitMQPublisher struct {
	mu       sync.Mutex
	channel  AMQPChannel
	conn     io.Closer
	declared map[string]struct{}
}

// DialRabbitMQ opens a connection and a channel to url.
func DialRabbitMQ(url string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p := NewRabbitMQPublisher(ch)
	p.conn = conn
	return p, nil
}

func NewRabbitMQPublisher(ch AMQPChannel) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		channel:  ch,
		declared: make(map[string]struct{}),
	}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	body, err := encode(e)
	if err != nil {
		return err
	}
	queue := e.EventName()

	headers := amqp.Table{headerEventName: queue}
	injectTrace(ctx, tableCarrier(headers))

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.declared[queue]; !ok {
		if _, err := p.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		p.declared[queue] = struct{}{}
	}

	err = p.channel.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   contentTypeJSON,
		DeliveryMode:  amqp.Persistent,
		CorrelationId: domoutbox.KeyOf(e),
		Headers:       headers,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// tableCarrier adapts amqp.Table to propagation.TextMapCarrier.
type tableCarrier amqp.Table

func (c tableCarrier) Get(key string) string {
	v, _ := c[key].(string)
	return v
}

func (c tableCarrier) Set(key, value string) { c[key] = value }

func (c tableCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
