package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Message is one event ready for the broker
type Message struct {
	RoutingKey string
	MessageID  string
	Body       []byte
	Timestamp  time.Time
}

// Publisher delivers events to subscribers of the lifecycle exchange
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// channel is the subset of *amqp.Channel used for publishing
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// connection is the subset of *amqp.Connection used for publishing
type connection interface {
	Channel() (channel, error)
	IsClosed() bool
	Close() error
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

const (
	dialAttempts = 5
	dialBackoff  = time.Second
)

// AMQPPublisher publishes to a durable RabbitMQ topic exchange. A closed
// channel or connection is reopened on the next publish.
type AMQPPublisher struct {
	dial     func() (connection, error)
	exchange string
	attempts int
	backoff  time.Duration
	logger   *logrus.Logger

	mu       sync.Mutex
	conn     connection
	ch       channel
	declared bool
}

// NewAMQPPublisher dials the broker, retrying with exponential backoff
func NewAMQPPublisher(url, exchange string, logger *logrus.Logger) (*AMQPPublisher, error) {
	p := newAMQPPublisher(func() (connection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, err
		}
		return amqpConnection{conn}, nil
	}, exchange, logger)
	p.attempts = dialAttempts
	p.backoff = dialBackoff

	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(dial func() (connection, error), exchange string, logger *logrus.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		dial:     dial,
		exchange: exchange,
		attempts: 1,
		logger:   logger,
	}
}

func (p *AMQPPublisher) connect() error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.open(); err == nil {
			return nil
		}

		p.logger.WithError(err).WithField("attempt", attempt).Warn("RabbitMQ connection attempt failed")
		if attempt < p.attempts {
			time.Sleep(p.backoff << (attempt - 1))
		}
	}

	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", p.attempts, err)
}

// open dials when the connection is gone and opens a fresh channel
func (p *AMQPPublisher) open() error {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial()
		if err != nil {
			return fmt.Errorf("failed to dial RabbitMQ: %w", err)
		}
		p.conn = conn
	}

	ch, err := p.conn.Channel()
	if err != nil {
		_ = p.conn.Close()
		p.conn = nil
		return fmt.Errorf("failed to open channel: %w", err)
	}

	p.ch = ch
	p.declared = false
	return nil
}

// Publish declares the exchange once per channel, then publishes a
// persistent JSON message. A closed channel is reopened and the publish
// retried once.
func (p *AMQPPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.publish(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) {
		p.logger.WithError(err).Warn("RabbitMQ channel closed, reconnecting")
		p.dropChannel()
		err = p.publish(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", msg.RoutingKey, err)
	}

	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, msg Message) error {
	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		if err := p.open(); err != nil {
			return err
		}
	}

	if !p.declared {
		if err := p.ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange: %w", err)
		}
		p.declared = true
	}

	return p.ch.PublishWithContext(ctx, p.exchange, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID,
		Timestamp:    msg.Timestamp,
		Body:         msg.Body,
	})
}

func (p *AMQPPublisher) dropChannel() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	p.ch = nil
	p.declared = false
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dropChannel()
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

// LogPublisher logs events instead of publishing them (no broker configured)
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a new LogPublisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(ctx context.Context, msg Message) error {
	p.logger.WithFields(logrus.Fields{
		"routing_key": msg.RoutingKey,
		"message_id":  msg.MessageID,
	}).Debug("Booking event (no broker configured)")
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error { return nil }
