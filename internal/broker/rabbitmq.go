package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/broadcast"
	amqp "github.com/rabbitmq/amqp091-go"
)

// HeaderMessageGroupID carries the ordering key for consumers that group by header
const HeaderMessageGroupID = "message_group_id"

const confirmTimeout = 10 * time.Second

// RabbitMQPublisher sends broadcasts to an exchange named after the destination and
// waits for the broker to confirm each one
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *slog.Logger
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
	closeOnce  sync.Once
	healthy    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewRabbitMQPublisher initializes a connection and a channel, enabling Publisher Confirms, and
// declares the destination exchange with the given kind. The ordering key is the routing key, so
// a topic exchange lets consumers bind by pattern and an x-consistent-hash exchange keeps one
// entity on one queue. The kind must match an existing exchange of the same name
func NewRabbitMQPublisher(url, exchange, kind string, l *slog.Logger) (*RabbitMQPublisher, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		kind,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to declare %s exchange %s: %w", kind, exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate Publisher Confirms: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &RabbitMQPublisher{
		conn:       c,
		channel:    ch,
		logger:     l,
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.healthy.Store(true)

	p.conn.NotifyClose(p.connClosed)
	p.channel.NotifyClose(p.chanClosed)

	go func() {
		select {
		case err := <-p.connClosed:
			p.healthy.Store(false)
			l.Warn("RabbitMQ broadcast connection closed", "error", err)
		case err := <-p.chanClosed:
			p.healthy.Store(false)
			l.Warn("RabbitMQ broadcast channel closed", "error", err)
		case <-p.ctx.Done():
			return
		}
	}()

	l.Info("Broadcast publisher connected to RabbitMQ", "exchange", exchange)
	return p, nil
}

// Publish sends one broadcast and blocks until a confirmation (ACK/NACK) is received
func (r *RabbitMQPublisher) Publish(ctx context.Context, pub broadcast.Publication) error {
	if !r.IsHealthy() {
		return fmt.Errorf("broker connection is closed")
	}

	deferred, err := r.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		pub.Destination,
		pub.OrderingKey,
		false,
		false,
		publishing(pub),
	)
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: message not persisted")
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publisher confirm timeout")
	}
}

func publishing(pub broadcast.Publication) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range pub.Attributes {
		headers[k] = v
	}
	if pub.OrderingKey != "" {
		headers[HeaderMessageGroupID] = pub.OrderingKey
	}

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    pub.ID,
		Timestamp:    time.Now().UTC(),
		Body:         pub.Body,
	}
}

// Close gracefully shuts down the RabbitMQ resources
func (r *RabbitMQPublisher) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("Terminating RabbitMQ broadcast publisher")
		r.cancel()
		if r.channel != nil {
			r.channel.Close()
		}
		if r.conn != nil {
			r.conn.Close()
		}
	})
	return nil
}

// IsHealthy returns true if the connection and channel are active
func (r *RabbitMQPublisher) IsHealthy() bool {
	return r.healthy.Load()
}

var _ broadcast.Publisher = (*RabbitMQPublisher)(nil)
