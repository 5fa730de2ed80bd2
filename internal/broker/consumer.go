package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/processor"
	"github.com/Guizzs26/ndw-archiver/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Binding attaches a processor to the queue its records arrive on
type Binding struct {
	Queue     string
	Processor processor.Processor
}

// RabbitMQConsumer manages the connection and message flow from the broker
type RabbitMQConsumer struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewRabbitMQConsumer opens one channel shared by every bound queue. prefetch caps the unacked
// deliveries per queue consumer
func NewRabbitMQConsumer(url string, prefetch int, retryDelay time.Duration, logger *slog.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	metrics.HealthStatus.Set(1)

	return &RabbitMQConsumer{
		conn:       conn,
		channel:    ch,
		logger:     logger,
		retryDelay: retryDelay,
	}, nil
}

// Listen consumes every binding until ctx is cancelled or the broker link drops. Deliveries
// on one queue are handled in order; queues are handled concurrently.
func (c *RabbitMQConsumer) Listen(ctx context.Context, bindings []Binding) error {
	deliveries := make([]<-chan amqp.Delivery, len(bindings))
	for i, b := range bindings {
		// Durable so pending records survive broker restarts
		q, err := c.channel.QueueDeclare(b.Queue, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.Queue, err)
		}

		msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to register consumer on %s: %w", b.Queue, err)
		}
		deliveries[i] = msgs

		c.logger.Info("Consumer is online and waiting for messages", "queue", q.Name, "kind", b.Processor.Kind())
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range bindings {
		msgs := deliveries[i]
		g.Go(func() error {
			return c.consume(gctx, b, msgs)
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	metrics.HealthStatus.Set(0)
	return err
}

func (c *RabbitMQConsumer) consume(ctx context.Context, b Binding, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel for %s closed", b.Queue)
			}
			c.handle(ctx, b, d)
		}
	}
}

// handle runs the processor and settles the delivery:
// success and soft skips are acked, invalid records are rejected without requeue so the
// queue's dead-letter policy takes them, anything else is requeued after a throttle delay.
func (c *RabbitMQConsumer) handle(ctx context.Context, b Binding, d amqp.Delivery) {
	l := c.logger.With("queue", b.Queue, "kind", b.Processor.Kind(), "delivery_tag", d.DeliveryTag)
	if d.MessageId != "" {
		l = l.With("message_id", d.MessageId)
	}

	msg := processor.Message{
		Body:       d.Body,
		Attributes: attributes(d.Headers),
	}

	outcome, err := processor.Handle(ctx, b.Processor, msg)
	switch {
	case err == nil:
		l.Debug("Record handled", "state", outcome.State)
		if err := d.Ack(false); err != nil {
			l.Error("Failed to Ack message", "error", err)
		}

	case errors.Is(err, processor.ErrInvalidRecord):
		l.Error("Record is invalid, rejecting", "error", err)
		if err := d.Nack(false, false); err != nil {
			l.Error("Failed to Nack message", "error", err)
		}

	default:
		l.Error("Processing failed, requeueing", "error", err, "retry_in", c.retryDelay)
		// Throttle retries
		select {
		case <-ctx.Done():
		case <-time.After(c.retryDelay):
		}
		if err := d.Nack(false, true); err != nil {
			l.Error("Failed to Nack message", "error", err)
		}
	}
}

// attributes flattens AMQP headers into string attributes. Non-string values are formatted,
// nested tables are dropped
func attributes(headers amqp.Table) map[string]string {
	attrs := make(map[string]string, len(headers))
	for k, v := range headers {
		switch val := v.(type) {
		case string:
			attrs[k] = val
		case []byte:
			attrs[k] = string(val)
		case nil, amqp.Table, []interface{}:
		default:
			attrs[k] = fmt.Sprint(val)
		}
	}
	return attrs
}

// Close gracefully terminates RabbitMQ resources
func (c *RabbitMQConsumer) Close() {
	c.logger.Info("Shutting down RabbitMQ consumer")
	c.channel.Close()
	c.conn.Close()
}
