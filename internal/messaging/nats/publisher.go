// Package nats publishes broadcasts to NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/broadcast"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// HeaderMessageGroupID carries the ordering key of ordered destinations
const HeaderMessageGroupID = "Message-Group-Id"

// Publisher sends each broadcast to the subject named by its destination and waits for the
// stream to acknowledge it
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewPublisher connects to url with unlimited reconnects
func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("ndw-archiver"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Publisher{conn: conn, js: js, logger: logger}, nil
}

// EnsureStream creates or updates a stream capturing subject. Stream names may not contain
// dots, so they are derived by replacing them
func (p *Publisher) EnsureStream(ctx context.Context, subject string) (jetstream.Stream, error) {
	cfg := jetstream.StreamConfig{
		Name:      StreamName(subject),
		Subjects:  []string{subject},
		MaxAge:    7 * 24 * time.Hour,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}

	stream, err := p.js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// StreamName derives a valid stream name from a subject
func StreamName(subject string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "*", "ANY", ">", "ALL", " ", "_").Replace(subject))
}

// Publish sends pub. The broadcast id doubles as the JetStream deduplication id
func (p *Publisher) Publish(ctx context.Context, pub broadcast.Publication) error {
	ack, err := p.js.PublishMsg(ctx, message(pub), jetstream.WithMsgID(pub.ID))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", pub.Destination, err)
	}
	if ack.Duplicate {
		p.logger.Debug("JetStream reported duplicate broadcast", "id", pub.ID, "stream", ack.Stream)
	}
	return nil
}

func message(pub broadcast.Publication) *nats.Msg {
	msg := nats.NewMsg(pub.Destination)
	msg.Data = pub.Body
	for k, v := range pub.Attributes {
		msg.Header.Set(k, v)
	}
	if pub.OrderingKey != "" {
		msg.Header.Set(HeaderMessageGroupID, pub.OrderingKey)
	}
	return msg
}

// Close drains in-flight publishes and closes the connection
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

var _ broadcast.Publisher = (*Publisher)(nil)
