package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/broadcast"
	"github.com/Guizzs26/ndw-archiver/pkg/infra"
	"github.com/Guizzs26/ndw-archiver/pkg/metrics"
)

// Link is one live publisher connection
type Link interface {
	broadcast.Publisher
	IsHealthy() bool
	Close() error
}

// ReconnectingPublisher keeps a Link alive across broker restarts. A link that reports
// unhealthy is closed and redialed on the next Publish, with failed dials spaced out by a
// backoff so a down broker is not hammered once per record
type ReconnectingPublisher struct {
	dial    func() (Link, error)
	backoff *infra.Backoff
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	current  Link
	nextDial time.Time
}

func NewReconnectingPublisher(dial func() (Link, error), backoff *infra.Backoff, l *slog.Logger) *ReconnectingPublisher {
	return &ReconnectingPublisher{
		dial:    dial,
		backoff: backoff,
		now:     time.Now,
		logger:  l,
	}
}

// NewReconnectingRabbitMQPublisher redials the exchange with NewRabbitMQPublisher
func NewReconnectingRabbitMQPublisher(url, exchange, kind string, l *slog.Logger) *ReconnectingPublisher {
	dial := func() (Link, error) {
		p, err := NewRabbitMQPublisher(url, exchange, kind, l)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return NewReconnectingPublisher(dial, infra.NewBackoff(time.Second, time.Minute, 2.0), l)
}

// Connect dials eagerly. A failure is not fatal: Publish retries once the backoff allows it
func (r *ReconnectingPublisher) Connect() error {
	_, err := r.link()
	return err
}

func (r *ReconnectingPublisher) Publish(ctx context.Context, pub broadcast.Publication) error {
	link, err := r.link()
	if err != nil {
		return err
	}
	return link.Publish(ctx, pub)
}

func (r *ReconnectingPublisher) link() (Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		if r.current.IsHealthy() {
			return r.current, nil
		}
		r.logger.Warn("Broadcast publisher unhealthy, reconnecting")
		_ = r.current.Close()
		r.current = nil
	}

	now := r.now()
	if now.Before(r.nextDial) {
		return nil, fmt.Errorf("broadcast publisher offline, next dial in %s", r.nextDial.Sub(now).Round(time.Millisecond))
	}

	link, err := r.dial()
	if err != nil {
		metrics.PublisherRedials.WithLabelValues("error").Inc()
		r.nextDial = r.backoff.NotBefore(now)
		r.logger.Error("Broadcast publisher dial failed",
			"attempt", r.backoff.Attempts(),
			"error", err,
		)
		return nil, fmt.Errorf("broadcast publisher dial failed: %w", err)
	}

	metrics.PublisherRedials.WithLabelValues("connected").Inc()
	r.backoff.Reset()
	r.nextDial = time.Time{}
	r.current = link
	return link, nil
}

// IsHealthy reports whether a healthy link is currently held
func (r *ReconnectingPublisher) IsHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.IsHealthy()
}

func (r *ReconnectingPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

var _ Link = (*RabbitMQPublisher)(nil)
var _ Link = (*ReconnectingPublisher)(nil)
