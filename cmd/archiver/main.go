package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/archive"
	"github.com/Guizzs26/ndw-archiver/internal/broadcast"
	"github.com/Guizzs26/ndw-archiver/internal/broker"
	"github.com/Guizzs26/ndw-archiver/internal/config"
	"github.com/Guizzs26/ndw-archiver/internal/ledger"
	natspub "github.com/Guizzs26/ndw-archiver/internal/messaging/nats"
	"github.com/Guizzs26/ndw-archiver/internal/objectstore"
	"github.com/Guizzs26/ndw-archiver/internal/processor"
	"github.com/Guizzs26/ndw-archiver/internal/routing"
	"github.com/Guizzs26/ndw-archiver/pkg/infra"
	"github.com/Guizzs26/ndw-archiver/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🔥 Archiver initializing...",
		"archive_path", cfg.ArchiveBasePath,
		"archive_root", cfg.ArchiveDirectory,
		"broadcast_backend", cfg.BroadcastBackend,
	)

	backend, err := archive.NewOSBackend(cfg.ArchiveBasePath)
	if err != nil {
		logger.Error("CRITICAL: archive storage unavailable", "error", err)
		os.Exit(1)
	}
	store := archive.NewStore(backend, cfg.ArchiveDirectory, logger)

	var recorder processor.Recorder
	if cfg.LedgerDatabaseURL != "" {
		l, err := ledger.NewPostgresLedger(ctx, cfg.LedgerDatabaseURL, logger)
		if err != nil {
			logger.Error("CRITICAL: ledger database connection failed", "error", err)
			os.Exit(1)
		}
		defer l.Close()
		recorder = l

		if cfg.LedgerRetention > 0 {
			done := make(chan struct{})
			go runMaintenance(ctx, l, cfg.LedgerRetention, cfg.MaintenanceInterval, logger, done)
			defer func() { <-done }()
		}
	}

	publisher, closePublisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Error("CRITICAL: broadcast publisher unavailable", "error", err)
		os.Exit(1)
	}
	defer closePublisher()

	notifier := broadcast.NewNotifier(publisher, broadcast.Route{
		Destination:      cfg.BroadcastDestination,
		MessageAttribute: cfg.BroadcastMessageAttribute,
	}, logger)

	pipeline := processor.NewPipeline(store, routing.DefaultTable(), recorder, logger)

	bindings, err := newBindings(ctx, cfg, pipeline, notifier, logger)
	if err != nil {
		logger.Error("CRITICAL: failed to build processors", "error", err)
		os.Exit(1)
	}
	if len(bindings) == 0 {
		logger.Error("CRITICAL: no queues configured")
		os.Exit(1)
	}

	var connected atomic.Bool
	go startObservabilityServer(cfg.MetricsPort, &connected, logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		if ctx.Err() != nil {
			logger.Info("🛑 Shutdown signal received")
			return
		}

		consumer, err := broker.NewRabbitMQConsumer(cfg.RabbitMQURL, cfg.PrefetchCount, cfg.RetryDelay, logger)
		if err != nil {
			metrics.BrokerReconnections.Inc()
			logger.Error("RabbitMQ connection failed, retrying...",
				"attempt", connBackoff.Attempts()+1,
				"error", err,
			)
			if _, ok := connBackoff.Wait(ctx); !ok {
				return
			}
			continue
		}

		connBackoff.Reset()
		connected.Store(true)
		logger.Info("✅ Connected to Broker. Listening for records...", "queues", len(bindings))

		if err := consumer.Listen(ctx, bindings); err != nil {
			logger.Error("⚠️ Consumer connection lost", "error", err)
		}

		connected.Store(false)
		consumer.Close()
	}
}

// newPublisher builds the configured broadcast transport. A nil publisher with a no-op closer
// is returned when broadcasting is disabled
func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (broadcast.Publisher, func(), error) {
	if cfg.BroadcastDestination == "" {
		logger.Warn("BROADCAST_DESTINATION is empty, form events will not be broadcast")
		return nil, func() {}, nil
	}

	switch cfg.BroadcastBackend {
	case "rabbitmq":
		p := broker.NewReconnectingRabbitMQPublisher(cfg.RabbitMQURL, cfg.BroadcastDestination, cfg.BroadcastExchangeKind, logger)
		if err := p.Connect(); err != nil {
			logger.Warn("Broadcast publisher not connected at startup, will redial on publish", "error", err)
		}
		return p, func() { _ = p.Close() }, nil

	case "nats":
		p, err := natspub.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if _, err := p.EnsureStream(ctx, cfg.BroadcastDestination); err != nil {
			_ = p.Close()
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Warn("Failed to drain NATS connection", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown BROADCAST_BACKEND %q", cfg.BroadcastBackend)
	}
}

// newBindings wires a processor to every configured queue
func newBindings(ctx context.Context, cfg *config.Config, pipeline *processor.Pipeline, notifier processor.Broadcaster, logger *slog.Logger) ([]broker.Binding, error) {
	var bindings []broker.Binding

	if cfg.Queues.FormS3 != "" {
		fetcher, err := objectstore.NewS3Fetcher(ctx, cfg.AWSRegion, cfg.S3Endpoint, cfg.S3UsePathStyle, logger)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, broker.Binding{
			Queue:     cfg.Queues.FormS3,
			Processor: processor.NewObjectFormProcessor(fetcher, pipeline, notifier, logger),
		})
	}
	if cfg.Queues.FormLTFT != "" {
		bindings = append(bindings, broker.Binding{
			Queue:     cfg.Queues.FormLTFT,
			Processor: processor.NewLTFTProcessor(pipeline, logger),
		})
	}
	if cfg.Queues.FormFormR != "" {
		bindings = append(bindings, broker.Binding{
			Queue:     cfg.Queues.FormFormR,
			Processor: processor.NewFormRProcessor(pipeline, notifier, logger),
		})
	}
	if cfg.Queues.Notification != "" {
		bindings = append(bindings, broker.Binding{
			Queue:     cfg.Queues.Notification,
			Processor: processor.NewNotificationProcessor(pipeline, logger),
		})
	}
	if cfg.Queues.Action != "" {
		bindings = append(bindings, broker.Binding{
			Queue:     cfg.Queues.Action,
			Processor: processor.NewActionProcessor(pipeline, logger),
		})
	}

	return bindings, nil
}

// runMaintenance prunes ledger rows older than retention on every tick
func runMaintenance(ctx context.Context, l *ledger.PostgresLedger, retention, interval time.Duration, logger *slog.Logger, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			affected, err := l.Prune(ctx, cutoff)
			if err != nil {
				logger.Error("Janitor: failed to prune ledger", "error", err)
			} else if affected > 0 {
				logger.Info("🧹 Janitor: pruned ledger rows", "count", affected, "cutoff", cutoff)
			}

		case <-ctx.Done():
			logger.Info("🛑 Janitor: stopping maintenance goroutine")
			return
		}
	}
}

func startObservabilityServer(port string, connected *atomic.Bool, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !connected.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("BROKER DISCONNECTED"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ARCHIVER ALIVE"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("📊 Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
