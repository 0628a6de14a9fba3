package watcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promconfig "github.com/prometheus/common/config"

	"alertwatch/internal/config"
	"alertwatch/internal/display"
	"alertwatch/internal/handlers"
	"alertwatch/internal/kafka"
	"alertwatch/internal/logger"
	"alertwatch/internal/middleware"
	"alertwatch/internal/models"
	"alertwatch/internal/poller"
	"alertwatch/internal/worker"
)

// Watcher is the high-level coordinator for pollers, publishing and the HTTP surface.
type Watcher struct {
	cfg     *config.Config
	nodeID  string
	pollers []*poller.Poller

	producer   *kafka.Producer
	workerPool *worker.Pool
	queue      chan *models.Envelope

	mu         sync.Mutex
	listener   net.Listener
	ready      chan struct{}
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs a Watcher with the given config. Nothing is started.
func New(cfg *config.Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:    cfg,
		nodeID: nodeID(cfg.NodeID),
		ready:  make(chan struct{}),
	}

	if cfg.Kafka.Enabled() {
		w.queue = make(chan *models.Envelope, cfg.Kafka.QueueSize)
	}

	if err := w.initPollers(); err != nil {
		return nil, err
	}
	return w, nil
}

// nodeID falls back to the hostname, then to a random ID
func nodeID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}

// initPollers builds one poller and one container per configured poller
func (w *Watcher) initPollers() error {
	client, err := promconfig.NewClientFromConfig(w.cfg.Upstream.HTTPClient, "alertwatch")
	if err != nil {
		return fmt.Errorf("failed to build upstream HTTP client: %w", err)
	}

	for _, pc := range w.cfg.Pollers {
		u, err := w.cfg.URL(pc)
		if err != nil {
			return err
		}

		var opts []poller.Option
		if w.queue != nil {
			opts = append(opts, poller.WithSnapshots(w.queue, w.nodeID))
		}

		p, err := poller.New(poller.Config{
			Name:      pc.Name,
			URL:       u,
			Schema:    pc.Schema,
			Interval:  time.Duration(pc.Interval),
			Timeout:   time.Duration(pc.Timeout),
			Markup:    pc.Markup,
			DropStale: pc.DropStale,
		}, client, display.New(pc.ContainerID), opts...)
		if err != nil {
			return fmt.Errorf("poller %s: %w", pc.Name, err)
		}
		w.pollers = append(w.pollers, p)
	}
	return nil
}

// Pollers returns the configured pollers
func (w *Watcher) Pollers() []*poller.Poller { return w.pollers }

// Ready is closed once the HTTP listener is bound and pollers are started
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Addr returns the HTTP listen address, or nil before Run has bound it
func (w *Watcher) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.listener == nil {
		return nil
	}
	return w.listener.Addr()
}

// Run starts all components and blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	log := logger.WithComponent("watcher")
	log.Info().
		Str("node_id", w.nodeID).
		Int("pollers", len(w.pollers)).
		Msg("watcher starting")

	if w.cfg.Kafka.Enabled() {
		if err := w.initPublisher(); err != nil {
			log.Error().Err(err).Msg("failed to initialize snapshot publisher")
			return fmt.Errorf("failed to initialize snapshot publisher: %w", err)
		}
	}

	if err := w.initHTTPServer(); err != nil {
		log.Error().Err(err).Msg("failed to initialize HTTP server")
		w.stopPublisher()
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	// Start HTTP server in background
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		log.Info().Str("addr", w.listener.Addr().String()).Msg("starting HTTP server")
		if err := w.httpServer.Serve(w.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	for _, p := range w.pollers {
		if err := p.Start(ctx); err != nil {
			log.Error().Err(err).Str("poller", p.Name()).Msg("failed to start poller")
		}
	}

	// Stats reporting goroutine
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reportStats(ctx)
	}()

	close(w.ready)

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return w.shutdown()
}

// initPublisher creates the Kafka producer and the worker pool feeding it
func (w *Watcher) initPublisher() error {
	log := logger.WithComponent("watcher")
	kc := w.cfg.Kafka

	producer, err := kafka.NewProducer(kc.Brokers, kc.Topic, kc.Producer)
	if err != nil {
		return err
	}
	w.producer = producer

	w.workerPool = worker.NewPool(w.poolConfig(producer))
	w.workerPool.Start()

	log.Info().
		Strs("brokers", kc.Brokers).
		Str("topic", kc.Topic).
		Bool("coalesce", kc.Coalesce).
		Msg("snapshot publisher initialized")
	return nil
}

func (w *Watcher) poolConfig(pub worker.Publisher) worker.Config {
	kc := w.cfg.Kafka
	return worker.Config{
		Publisher:    pub,
		Queue:        w.queue,
		Workers:      kc.Producer.PoolSize,
		BatchSize:    kc.Producer.BatchSize,
		BatchTimeout: time.Duration(kc.Producer.BatchTimeout),
		Coalesce:     kc.Coalesce,
	}
}

// initHTTPServer binds the listener and builds the handler tree
func (w *Watcher) initHTTPServer() error {
	sources := make([]handlers.Source, 0, len(w.pollers))
	for _, p := range w.pollers {
		sources = append(sources, p)
	}

	checks := map[string]handlers.HealthChecker{}
	if w.producer != nil {
		checks["kafka"] = w.producer.HealthCheck
	}

	mux := http.NewServeMux()
	handlers.NewHandler(sources, checks).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", w.cfg.ListenAddress)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.listener = ln
	w.mu.Unlock()

	w.httpServer = &http.Server{
		Handler:      middleware.Chain(mux, middleware.Recovery, middleware.Logging),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// shutdown stops components in dependency order
func (w *Watcher) shutdown() error {
	log := logger.WithComponent("watcher")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop polling; no snapshot is queued after this
	for _, p := range w.pollers {
		p.Stop()
	}

	// 2. Stop accepting HTTP requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 3. Drain queued snapshots and close the producer
	w.stopPublisher()

	w.wg.Wait()
	log.Info().Msg("watcher stopped gracefully")
	return nil
}

// stopPublisher flushes pending snapshots and closes Kafka writers
func (w *Watcher) stopPublisher() {
	if w.workerPool == nil {
		return
	}
	log := logger.WithComponent("watcher")

	close(w.queue)
	done := make(chan struct{})
	go func() {
		w.workerPool.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers drained")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("worker drain timeout - forcing exit")
		w.workerPool.Stop()
	}

	stats := w.workerPool.Stats()
	log.Info().
		Uint64("published", stats.Processed).
		Uint64("failed", stats.Failed).
		Msg("snapshot publisher stopped")

	if err := w.producer.Close(); err != nil {
		log.Error().Err(err).Msg("producer close error")
	}
}

// reportStats periodically logs poller and publisher statistics
func (w *Watcher) reportStats(ctx context.Context) {
	log := logger.WithComponent("watcher")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range w.pollers {
				status := p.Status()
				snap := p.Container().Snapshot()
				log.Info().
					Str("poller", status.Name).
					Uint64("polls", status.Polls).
					Uint64("failures", status.Failures).
					Uint64("version", snap.Version).
					Int("alerts", snap.AlertCount).
					Msg("poller stats")
			}

			if w.workerPool != nil {
				workerStats := w.workerPool.Stats()
				producerStats := w.producer.Stats()
				log.Info().
					Uint64("worker_processed", workerStats.Processed).
					Uint64("worker_failed", workerStats.Failed).
					Uint64("producer_sent", producerStats.MessagesSent).
					Uint64("producer_bytes", producerStats.BytesWritten).
					Int("queue_size", len(w.queue)).
					Msg("publisher stats")
			}
		}
	}
}
