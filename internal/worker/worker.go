package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"alertwatch/internal/logger"
	"alertwatch/internal/metrics"
	"alertwatch/internal/models"
)

// Publisher defines the interface for publishing snapshot envelopes
type Publisher interface {
	Publish(ctx context.Context, envelope *models.Envelope) error
	PublishBatch(ctx context.Context, envelopes []*models.Envelope) error
}

// Pool manages workers that drain the snapshot queue and publish in batches
type Pool struct {
	publisher    Publisher
	queue        <-chan *models.Envelope
	workers      int
	batchSize    int
	batchTimeout time.Duration
	coalesce     bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
	coalesced atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher    Publisher
	Queue        <-chan *models.Envelope
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	// Coalesce keeps only the newest snapshot per container within a batch
	Coalesce bool
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:    cfg.Publisher,
		queue:        cfg.Queue,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		coalesce:     cfg.Coalesce,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Bool("coalesce", p.coalesce).
		Msg("starting worker pool")

	metrics.WorkerQueueCapacity.Set(float64(cap(p.queue)))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop flushes pending batches and waits for all workers to exit
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

// Wait blocks until every worker has exited after the queue was closed
func (p *Pool) Wait() {
	p.wg.Wait()
}

// worker collects envelopes into batches until the queue closes or the
// pool is stopped
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.Envelope, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.flush(batch)
			return

		case envelope, ok := <-p.queue:
			if !ok {
				p.flush(batch)
				return
			}

			batch = append(batch, envelope)
			metrics.WorkerQueueSize.Set(float64(len(p.queue)))

			if len(batch) >= p.batchSize {
				p.flush(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			p.flush(batch)
			batch = batch[:0]
			timer.Reset(p.batchTimeout)
		}
	}
}

// flush publishes a batch, falling back to one-by-one publishing when the
// batch call fails
func (p *Pool) flush(batch []*models.Envelope) {
	if len(batch) == 0 {
		return
	}

	if p.coalesce {
		before := len(batch)
		batch = Coalesce(batch)
		p.coalesced.Add(uint64(before - len(batch)))
	}

	log := logger.WithComponent("worker")
	start := time.Now()

	// The final flush runs after Stop cancels p.ctx, so only the timeout applies
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 10*time.Second)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err == nil {
		log.Debug().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("snapshot batch published")
		p.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
		return
	}

	log.Error().
		Err(err).
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("failed to publish snapshot batch")

	for _, envelope := range batch {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 5*time.Second)
		err := p.publisher.Publish(ctx, envelope)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("container_id", envelope.Snapshot.ContainerID).
				Uint64("version", envelope.Snapshot.Version).
				Msg("failed to publish snapshot individually")
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			continue
		}
		p.processed.Add(1)
		metrics.WorkerProcessedTotal.Inc()
	}
}

// Coalesce keeps the newest snapshot of each container, preserving the
// order in which containers first appear.
func Coalesce(batch []*models.Envelope) []*models.Envelope {
	latest := make(map[string]int, len(batch))
	out := make([]*models.Envelope, 0, len(batch))

	for _, env := range batch {
		id := env.Snapshot.ContainerID
		if i, seen := latest[id]; seen {
			if env.Snapshot.Version > out[i].Snapshot.Version {
				out[i] = env
			}
			continue
		}
		latest[id] = len(out)
		out = append(out, env)
	}
	return out
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Coalesced: p.coalesced.Load(),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Coalesced uint64 `json:"coalesced"`
}
