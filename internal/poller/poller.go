// Package poller fetches alert lists on a fixed interval and renders them
// into the display container it owns.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"alertwatch/internal/display"
	"alertwatch/internal/logger"
	"alertwatch/internal/metrics"
	"alertwatch/internal/models"
	"alertwatch/internal/render"
)

// Poller errors
var (
	ErrFetch            = errors.New("fetch failed")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrDecode           = errors.New("decode failed")
	ErrAlreadyRunning   = errors.New("poller already running")
)

// maxBodySize caps how much of a response is read (10MB)
const maxBodySize = 10 * 1024 * 1024

// Config holds the settings of a single poller
type Config struct {
	Name      string
	URL       string
	Schema    models.Schema
	Interval  time.Duration
	Timeout   time.Duration // 0 disables the per-request timeout
	Markup    render.Markup
	DropStale bool
}

// Option is a functional option for configuring the poller
type Option func(*Poller)

// WithSnapshots hands every rendered snapshot to ch without blocking
func WithSnapshots(ch chan<- *models.Envelope, node string) Option {
	return func(p *Poller) {
		p.snapshots = ch
		p.node = node
	}
}

// Poller periodically refreshes one display container from one endpoint
type Poller struct {
	cfg       Config
	client    *http.Client
	container *display.Container
	log       zerolog.Logger

	snapshots chan<- *models.Envelope
	node      string

	// Request ordering
	seq         atomic.Uint64
	renderMu    sync.Mutex
	renderedSeq uint64

	// Lifecycle
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup

	statusMu sync.RWMutex
	status   Status
}

// Status describes the recent history of a poller
type Status struct {
	Name        string     `json:"name"`
	ContainerID string     `json:"container_id"`
	URL         string     `json:"url"`
	Running     bool       `json:"running"`
	Polls       uint64     `json:"polls"`
	Failures    uint64     `json:"failures"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

// New creates a poller that renders into container
func New(cfg Config, client *http.Client, container *display.Container, opts ...Option) (*Poller, error) {
	if cfg.Name == "" {
		return nil, errors.New("poller name is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("poller URL is required")
	}
	if !cfg.Schema.IsValid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownSchema, cfg.Schema)
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if container == nil {
		return nil, errors.New("display container is required")
	}
	if cfg.Markup == "" {
		cfg.Markup = render.MarkupEscape
	}
	if client == nil {
		client = http.DefaultClient
	}

	p := &Poller{
		cfg:       cfg,
		client:    client,
		container: container,
		log:       logger.WithPoller(cfg.Name, container.ID()),
		status: Status{
			Name:        cfg.Name,
			ContainerID: container.ID(),
			URL:         cfg.URL,
		},
	}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Name returns the poller name
func (p *Poller) Name() string { return p.cfg.Name }

// Interval returns the poll period
func (p *Poller) Interval() time.Duration { return p.cfg.Interval }

// Container returns the display container owned by the poller
func (p *Poller) Container() *display.Container { return p.container }

// Refresh performs one poll cycle: fetch, decode, render, replace. On any
// failure the container keeps its previous content.
func (p *Poller) Refresh(ctx context.Context) error {
	seq := p.seq.Add(1)
	start := time.Now()

	inflight := metrics.PollsInFlight.WithLabelValues(p.cfg.Name)
	inflight.Inc()
	alerts, err := p.fetch(ctx)
	inflight.Dec()

	if err != nil {
		metrics.PollDuration.WithLabelValues(p.cfg.Name).Observe(time.Since(start).Seconds())
		p.recordFailure(err)
		return err
	}

	rows := render.Render(alerts, p.cfg.Markup)
	snap, rendered := p.commit(seq, rows, len(alerts))
	duration := time.Since(start)
	metrics.PollDuration.WithLabelValues(p.cfg.Name).Observe(duration.Seconds())

	if !rendered {
		metrics.StaleRendersDropped.WithLabelValues(p.cfg.Name).Inc()
		metrics.PollsTotal.WithLabelValues(p.cfg.Name, "stale").Inc()
		p.log.Debug().
			Uint64("seq", seq).
			Dur("duration", duration).
			Msg("discarding response older than rendered content")
		return nil
	}

	p.recordSuccess(snap, duration)
	p.offer(snap)
	return nil
}

// fetch issues the GET request and decodes the response body
func (p *Poller) fetch(ctx context.Context) ([]models.Alert, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	alerts, err := models.Decode(p.cfg.Schema, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return alerts, nil
}

// commit replaces the container content unless the response is stale
func (p *Poller) commit(seq uint64, rows []models.Row, alertCount int) (models.Snapshot, bool) {
	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	if p.cfg.DropStale && seq < p.renderedSeq {
		return models.Snapshot{}, false
	}
	if seq > p.renderedSeq {
		p.renderedSeq = seq
	}
	return p.container.Replace(rows, alertCount), true
}

// offer hands the snapshot to the publisher queue, dropping it when full
func (p *Poller) offer(snap models.Snapshot) {
	if p.snapshots == nil {
		return
	}

	select {
	case p.snapshots <- models.NewEnvelope(snap, p.cfg.Name, p.node):
	default:
		metrics.SnapshotsDropped.WithLabelValues(p.cfg.Name).Inc()
		p.log.Warn().
			Uint64("version", snap.Version).
			Msg("snapshot queue full, dropping snapshot")
	}
}

func (p *Poller) recordSuccess(snap models.Snapshot, duration time.Duration) {
	metrics.PollsTotal.WithLabelValues(p.cfg.Name, "success").Inc()
	metrics.AlertsRendered.WithLabelValues(p.cfg.Name, snap.ContainerID).Set(float64(snap.AlertCount))
	metrics.LastSuccess.WithLabelValues(p.cfg.Name).Set(float64(snap.RenderedAt.Unix()))

	p.statusMu.Lock()
	p.status.Polls++
	at := snap.RenderedAt
	p.status.LastSuccess = &at
	p.statusMu.Unlock()

	p.log.Debug().
		Uint64("version", snap.Version).
		Int("alerts", snap.AlertCount).
		Dur("duration", duration).
		Msg("alerts rendered")
}

func (p *Poller) recordFailure(err error) {
	metrics.PollsTotal.WithLabelValues(p.cfg.Name, result(err)).Inc()

	p.statusMu.Lock()
	p.status.Polls++
	p.status.Failures++
	p.status.LastError = err.Error()
	now := time.Now().UTC()
	p.status.LastErrorAt = &now
	p.statusMu.Unlock()

	// Cancellation during shutdown is not worth an error line
	if errors.Is(err, context.Canceled) {
		p.log.Debug().Err(err).Msg("poll cancelled")
		return
	}

	p.log.Error().
		Err(err).
		Str("url", p.cfg.URL).
		Msg("error fetching alerts")
}

// result maps a refresh error to its metric label
func result(err error) string {
	switch {
	case errors.Is(err, ErrUnexpectedStatus):
		return "status_error"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	default:
		return "fetch_error"
	}
}

// Status returns a copy of the poller status
func (p *Poller) Status() Status {
	p.statusMu.RLock()
	s := p.status
	p.statusMu.RUnlock()

	s.Running = p.Running()
	return s
}

// Start refreshes once immediately and then on every interval tick until
// Stop is called or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runningLocked() {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	p.log.Info().
		Str("url", p.cfg.URL).
		Str("schema", string(p.cfg.Schema)).
		Dur("interval", p.cfg.Interval).
		Msg("poller starting")

	go p.run(runCtx, p.done)
	return nil
}

// Stop cancels in-flight requests and waits for them to return. It is
// safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	p.log.Info().Msg("poller stopped")
}

// Running reports whether the scheduler loop is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

func (p *Poller) runningLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		// Parent context ended the loop; release it so Start can run again
		p.cancel()
		p.cancel, p.done = nil, nil
		return false
	default:
		return true
	}
}

// run is the scheduler loop
func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			p.inflight.Wait()
			return
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

// dispatch starts a refresh without waiting for earlier ones to finish
func (p *Poller) dispatch(ctx context.Context) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()

		// Panic recovery
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("refresh panic recovered")
				metrics.PanicsRecovered.WithLabelValues("poller").Inc()
			}
		}()

		// Errors are already logged and counted by Refresh
		_ = p.Refresh(ctx)
	}()
}
