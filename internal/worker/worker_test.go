package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertwatch/internal/models"
	"alertwatch/internal/worker"
)

// MockPublisher is a mock implementation of Publisher for testing
type MockPublisher struct {
	published   atomic.Uint64
	batches     atomic.Uint64
	failBatches bool
	failSingle  bool

	mu       sync.Mutex
	versions []uint64
}

func (m *MockPublisher) Publish(ctx context.Context, envelope *models.Envelope) error {
	if m.failSingle {
		return context.DeadlineExceeded
	}
	m.record(envelope)
	m.published.Add(1)
	return nil
}

func (m *MockPublisher) PublishBatch(ctx context.Context, envelopes []*models.Envelope) error {
	if m.failBatches {
		return context.DeadlineExceeded
	}
	for _, env := range envelopes {
		m.record(env)
	}
	m.batches.Add(1)
	m.published.Add(uint64(len(envelopes)))
	return nil
}

func (m *MockPublisher) record(env *models.Envelope) {
	m.mu.Lock()
	m.versions = append(m.versions, env.Snapshot.Version)
	m.mu.Unlock()
}

func envelope(container string, version uint64) *models.Envelope {
	return models.NewEnvelope(models.Snapshot{ContainerID: container, Version: version}, "test", "test-node")
}

func TestPoolPublishesSnapshots(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      2,
		BatchSize:    10,
		BatchTimeout: 50 * time.Millisecond,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 25; i++ {
		ch <- envelope("alert-container", uint64(i+1))
	}

	require.Eventually(t, func() bool {
		return pool.Stats().Processed == 25
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(25), mock.published.Load())
}

func TestPoolBatchesBySize(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    5,
		BatchTimeout: time.Minute, // Long timeout to force size based batching
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		ch <- envelope("c", uint64(i+1))
	}

	require.Eventually(t, func() bool {
		return mock.published.Load() == 5
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(1), mock.batches.Load())
}

func TestPoolFlushesOnQueueClose(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    100,
		BatchTimeout: time.Minute,
	})
	pool.Start()

	ch <- envelope("c", 1)
	ch <- envelope("c", 2)
	close(ch)
	pool.Wait()

	assert.Equal(t, uint64(2), mock.published.Load())
	pool.Stop()
}

func TestPoolFallsBackToIndividualPublish(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockPublisher{failBatches: true}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    3,
		BatchTimeout: time.Minute,
	})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 3; i++ {
		ch <- envelope("c", uint64(i+1))
	}

	require.Eventually(t, func() bool {
		return pool.Stats().Processed == 3
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, pool.Stats().Failed)
}

func TestPoolCountsFailures(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockPublisher{failBatches: true, failSingle: true}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    2,
		BatchTimeout: time.Minute,
	})
	pool.Start()
	defer pool.Stop()

	ch <- envelope("c", 1)
	ch <- envelope("c", 2)

	require.Eventually(t, func() bool {
		return pool.Stats().Failed == 2
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, pool.Stats().Processed)
}

func TestPoolCoalesce(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockPublisher{}

	pool := worker.NewPool(worker.Config{
		Publisher:    mock,
		Queue:        ch,
		Workers:      1,
		BatchSize:    4,
		BatchTimeout: time.Minute,
		Coalesce:     true,
	})
	pool.Start()
	defer pool.Stop()

	ch <- envelope("a", 1)
	ch <- envelope("b", 1)
	ch <- envelope("a", 2)
	ch <- envelope("a", 3)

	require.Eventually(t, func() bool {
		return mock.published.Load() == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), pool.Stats().Coalesced)
}

func TestCoalesce(t *testing.T) {
	out := worker.Coalesce([]*models.Envelope{
		envelope("a", 2),
		envelope("b", 1),
		envelope("a", 1), // older snapshot arriving late
		envelope("b", 3),
	})

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Snapshot.ContainerID)
	assert.Equal(t, uint64(2), out[0].Snapshot.Version)
	assert.Equal(t, "b", out[1].Snapshot.ContainerID)
	assert.Equal(t, uint64(3), out[1].Snapshot.Version)
}
