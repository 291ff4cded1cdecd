package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/collectors"
)

// SubmitResult reports the admission decision for a submitted event.
type SubmitResult int

const (
	// SubmitAccepted means the event entered the buffer and will be
	// written by the next drain.
	SubmitAccepted SubmitResult = iota
	// SubmitDropped means the buffer was at capacity and the event was
	// discarded. This is documented lossy behavior under burst load,
	// not an error: the caller still gets a non-committal acknowledgment.
	SubmitDropped
)

// ErrMissingField indicates a submission without a URL or collector id.
var ErrMissingField = errors.New("events: submission is missing a required field")

// UnknownCollectorError indicates an event referencing a collector id that
// is not stored. Such events are rejected before entering the queue.
type UnknownCollectorError struct {
	CollectorID string
}

func (e *UnknownCollectorError) Error() string {
	return fmt.Sprintf("unknown collector %q", e.CollectorID)
}

// Queue is the bounded ingestion buffer between the hot request path and
// storage. Submit never blocks on storage I/O: it either appends to the
// buffer or reports a drop in bounded time. A single drain goroutine hands
// batches to the Writer, so the store never sees concurrent batch writers.
type Queue struct {
	registry      *collectors.Registry
	writer        *Writer
	logger        *slog.Logger
	capacity      int
	flushInterval time.Duration

	mu      sync.Mutex
	buf     []Event
	dropped uint64

	full   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates an ingestion queue with a fixed capacity. The capacity
// doubles as the batch size handed to the writer on each drain.
func NewQueue(registry *collectors.Registry, writer *Writer, logger *slog.Logger, capacity int, flushInterval time.Duration) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		registry:      registry,
		writer:        writer,
		logger:        logger,
		capacity:      capacity,
		flushInterval: flushInterval,
		buf:           make([]Event, 0, capacity),
		full:          make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Submit validates and enqueues one event. The collector reference is
// checked before the event ever enters the buffer; the timestamp is stamped
// here with ingestion-time UTC regardless of what the client sent.
func (q *Queue) Submit(input SubmitInput) (SubmitResult, error) {
	if input.CollectorID == "" || input.URL == "" {
		return SubmitDropped, ErrMissingField
	}

	exists, err := q.registry.Exists(input.CollectorID)
	if err != nil {
		return SubmitDropped, fmt.Errorf("failed to validate collector: %w", err)
	}
	if !exists {
		return SubmitDropped, &UnknownCollectorError{CollectorID: input.CollectorID}
	}

	event := Event{
		ID:          uuid.NewString(),
		URL:         NormalizeURL(input.URL),
		Referrer:    input.Referrer,
		Name:        input.Name,
		Timestamp:   time.Now().UTC(),
		CollectorID: input.CollectorID,
	}

	q.mu.Lock()
	if len(q.buf) >= q.capacity {
		q.dropped++
		dropped := q.dropped
		q.mu.Unlock()
		q.logger.Warn("Ingestion buffer at capacity, event dropped",
			slog.String("collector_id", input.CollectorID),
			slog.Uint64("dropped_total", dropped))
		return SubmitDropped, nil
	}
	q.buf = append(q.buf, event)
	atCapacity := len(q.buf) == q.capacity
	q.mu.Unlock()

	if atCapacity {
		select {
		case q.full <- struct{}{}:
		default:
		}
	}

	return SubmitAccepted, nil
}

// Start launches the drain loop. Implements cartridge.BackgroundWorker.
func (q *Queue) Start() error {
	q.wg.Add(1)
	go q.drainLoop()
	q.logger.Info("Ingestion queue started",
		slog.Int("capacity", q.capacity),
		slog.Duration("flush_interval", q.flushInterval))
	return nil
}

// Stop flushes the remaining buffer and halts the drain loop.
// Implements cartridge.BackgroundWorker.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
	q.logger.Info("Ingestion queue stopped")
}

func (q *Queue) drainLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.full:
			q.flush(q.ctx)
		case <-ticker.C:
			q.flush(q.ctx)
		case <-q.ctx.Done():
			// Final drain so a graceful shutdown does not lose the tail.
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			q.flush(ctx)
			cancel()
			return
		}
	}
}

// Flush synchronously drains the buffer into one batch write. Exposed for
// the drain loop and for tests; safe to call concurrently with Submit.
func (q *Queue) Flush(ctx context.Context) error {
	return q.flush(ctx)
}

func (q *Queue) flush(ctx context.Context) error {
	q.mu.Lock()
	if len(q.buf) == 0 {
		q.mu.Unlock()
		return nil
	}
	batch := q.buf
	q.buf = make([]Event, 0, q.capacity)
	q.mu.Unlock()

	written, err := q.writer.WriteBatch(ctx, batch)
	if err != nil {
		// The batch is lost; ingestion keeps going. Observable here only.
		q.logger.Error("Batch write failed, events lost",
			slog.Int("batch_size", len(batch)),
			slog.Any("error", err))
		return err
	}

	q.logger.Debug("Drained ingestion buffer", slog.Int("written", written))
	return nil
}

// Len returns the current number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// DroppedCount returns how many submissions were discarded at capacity.
func (q *Queue) DroppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
