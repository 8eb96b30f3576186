package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/ember/internal/metrics"
	"github.com/crimson-sun/ember/internal/model"
	"github.com/crimson-sun/ember/internal/schedule"
)

// FlushFunc receives a drained batch, in insertion order.
type FlushFunc func(batch []model.QueuedItem)

// Aggregator accumulates records and hands them downstream as a group when
// batchSize is reached, when delay has passed since the first unflushed
// record, or when Flush is called.
type Aggregator struct {
	next      FlushFunc
	batchSize int
	delay     time.Duration
	sched     schedule.Scheduler
	now       func() time.Time
	health    *metrics.Health
	logger    *slog.Logger

	// deliverMu is taken before mu is released so batches reach next in
	// the order they were drained.
	deliverMu sync.Mutex

	mu     sync.Mutex
	queue  []model.QueuedItem
	task   schedule.Task
	gen    uint64 // bumps on every drain so a late timer can tell it's stale
	closed bool
}

func newAggregator(next FlushFunc, batchSize int, delay time.Duration, sched schedule.Scheduler, health *metrics.Health, logger *slog.Logger) *Aggregator {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Aggregator{
		next:      next,
		batchSize: batchSize,
		delay:     delay,
		sched:     sched,
		now:       time.Now,
		health:    health,
		logger:    logger,
	}
}

// Add appends r. A full queue is flushed immediately; otherwise a single
// delayed flush is armed if one isn't already pending.
func (a *Aggregator) Add(r model.EventRecord) {
	a.mu.Lock()
	a.queue = append(a.queue, model.QueuedItem{Report: r, EnqueuedAt: a.now()})

	if len(a.queue) >= a.batchSize || a.closed {
		a.flushLocked()
		return
	}

	if a.task == nil {
		gen := a.gen
		a.task = a.sched.AfterFunc(a.delay, func() { a.flushIfCurrent(gen) })
	}
	a.mu.Unlock()
}

// Flush drains the queue now. A no-op when empty.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	a.flushLocked()
}

// Len returns the number of queued records.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Close flushes what's queued. Records added afterwards pass straight through.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	a.flushLocked()
}

func (a *Aggregator) flushIfCurrent(gen uint64) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.flushLocked()
}

// flushLocked drains the queue and delivers it. Caller must hold a.mu;
// it is released before delivery.
func (a *Aggregator) flushLocked() {
	batch := a.drainLocked()
	if len(batch) == 0 {
		a.mu.Unlock()
		return
	}
	a.deliverMu.Lock()
	a.mu.Unlock()
	defer a.deliverMu.Unlock()
	a.deliver(batch)
}

// drainLocked cancels the pending timer and takes the whole queue.
// Caller must hold a.mu.
func (a *Aggregator) drainLocked() []model.QueuedItem {
	if a.task != nil {
		a.task.Stop()
		a.task = nil
	}
	a.gen++
	if len(a.queue) == 0 {
		return nil
	}
	batch := a.queue
	a.queue = nil
	return batch
}

func (a *Aggregator) deliver(batch []model.QueuedItem) {
	if len(batch) == 0 {
		return
	}
	a.health.ObserveFlush(len(batch))
	a.logger.Debug("pipeline: flushing batch", "size", len(batch))
	a.next(batch)
}
