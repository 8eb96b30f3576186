// Package metrics tracks delivery counters for the health snapshot.
package metrics

import (
	"sync"
	"time"
)

// Health tracks pipeline operational counters. All methods are safe for
// concurrent use; a nil *Health is a no-op.
type Health struct {
	mu        sync.RWMutex
	startTime time.Time

	captured int64
	reported int64
	filtered int64
	sampled  int64
	vetoed   int64

	flushes      int64
	flushedItems int64

	sent         int64
	sendFailures int64
	sendLatency  time.Duration

	cached  int64
	retried int64
	dropped int64
	evicted int64

	persistFailures int64
}

// New creates a Health with zeroed counters.
func New() *Health {
	return &Health{startTime: time.Now()}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	UptimeSeconds      float64 `json:"uptime_seconds" yaml:"uptime_seconds"`
	Captured           int64   `json:"captured" yaml:"captured"`
	Reported           int64   `json:"reported" yaml:"reported"`
	Filtered           int64   `json:"filtered" yaml:"filtered"`
	Sampled            int64   `json:"sampled" yaml:"sampled"`
	Vetoed             int64   `json:"vetoed" yaml:"vetoed"`
	Flushes            int64   `json:"flushes" yaml:"flushes"`
	AvgFlushSize       float64 `json:"avg_flush_size" yaml:"avg_flush_size"`
	Sent               int64   `json:"sent" yaml:"sent"`
	SendFailures       int64   `json:"send_failures" yaml:"send_failures"`
	AvgSendLatencyMs   float64 `json:"avg_send_latency_ms" yaml:"avg_send_latency_ms"`
	Cached             int64   `json:"cached" yaml:"cached"`
	Retried            int64   `json:"retried" yaml:"retried"`
	Dropped            int64   `json:"dropped" yaml:"dropped"`
	Evicted            int64   `json:"evicted" yaml:"evicted"`
	PersistenceFailure int64   `json:"persistence_failures" yaml:"persistence_failures"`
}

// add must only be called on a non-nil receiver.
func (h *Health) add(field *int64, n int64) {
	h.mu.Lock()
	*field += n
	h.mu.Unlock()
}

func (h *Health) IncCaptured() {
	if h != nil {
		h.add(&h.captured, 1)
	}
}

func (h *Health) IncReported() {
	if h != nil {
		h.add(&h.reported, 1)
	}
}

func (h *Health) IncFiltered() {
	if h != nil {
		h.add(&h.filtered, 1)
	}
}

func (h *Health) IncSampled() {
	if h != nil {
		h.add(&h.sampled, 1)
	}
}

func (h *Health) IncVetoed() {
	if h != nil {
		h.add(&h.vetoed, 1)
	}
}

func (h *Health) AddCached(n int) {
	if h != nil {
		h.add(&h.cached, int64(n))
	}
}

func (h *Health) IncRetried() {
	if h != nil {
		h.add(&h.retried, 1)
	}
}

func (h *Health) IncDropped() {
	if h != nil {
		h.add(&h.dropped, 1)
	}
}

func (h *Health) AddEvicted(n int) {
	if h != nil {
		h.add(&h.evicted, int64(n))
	}
}

func (h *Health) IncPersistFailure() {
	if h != nil {
		h.add(&h.persistFailures, 1)
	}
}

// ObserveFlush records a flush of n items.
func (h *Health) ObserveFlush(n int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushes++
	h.flushedItems += int64(n)
}

// ObserveSend records one transport attempt and how long it took.
func (h *Health) ObserveSend(ok bool, took time.Duration) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ok {
		h.sent++
	} else {
		h.sendFailures++
	}
	h.sendLatency += took
}

// Snapshot returns the current counters with averages computed on demand.
func (h *Health) Snapshot() Snapshot {
	if h == nil {
		return Snapshot{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Snapshot{
		UptimeSeconds:      time.Since(h.startTime).Seconds(),
		Captured:           h.captured,
		Reported:           h.reported,
		Filtered:           h.filtered,
		Sampled:            h.sampled,
		Vetoed:             h.vetoed,
		Flushes:            h.flushes,
		Sent:               h.sent,
		SendFailures:       h.sendFailures,
		Cached:             h.cached,
		Retried:            h.retried,
		Dropped:            h.dropped,
		Evicted:            h.evicted,
		PersistenceFailure: h.persistFailures,
	}
	if h.flushes > 0 {
		s.AvgFlushSize = float64(h.flushedItems) / float64(h.flushes)
	}
	if attempts := h.sent + h.sendFailures; attempts > 0 {
		s.AvgSendLatencyMs = float64(h.sendLatency.Milliseconds()) / float64(attempts)
	}
	return s
}
