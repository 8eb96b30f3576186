package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/ember/internal/model"
)

const (
	defaultBeaconBuffer = 64
	defaultDrainTimeout = 5 * time.Second
)

// ErrUnavailable is returned when a fire-and-forget transport can't accept a
// payload right now (buffer full or already closed).
var ErrUnavailable = errors.New("transport unavailable")

// BeaconOption configures a Beacon.
type BeaconOption func(*Beacon)

// WithBufferSize sets how many payloads may wait for delivery. Default: 64.
func WithBufferSize(n int) BeaconOption {
	return func(b *Beacon) { b.bufSize = n }
}

// WithOnError sets the callback invoked when a background delivery fails.
// Default: logs a warning through the beacon's logger.
func WithOnError(f func(error)) BeaconOption {
	return func(b *Beacon) { b.errFunc = f }
}

// WithBeaconLogger sets the logger for background delivery diagnostics.
// Default: slog.Default().
func WithBeaconLogger(l *slog.Logger) BeaconOption {
	return func(b *Beacon) { b.logger = l }
}

// Beacon is a non-blocking, fire-and-forget transport. Send queues the
// payload and returns immediately; a background goroutine hands queued
// payloads to the inner transport. Delivery outcomes after queueing go to
// errFunc, never back to the caller.
type Beacon struct {
	inner   Transport
	ch      chan Payload
	done    chan struct{}
	errFunc func(error)
	bufSize int
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewBeacon wraps inner. The drain goroutine starts immediately. A buffer
// size below one falls back to the default.
func NewBeacon(inner Transport, opts ...BeaconOption) *Beacon {
	b := &Beacon{
		inner:   inner,
		bufSize: defaultBeaconBuffer,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.bufSize <= 0 {
		b.bufSize = defaultBeaconBuffer
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.errFunc == nil {
		b.errFunc = func(err error) { b.logger.Warn("beacon delivery error", "error", err) }
	}
	b.ch = make(chan Payload, b.bufSize)
	b.done = make(chan struct{})
	go b.drain()
	return b
}

// Send queues p without blocking. It fails with ErrUnavailable when the
// buffer is full or the beacon is closed.
func (b *Beacon) Send(_ context.Context, p Payload) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("%w: %w: beacon closed", model.ErrTransport, ErrUnavailable)
	}
	select {
	case b.ch <- p:
		return nil
	default:
		return fmt.Errorf("%w: %w: beacon buffer full", model.ErrTransport, ErrUnavailable)
	}
}

// Close stops accepting payloads, waits (bounded) for queued ones to drain,
// then closes the inner transport.
func (b *Beacon) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.ch)
	b.mu.Unlock()

	select {
	case <-b.done:
	case <-time.After(defaultDrainTimeout):
		b.logger.Warn("beacon drain timed out")
	}
	return b.inner.Close()
}

func (b *Beacon) drain() {
	defer close(b.done)
	for p := range b.ch {
		if err := SafeSend(context.Background(), b.inner, p); err != nil {
			b.errFunc(err)
		}
	}
}
