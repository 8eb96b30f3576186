// Package offline implements the durable last-resort sink: records go straight
// to the transport while online, and are persisted and retried otherwise.
package offline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/ember/internal/metrics"
	"github.com/crimson-sun/ember/internal/model"
	"github.com/crimson-sun/ember/internal/storage"
	"github.com/crimson-sun/ember/internal/transport"
)

const (
	defaultMaxCacheSize = 100
	defaultMaxRetries   = 3
)

// Option configures a Store.
type Option func(*Store)

// WithMaxCacheSize bounds the cached queue. Default: 100.
func WithMaxCacheSize(n int) Option {
	return func(s *Store) { s.maxCacheSize = n }
}

// WithMaxRetries sets how many failed retries an item survives. Default: 3.
func WithMaxRetries(n int) Option {
	return func(s *Store) { s.maxRetries = n }
}

// WithOnline sets the initial connectivity state. Default: online.
func WithOnline(online bool) Option {
	return func(s *Store) { s.online = online }
}

// WithCacheOnFailure caches records whose online send failed instead of
// only returning the error.
func WithCacheOnFailure() Option {
	return func(s *Store) { s.cacheOnFailure = true }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithHealth attaches delivery counters.
func WithHealth(h *metrics.Health) Option {
	return func(s *Store) { s.health = h }
}

// WithClock overrides time.Now for CachedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type entry struct {
	id   uint64
	item model.CachedItem
}

// Store is the durable offline queue. Connectivity is a two-state machine:
// Online sends directly, Offline caches. Going offline→online runs exactly
// one retry pass.
type Store struct {
	key            string
	storage        storage.Storage
	transport      transport.Transport
	maxCacheSize   int
	maxRetries     int
	cacheOnFailure bool
	logger         *slog.Logger
	health         *metrics.Health
	now            func() time.Time

	mu          sync.Mutex
	queue       []entry
	nextID      uint64
	online      bool
	passRunning bool
	passPending bool
	memoryOnly  bool
}

// New creates a Store persisting under key and loads any previously saved
// queue before returning. A nil st, or one that fails to load, puts the
// store in memory-only mode.
func New(key string, st storage.Storage, tr transport.Transport, opts ...Option) *Store {
	s := &Store{
		key:          key,
		storage:      st,
		transport:    tr,
		maxCacheSize: defaultMaxCacheSize,
		maxRetries:   defaultMaxRetries,
		online:       true,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxCacheSize <= 0 {
		s.maxCacheSize = defaultMaxCacheSize
	}
	if s.maxRetries < 0 {
		s.maxRetries = defaultMaxRetries
	}
	s.restore()
	return s
}

// restore loads the persisted queue, trimming it to the current bound.
func (s *Store) restore() {
	if s.storage == nil {
		s.memoryOnly = true
		return
	}
	items, err := s.storage.Load(s.key)
	if err != nil {
		s.degrade(fmt.Errorf("%w: load: %w", model.ErrPersistence, err))
		return
	}
	for _, it := range items {
		s.appendLocked(it)
	}
	if len(items) > 0 {
		s.logger.Info("offline: restored cached reports", "key", s.key, "count", len(s.queue))
	}
}

// Send delivers the payload directly while online; offline it caches the
// payload's records and returns nil.
func (s *Store) Send(ctx context.Context, p transport.Payload) error {
	if p.Len() == 0 {
		return nil
	}
	if !s.Online() {
		s.Cache(p.Reports...)
		return nil
	}

	err := s.deliver(ctx, p)
	if err != nil {
		s.logger.Warn("offline: send failed", "reports", p.Len(), "error", err)
		if s.cacheOnFailure {
			s.Cache(p.Reports...)
		}
	}
	return err
}

// Cache wraps records as CachedItems, appends them (evicting the oldest
// beyond the bound) and persists the full queue.
func (s *Store) Cache(reports ...model.EventRecord) {
	if len(reports) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for _, r := range reports {
		evicted += s.appendLocked(model.CachedItem{Report: r, CachedAt: now})
	}
	s.health.AddCached(len(reports))
	if evicted > 0 {
		s.health.AddEvicted(evicted)
		s.logger.Debug("offline: evicted oldest cached reports", "count", evicted, "max", s.maxCacheSize)
	}
	s.persistLocked()
}

// appendLocked adds it to the tail and returns how many items were evicted.
func (s *Store) appendLocked(it model.CachedItem) int {
	s.nextID++
	s.queue = append(s.queue, entry{id: s.nextID, item: it})
	over := len(s.queue) - s.maxCacheSize
	if over <= 0 {
		return 0
	}
	s.queue = append(s.queue[:0:0], s.queue[over:]...)
	return over
}

// SetOnline applies a connectivity signal. An offline→online transition
// runs one retry pass before returning.
func (s *Store) SetOnline(ctx context.Context, online bool) {
	s.mu.Lock()
	was := s.online
	s.online = online
	s.mu.Unlock()

	switch {
	case !was && online:
		s.logger.Info("offline: connectivity restored", "pending", s.Len())
		s.RetryPass(ctx)
	case was && !online:
		s.logger.Info("offline: connectivity lost")
	}
}

// Online reports the current connectivity state.
func (s *Store) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Len returns the number of cached items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Pending returns a copy of the cached queue, oldest first.
func (s *Store) Pending() []model.CachedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

// MemoryOnly reports whether persistence has been abandoned.
func (s *Store) MemoryOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memoryOnly
}

func (s *Store) itemsLocked() []model.CachedItem {
	items := make([]model.CachedItem, len(s.queue))
	for i, e := range s.queue {
		items[i] = e.item
	}
	return items
}

// persistLocked writes the whole queue. Caller must hold s.mu.
func (s *Store) persistLocked() {
	if s.memoryOnly {
		return
	}
	if err := s.storage.Save(s.key, s.itemsLocked()); err != nil {
		s.degrade(fmt.Errorf("%w: save: %w", model.ErrPersistence, err))
	}
}

// degrade switches to memory-only operation. Logged once.
func (s *Store) degrade(err error) {
	s.health.IncPersistFailure()
	if s.memoryOnly {
		return
	}
	s.memoryOnly = true
	s.logger.Warn("offline: durable storage unavailable, continuing in memory", "key", s.key, "error", err)
}

// deliver sends through the transport and records latency.
func (s *Store) deliver(ctx context.Context, p transport.Payload) error {
	start := time.Now()
	err := transport.SafeSend(ctx, s.transport, p)
	s.health.ObserveSend(err == nil, time.Since(start))
	return err
}
