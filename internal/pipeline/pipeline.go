// Package pipeline wires the delivery path for one application:
// capture → batch aggregator → offline store → transport.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/ember/internal/capture"
	"github.com/crimson-sun/ember/internal/config"
	"github.com/crimson-sun/ember/internal/connectivity"
	"github.com/crimson-sun/ember/internal/history"
	"github.com/crimson-sun/ember/internal/metrics"
	"github.com/crimson-sun/ember/internal/model"
	"github.com/crimson-sun/ember/internal/offline"
	"github.com/crimson-sun/ember/internal/schedule"
	"github.com/crimson-sun/ember/internal/storage"
	"github.com/crimson-sun/ember/internal/transport"
)

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	scheduler   schedule.Scheduler
	probe       connectivity.Probe
	logger      *slog.Logger
	captureOpts []capture.Option
	storeOpts   []offline.Option
	transport   transport.Transport
	noResume    bool
}

// WithScheduler replaces the timer source for delayed flushes.
func WithScheduler(s schedule.Scheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithProbe sets the connectivity probe used for the initial online state.
// Default: assume online.
func WithProbe(p connectivity.Probe) Option {
	return func(o *options) { o.probe = p }
}

// WithLogger sets the logger for every component. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransport makes FromConfig use t instead of the configured kind.
func WithTransport(t transport.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithStartupRetry controls whether a queue restored while online is retried
// in the background right after New. Default: true.
func WithStartupRetry(enabled bool) Option {
	return func(o *options) { o.noResume = !enabled }
}

// WithCaptureOptions passes extra options to the capture orchestrator.
func WithCaptureOptions(opts ...capture.Option) Option {
	return func(o *options) { o.captureOpts = append(o.captureOpts, opts...) }
}

// WithStoreOptions passes extra options to the offline store.
func WithStoreOptions(opts ...offline.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// Signals are the external lifecycle and connectivity notifications a
// pipeline listens to. Nil channels are ignored.
type Signals struct {
	PageHide     <-chan struct{}
	Connectivity <-chan bool
}

// Pipeline owns every component for one application id.
type Pipeline struct {
	cfg       config.Config
	ring      *history.Ring[model.Breadcrumb]
	capture   *capture.Orchestrator
	batcher   *Aggregator // nil when batching is disabled
	store     *offline.Store
	transport transport.Transport
	storage   storage.Storage
	health    *metrics.Health
	logger    *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	listeners sync.WaitGroup
	resume    sync.WaitGroup
	closeOnce sync.Once
}

// New builds a Pipeline. cfg should already be validated; st may be nil for
// memory-only operation. The persisted offline queue is loaded before New
// returns; if it is non-empty and the pipeline starts online, one retry pass
// runs in the background.
func New(cfg config.Config, tr transport.Transport, st storage.Storage, opts ...Option) *Pipeline {
	o := options{
		scheduler: schedule.Real{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:       cfg,
		ring:      history.New[model.Breadcrumb](cfg.App.HistoryCapacity),
		transport: tr,
		storage:   st,
		health:    metrics.New(),
		logger:    o.logger,
		ctx:       ctx,
		cancel:    cancel,
	}

	online := true
	if o.probe != nil {
		online = o.probe(ctx)
	}
	storeOpts := []offline.Option{
		offline.WithMaxCacheSize(cfg.Pipeline.MaxCacheSize),
		offline.WithMaxRetries(cfg.Pipeline.MaxRetries),
		offline.WithOnline(online),
		offline.WithLogger(o.logger),
		offline.WithHealth(p.health),
	}
	if cfg.Pipeline.CacheOnFailure {
		storeOpts = append(storeOpts, offline.WithCacheOnFailure())
	}
	p.store = offline.New(cfg.StorageKey(), st, tr, append(storeOpts, o.storeOpts...)...)

	var sink capture.Sink = capture.SinkFunc(p.sendOne)
	if cfg.Pipeline.Batching {
		p.batcher = newAggregator(p.sendBatch, cfg.Pipeline.BatchSize, cfg.Pipeline.FlushDelay, o.scheduler, p.health, o.logger)
		sink = capture.SinkFunc(p.batcher.Add)
	}

	captureOpts := append([]capture.Option{
		capture.WithPolicy(PolicyFromConfig(cfg.App)),
		capture.WithLogger(o.logger),
		capture.WithHealth(p.health),
	}, o.captureOpts...)
	p.capture = capture.New(cfg.App.ID, p.ring, sink, captureOpts...)

	if !o.noResume && p.store.Online() && p.store.Len() > 0 {
		p.startResume()
	}
	return p
}

// startResume runs one retry pass over the queue restored from a previous
// run. Close cancels it.
func (p *Pipeline) startResume() {
	p.resume.Add(1)
	p.listeners.Add(1)
	go func() {
		defer p.listeners.Done()
		defer p.resume.Done()
		p.logger.Info("pipeline: retrying restored reports", "pending", p.store.Len())
		p.store.RetryPass(p.ctx)
	}()
}

func (p *Pipeline) sendOne(r model.EventRecord) {
	p.store.Send(p.ctx, transport.Single(r))
}

func (p *Pipeline) sendBatch(batch []model.QueuedItem) {
	reports := make([]model.EventRecord, len(batch))
	for i, it := range batch {
		reports[i] = it.Report
	}
	p.store.Send(p.ctx, transport.Batched(reports))
}

// Capture records an observation. It never blocks on the network (beyond
// what the configured transport does) and never returns an error.
func (p *Pipeline) Capture(raw any, opts capture.Options) capture.Outcome {
	return p.capture.Capture(raw, opts)
}

// Report sends an already-built record through the before-report hooks.
func (p *Pipeline) Report(r model.EventRecord) {
	p.capture.Report(r)
}

// AddBreadcrumb records recent activity for later events.
func (p *Pipeline) AddBreadcrumb(typ, message string, data map[string]any) {
	p.capture.AddBreadcrumb(typ, message, data)
}

// Use registers a plugin and runs its Setup with this pipeline as the handle.
func (p *Pipeline) Use(pl capture.Plugin) {
	p.capture.Use(pl)
	if pl.Setup != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Warn("pipeline: plugin setup panicked", "plugin", pl.Name, "panic", r)
				}
			}()
			pl.Setup(p)
		}()
	}
}

// SetPolicy swaps the capture policy (used by config hot reload).
func (p *Pipeline) SetPolicy(pol capture.Policy) {
	p.capture.SetPolicy(pol)
}

// Flush pushes every buffered record downstream now.
func (p *Pipeline) Flush() {
	if p.batcher != nil {
		p.batcher.Flush()
	}
}

// PageHide handles the "about to be discarded" lifecycle signal.
func (p *Pipeline) PageHide() {
	p.logger.Debug("pipeline: page hide, flushing")
	p.Flush()
}

// SetOnline applies a connectivity signal to the offline store.
func (p *Pipeline) SetOnline(online bool) {
	p.store.SetOnline(p.ctx, online)
}

// RetryPass retries cached records now, e.g. from a caller-driven timer.
// It waits for the startup retry, if any, before starting its own pass.
func (p *Pipeline) RetryPass(ctx context.Context) {
	p.resume.Wait()
	p.store.RetryPass(ctx)
}

// Listen consumes lifecycle and connectivity signals until Close.
func (p *Pipeline) Listen(sig Signals) {
	if sig.PageHide == nil && sig.Connectivity == nil {
		return
	}
	p.listeners.Add(1)
	go func() {
		defer p.listeners.Done()
		pageHide, conn := sig.PageHide, sig.Connectivity
		for {
			select {
			case <-p.ctx.Done():
				return
			case _, ok := <-pageHide:
				if !ok {
					pageHide = nil
					continue
				}
				p.PageHide()
			case online, ok := <-conn:
				if !ok {
					conn = nil
					continue
				}
				p.SetOnline(online)
			}
			if pageHide == nil && conn == nil {
				return
			}
		}
	}()
}

// MonitorConnectivity polls probe every interval until Close and applies
// each change through SetOnline.
func (p *Pipeline) MonitorConnectivity(probe connectivity.Probe, interval time.Duration) {
	if probe == nil || interval <= 0 {
		return
	}
	p.Listen(Signals{Connectivity: connectivity.Watch(p.ctx, probe, interval, p.Online())})
}

// Health returns the current counters.
func (p *Pipeline) Health() metrics.Snapshot {
	return p.health.Snapshot()
}

// Pending returns the cached offline queue, oldest first.
func (p *Pipeline) Pending() []model.CachedItem {
	return p.store.Pending()
}

// Queued returns how many records wait in the aggregator.
func (p *Pipeline) Queued() int {
	if p.batcher == nil {
		return 0
	}
	return p.batcher.Len()
}

// Online reports the offline store's connectivity state.
func (p *Pipeline) Online() bool {
	return p.store.Online()
}

// SessionID returns the session id stamped on records.
func (p *Pipeline) SessionID() string {
	return p.capture.SessionID()
}

// Close tears the pipeline down: plugins first, then listeners, then a final
// flush, then the transport and storage. Safe to call more than once.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.capture.Teardown()
		if p.batcher != nil {
			p.batcher.Close()
		}
		p.cancel()
		p.listeners.Wait()

		var errs []error
		if p.transport != nil {
			errs = append(errs, p.transport.Close())
		}
		if p.storage != nil {
			errs = append(errs, p.storage.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}
