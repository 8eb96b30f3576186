// Package capture turns raw observations into EventRecords: it normalizes
// input, applies filter and sampling policy, runs plugin hooks, and attaches
// a snapshot of recent breadcrumbs before handing the record downstream.
package capture

import (
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crimson-sun/ember/internal/history"
	"github.com/crimson-sun/ember/internal/metrics"
	"github.com/crimson-sun/ember/internal/model"
)

// Outcome reports what Capture did. Informational only.
type Outcome int

const (
	Reported Outcome = iota
	Disabled
	Filtered
	Sampled
	Vetoed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Reported:
		return "reported"
	case Disabled:
		return "disabled"
	case Filtered:
		return "filtered"
	case Sampled:
		return "sampled"
	case Vetoed:
		return "vetoed"
	default:
		return "failed"
	}
}

// Options are per-call capture settings.
type Options struct {
	Level        model.Level
	Tags         map[string]string
	Extra        map[string]any
	User         string
	SkipFilter   bool
	SkipSampling bool
}

// Policy is the hot-reloadable part of capture behaviour.
type Policy struct {
	Enabled         bool
	SampleRate      float64 // applied to debug/info/warning records
	ErrorSampleRate float64 // applied to error/fatal records
	IgnorePatterns  []string
}

// DefaultPolicy keeps every event.
func DefaultPolicy() Policy {
	return Policy{Enabled: true, SampleRate: 1, ErrorSampleRate: 1}
}

// Sink receives finished records.
type Sink interface {
	Submit(r model.EventRecord)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r model.EventRecord)

func (f SinkFunc) Submit(r model.EventRecord) { f(r) }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy sets the initial policy. Default: DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithSessionID fixes the session id. Default: a random UUID.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = id }
}

// WithEnvironment supplies default context (user agent, URL, viewport).
func WithEnvironment(f func() model.Context) Option {
	return func(o *Orchestrator) { o.environment = f }
}

// WithRand overrides the uniform [0,1) source used for sampling.
func WithRand(f func() float64) Option {
	return func(o *Orchestrator) { o.rand = f }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(f func() string) Option {
	return func(o *Orchestrator) { o.newID = f }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithHealth attaches counters.
func WithHealth(h *metrics.Health) Option {
	return func(o *Orchestrator) { o.health = h }
}

// Orchestrator is the capture entry point. Safe for concurrent use.
type Orchestrator struct {
	appID       string
	sessionID   string
	ring        *history.Ring[model.Breadcrumb]
	sink        Sink
	environment func() model.Context
	rand        func() float64
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
	health      *metrics.Health

	mu      sync.RWMutex
	policy  Policy
	matcher *Matcher
	plugins []Plugin
}

// New creates an Orchestrator for appID that records breadcrumbs into ring
// and hands finished records to sink.
func New(appID string, ring *history.Ring[model.Breadcrumb], sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		appID:       appID,
		ring:        ring,
		sink:        sink,
		environment: defaultEnvironment,
		rand:        rand.Float64,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      slog.Default(),
		policy:      DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	if o.ring == nil {
		o.ring = history.New[model.Breadcrumb](history.DefaultCapacity)
	}
	o.matcher = CompilePatterns(o.policy.IgnorePatterns, o.logger)
	return o
}

func defaultEnvironment() model.Context {
	return model.Context{
		UserAgent: fmt.Sprintf("ember-go (%s; %s) %s", runtime.GOOS, runtime.GOARCH, runtime.Version()),
	}
}

// SessionID returns the id stamped on every record.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// SetPolicy swaps the filter/sampling policy.
func (o *Orchestrator) SetPolicy(p Policy) {
	m := CompilePatterns(p.IgnorePatterns, o.logger)
	o.mu.Lock()
	o.policy = p
	o.matcher = m
	o.mu.Unlock()
}

// Policy returns the current policy.
func (o *Orchestrator) Policy() Policy {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p := o.policy
	p.IgnorePatterns = slices.Clone(p.IgnorePatterns)
	return p
}

// Use registers a plugin. Hooks run in registration order.
func (o *Orchestrator) Use(p Plugin) {
	o.mu.Lock()
	o.plugins = append(o.plugins, p)
	o.mu.Unlock()
}

// Teardown runs every plugin's Teardown, last registered first, and
// forgets the plugins.
func (o *Orchestrator) Teardown() {
	o.mu.Lock()
	plugins := o.plugins
	o.plugins = nil
	o.mu.Unlock()

	for i := len(plugins) - 1; i >= 0; i-- {
		if td := plugins[i].Teardown; td != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						o.logger.Warn("capture: plugin teardown panicked", "plugin", plugins[i].Name, "panic", r)
					}
				}()
				td()
			}()
		}
	}
}

// AddBreadcrumb records recent activity for later events.
func (o *Orchestrator) AddBreadcrumb(typ, message string, data map[string]any) {
	o.ring.Push(model.Breadcrumb{
		Timestamp: o.now(),
		Type:      typ,
		Message:   message,
		Data:      maps.Clone(data),
	})
}

// Capture normalizes raw, applies policy and hooks, and reports the result.
// It never panics and never returns an error to the caller.
func (o *Orchestrator) Capture(raw any, opts Options) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("capture: unexpected panic", "panic", r)
			out = Failed
		}
	}()

	ev := Normalize(raw)

	o.mu.RLock()
	pol := o.policy
	matcher := o.matcher
	plugins := slices.Clone(o.plugins)
	o.mu.RUnlock()

	if !pol.Enabled {
		return Disabled
	}
	o.health.IncCaptured()

	if !opts.SkipFilter {
		url := ""
		if ev.Context != nil {
			url = ev.Context.URL
		}
		if matcher.Match(ev.Message, url) {
			o.health.IncFiltered()
			o.logger.Debug("capture: dropped", "reason", model.ErrFiltered, "type", ev.Type)
			return Filtered
		}
	}

	if !opts.SkipSampling && !o.keep(pol, opts.Level) {
		o.health.IncSampled()
		o.logger.Debug("capture: dropped", "reason", model.ErrSampledOut, "type", ev.Type)
		return Sampled
	}

	ev, ok := o.runBeforeCapture(plugins, ev)
	if !ok {
		o.health.IncVetoed()
		return Vetoed
	}

	rec := o.build(ev, opts)
	rec = o.runMerge(plugins, rec, "after-capture", afterCapture)
	o.report(plugins, rec)
	return Reported
}

// Report runs before-report hooks and hands the record to the sink.
func (o *Orchestrator) Report(r model.EventRecord) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("capture: unexpected panic in report", "panic", p)
		}
	}()
	o.mu.RLock()
	plugins := slices.Clone(o.plugins)
	o.mu.RUnlock()
	o.report(plugins, r)
}

func (o *Orchestrator) report(plugins []Plugin, r model.EventRecord) {
	r = o.runMerge(plugins, r, "before-report", beforeReport)
	o.health.IncReported()
	o.sink.Submit(r)
}

// keep draws the sampling decision for a record of the given level.
func (o *Orchestrator) keep(p Policy, level model.Level) bool {
	rate := p.ErrorSampleRate
	switch level {
	case model.LevelDebug, model.LevelInfo, model.LevelWarning:
		rate = p.SampleRate
	}
	if rate >= 1 {
		return true
	}
	return o.rand() < rate
}

// build assembles the record: identity, context, breadcrumbs, and per-call
// options.
func (o *Orchestrator) build(ev model.RawEvent, opts Options) model.EventRecord {
	level := opts.Level
	if level == "" {
		level = model.LevelError
	}

	ctx := o.environment()
	ctx.Tags = maps.Clone(ctx.Tags)
	if ev.Context != nil {
		ctx.Tags = mergeTags(ctx.Tags, ev.Context.Tags)
		ev.Context.Tags = nil
		patch := model.EventRecord{Context: *ev.Context}
		base := model.EventRecord{Context: ctx}
		base.Merge(patch)
		ctx = base.Context
	}
	ctx.Tags = mergeTags(ctx.Tags, opts.Tags)
	if opts.User != "" {
		ctx.UserID = opts.User
	}

	crumbs := o.ring.Snapshot()
	for i := range crumbs {
		crumbs[i] = crumbs[i].Clone()
	}

	return model.EventRecord{
		AppID:       o.appID,
		Timestamp:   o.now(),
		SessionID:   o.sessionID,
		EventID:     o.newID(),
		Type:        ev.Type,
		Level:       level,
		Message:     ev.Message,
		Stack:       ev.Stack,
		Context:     ctx,
		Breadcrumbs: crumbs,
		Extra:       maps.Clone(opts.Extra),
	}
}

func mergeTags(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	maps.Copy(dst, src)
	return dst
}
