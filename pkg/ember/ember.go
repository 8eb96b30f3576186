package ember

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crimson-sun/ember/internal/capture"
	"github.com/crimson-sun/ember/internal/config"
	"github.com/crimson-sun/ember/internal/connectivity"
	"github.com/crimson-sun/ember/internal/pipeline"
)

// Client captures events for one application id.
// Safe for concurrent use.
type Client struct {
	appID    string
	pipeline *pipeline.Pipeline
}

// New creates a Client for appID. Invalid settings fall back to defaults
// with a logged warning; a missing appID is warned about but allowed. An
// error is returned only when no transport can be built.
func New(appID string, opts ...Option) (*Client, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	cfg := config.Default()
	if o.configFile != "" {
		loaded, err := config.Load(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("ember: %w", err)
		}
		cfg = loaded
	}
	for _, e := range o.edits {
		e(&cfg)
	}
	if appID != "" {
		cfg.App.ID = appID
	}
	for _, w := range cfg.Validate() {
		o.logger.Warn("ember: config", "warning", w)
	}

	pipeOpts := []pipeline.Option{pipeline.WithLogger(o.logger)}
	if o.transport != nil {
		pipeOpts = append(pipeOpts, pipeline.WithTransport(o.transport))
	}
	p, err := pipeline.FromConfig(cfg, pipeOpts...)
	if err != nil {
		return nil, fmt.Errorf("ember: %w", err)
	}

	c := &Client{appID: cfg.App.ID, pipeline: p}
	if cfg.Connectivity.ProbeURL != "" {
		p.MonitorConnectivity(connectivity.HTTPProbe(cfg.Connectivity.ProbeURL, cfg.Transport.Timeout), cfg.Connectivity.Interval)
	}

	for _, pl := range o.plugins {
		p.Use(pl)
	}
	return c, nil
}

// AppID returns the application id stamped on every record.
func (c *Client) AppID() string {
	return c.appID
}

// SessionID returns the id shared by every record from this Client.
func (c *Client) SessionID() string {
	return c.pipeline.SessionID()
}

// Capture records ev, which may be an Event, an error, a string, or any
// other value (coerced to a custom event).
func (c *Client) Capture(ev any, opts CaptureOptions) Outcome {
	return c.pipeline.Capture(ev, opts)
}

// CaptureError records err at error level.
func (c *Client) CaptureError(err error) Outcome {
	return c.pipeline.Capture(err, capture.Options{Level: LevelError})
}

// CaptureMessage records a plain message at the given level.
func (c *Client) CaptureMessage(msg string, level Level) Outcome {
	return c.pipeline.Capture(Event{Type: "message", Message: msg}, capture.Options{Level: level})
}

// AddBreadcrumb notes recent activity; the latest notes ride along with
// every later record.
func (c *Client) AddBreadcrumb(typ, message string, data map[string]any) {
	c.pipeline.AddBreadcrumb(typ, message, data)
}

// Use registers a plugin and runs its Setup.
func (c *Client) Use(p Plugin) {
	c.pipeline.Use(p)
}

// Flush sends buffered records now.
func (c *Client) Flush() {
	c.pipeline.Flush()
}

// PageHide tells the Client the host is about to go away. Buffered records
// are flushed.
func (c *Client) PageHide() {
	c.pipeline.PageHide()
}

// SetOnline reports a connectivity change. Coming back online retries every
// cached record before returning.
func (c *Client) SetOnline(online bool) {
	c.pipeline.SetOnline(online)
}

// RetryPending retries cached records now.
func (c *Client) RetryPending(ctx context.Context) {
	c.pipeline.RetryPass(ctx)
}

// Pending returns how many records wait in the offline cache.
func (c *Client) Pending() int {
	return len(c.pipeline.Pending())
}

// Health returns delivery counters.
func (c *Client) Health() Health {
	return c.pipeline.Health()
}

// Close tears down plugins, flushes, and releases the transport and
// storage. Must be called when the Client is no longer needed.
func (c *Client) Close() error {
	return c.pipeline.Close()
}
