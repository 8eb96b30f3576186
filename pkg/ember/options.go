package ember

import (
	"log/slog"
	"time"

	"github.com/crimson-sun/ember/internal/config"
)

type options struct {
	configFile string
	edits      []func(*config.Config)
	transport  Transport
	logger     *slog.Logger
	plugins    []Plugin
}

// Option configures a Client.
type Option func(*options)

func edit(f func(*config.Config)) Option {
	return func(o *options) { o.edits = append(o.edits, f) }
}

// WithConfigFile loads settings from a YAML file before any other option is
// applied. EMBER_* environment variables still override the file.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithEndpoint sets the collector URL.
func WithEndpoint(url string) Option {
	return edit(func(c *config.Config) { c.Transport.Endpoint = url })
}

// WithHeaders sets extra HTTP headers sent with every request.
func WithHeaders(h map[string]string) Option {
	return edit(func(c *config.Config) { c.Transport.Headers = h })
}

// WithTransportKind selects a registered transport: "beacon" (default),
// "http", or "stdout".
func WithTransportKind(kind string) Option {
	return edit(func(c *config.Config) { c.Transport.Kind = kind })
}

// WithTransport replaces the configured transport with t. The Client closes
// t on Close.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithEnabled turns capturing on or off. Default: on.
func WithEnabled(on bool) Option {
	return edit(func(c *config.Config) { c.App.Enabled = on })
}

// WithSampleRate sets the probability in [0,1] that a non-error event is
// kept. Default: 1.
func WithSampleRate(r float64) Option {
	return edit(func(c *config.Config) { c.App.SampleRate = r })
}

// WithErrorSampleRate sets the probability in [0,1] that an error or fatal
// event is kept. Default: 1.
func WithErrorSampleRate(r float64) Option {
	return edit(func(c *config.Config) { c.App.ErrorSampleRate = r })
}

// WithIgnorePatterns drops events whose message or URL matches any pattern.
// Patterns are substrings, or "re:<regexp>" / "glob:<pattern>".
func WithIgnorePatterns(patterns ...string) Option {
	return edit(func(c *config.Config) { c.App.IgnorePatterns = patterns })
}

// WithHistoryCapacity sets how many breadcrumbs are kept. Default: 50.
func WithHistoryCapacity(n int) Option {
	return edit(func(c *config.Config) { c.App.HistoryCapacity = n })
}

// WithBatching groups up to size records per request, sending a partial
// group after delay. Default: 10 records, 1s.
func WithBatching(size int, delay time.Duration) Option {
	return edit(func(c *config.Config) {
		c.Pipeline.Batching = true
		c.Pipeline.BatchSize = size
		c.Pipeline.FlushDelay = delay
	})
}

// WithoutBatching sends every record on its own.
func WithoutBatching() Option {
	return edit(func(c *config.Config) { c.Pipeline.Batching = false })
}

// WithOfflineCache bounds the offline cache and sets how many failed retries
// a cached record survives. Default: 100 records, 3 retries.
func WithOfflineCache(maxSize, maxRetries int) Option {
	return edit(func(c *config.Config) {
		c.Pipeline.MaxCacheSize = maxSize
		c.Pipeline.MaxRetries = maxRetries
	})
}

// WithCacheOnFailure keeps records whose send failed while online in the
// offline cache, so the next retry pass delivers them. By default only
// records captured while offline are cached.
func WithCacheOnFailure() Option {
	return edit(func(c *config.Config) { c.Pipeline.CacheOnFailure = true })
}

// WithStorage selects where the offline cache lives: "file" (default),
// "sqlite", or "memory".
func WithStorage(kind, path string) Option {
	return edit(func(c *config.Config) {
		c.Storage.Kind = kind
		c.Storage.Path = path
	})
}

// WithConnectivityProbe polls url every interval and switches between
// online and offline delivery as reachability changes.
func WithConnectivityProbe(url string, interval time.Duration) Option {
	return edit(func(c *config.Config) {
		c.Connectivity.ProbeURL = url
		c.Connectivity.Interval = interval
	})
}

// WithLogger sets the logger for diagnostics. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPlugins registers plugins as if Use had been called for each.
func WithPlugins(plugins ...Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, plugins...) }
}
