package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all ember configuration.
type Config struct {
	App          AppConfig
	Pipeline     PipelineConfig
	Transport    TransportConfig
	Storage      StorageConfig
	Connectivity ConnectivityConfig
	Log          LogConfig
}

// AppConfig holds capture policy settings.
type AppConfig struct {
	ID              string
	Enabled         bool
	SampleRate      float64
	ErrorSampleRate float64
	IgnorePatterns  []string
	HistoryCapacity int
}

// PipelineConfig holds batching and offline-retry settings.
type PipelineConfig struct {
	Batching     bool
	BatchSize    int
	FlushDelay   time.Duration
	MaxCacheSize int
	MaxRetries   int
	StorageKey   string

	// CacheOnFailure also caches records whose send failed while online.
	CacheOnFailure bool
}

// TransportConfig selects and configures the outbound transport.
type TransportConfig struct {
	Kind       string // "beacon", "http", "stdout"
	Endpoint   string
	Headers    map[string]string
	Timeout    time.Duration
	BufferSize int
}

// StorageConfig selects the durable store backing the offline queue.
type StorageConfig struct {
	Kind string // "file", "sqlite", "memory"
	Path string
}

// ConnectivityConfig controls the reachability probe.
type ConnectivityConfig struct {
	ProbeURL string
	Interval time.Duration
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "text", "auto"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		App: AppConfig{
			Enabled:         true,
			SampleRate:      1,
			ErrorSampleRate: 1,
			HistoryCapacity: 50,
		},
		Pipeline: PipelineConfig{
			Batching:     true,
			BatchSize:    10,
			FlushDelay:   time.Second,
			MaxCacheSize: 100,
			MaxRetries:   3,
		},
		Transport: TransportConfig{
			Kind:       "beacon",
			Timeout:    10 * time.Second,
			BufferSize: 64,
		},
		Storage: StorageConfig{
			Kind: "file",
			Path: ".ember",
		},
		Connectivity: ConnectivityConfig{
			Interval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads configuration from an optional YAML file with EMBER_* environment
// variables layered on top, falling back to Default() for anything unset.
// An empty path means environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix("EMBER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Default(), fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := Config{
		App: AppConfig{
			ID:              v.GetString("app.id"),
			Enabled:         v.GetBool("app.enabled"),
			SampleRate:      v.GetFloat64("app.sample_rate"),
			ErrorSampleRate: v.GetFloat64("app.error_sample_rate"),
			IgnorePatterns:  v.GetStringSlice("app.ignore_patterns"),
			HistoryCapacity: v.GetInt("app.history_capacity"),
		},
		Pipeline: PipelineConfig{
			Batching:     v.GetBool("pipeline.batching"),
			BatchSize:    v.GetInt("pipeline.batch_size"),
			FlushDelay:   v.GetDuration("pipeline.flush_delay"),
			MaxCacheSize: v.GetInt("pipeline.max_cache_size"),
			MaxRetries:   v.GetInt("pipeline.max_retries"),
			StorageKey:   v.GetString("pipeline.storage_key"),

			CacheOnFailure: v.GetBool("pipeline.cache_on_failure"),
		},
		Transport: TransportConfig{
			Kind:       v.GetString("transport.kind"),
			Endpoint:   v.GetString("transport.endpoint"),
			Headers:    v.GetStringMapString("transport.headers"),
			Timeout:    v.GetDuration("transport.timeout"),
			BufferSize: v.GetInt("transport.buffer_size"),
		},
		Storage: StorageConfig{
			Kind: v.GetString("storage.kind"),
			Path: v.GetString("storage.path"),
		},
		Connectivity: ConnectivityConfig{
			ProbeURL: v.GetString("connectivity.probe_url"),
			Interval: v.GetDuration("connectivity.interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	// Headers as "k=v,k2=v2" are easier to pass through the environment.
	if h := parseHeaders(os.Getenv("EMBER_TRANSPORT_HEADERS")); h != nil {
		cfg.Transport.Headers = h
	}
	if len(cfg.Transport.Headers) == 0 {
		cfg.Transport.Headers = nil
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("app.id", d.App.ID)
	v.SetDefault("app.enabled", d.App.Enabled)
	v.SetDefault("app.sample_rate", d.App.SampleRate)
	v.SetDefault("app.error_sample_rate", d.App.ErrorSampleRate)
	v.SetDefault("app.ignore_patterns", d.App.IgnorePatterns)
	v.SetDefault("app.history_capacity", d.App.HistoryCapacity)

	v.SetDefault("pipeline.batching", d.Pipeline.Batching)
	v.SetDefault("pipeline.batch_size", d.Pipeline.BatchSize)
	v.SetDefault("pipeline.flush_delay", d.Pipeline.FlushDelay)
	v.SetDefault("pipeline.max_cache_size", d.Pipeline.MaxCacheSize)
	v.SetDefault("pipeline.max_retries", d.Pipeline.MaxRetries)
	v.SetDefault("pipeline.storage_key", d.Pipeline.StorageKey)
	v.SetDefault("pipeline.cache_on_failure", d.Pipeline.CacheOnFailure)

	v.SetDefault("transport.kind", d.Transport.Kind)
	v.SetDefault("transport.endpoint", d.Transport.Endpoint)
	v.SetDefault("transport.timeout", d.Transport.Timeout)
	v.SetDefault("transport.buffer_size", d.Transport.BufferSize)

	v.SetDefault("storage.kind", d.Storage.Kind)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("connectivity.probe_url", d.Connectivity.ProbeURL)
	v.SetDefault("connectivity.interval", d.Connectivity.Interval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// parseHeaders reads "k=v,k2=v2". Returns nil for an empty string.
func parseHeaders(s string) map[string]string {
	if s == "" {
		return nil
	}
	var m map[string]string
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		if m == nil {
			m = make(map[string]string)
		}
		m[k] = strings.TrimSpace(v)
	}
	return m
}

// StorageKey returns the offline queue key, derived from the app id unless
// set explicitly.
func (c Config) StorageKey() string {
	if c.Pipeline.StorageKey != "" {
		return c.Pipeline.StorageKey
	}
	return "ember_offline_" + c.App.ID
}

// Validate replaces out-of-range values with defaults and returns one warning
// per fix. A missing app id is reported but left empty.
func (c *Config) Validate() []string {
	d := Default()
	var warnings []string
	fix := func(field string, bad any, apply func()) {
		warnings = append(warnings, fmt.Sprintf("%s: invalid value %v, using default", field, bad))
		apply()
	}

	if c.App.ID == "" {
		warnings = append(warnings, "app.id: not set; events will carry an empty app id")
	}
	if !validRate(c.App.SampleRate) {
		fix("app.sample_rate", c.App.SampleRate, func() { c.App.SampleRate = d.App.SampleRate })
	}
	if !validRate(c.App.ErrorSampleRate) {
		fix("app.error_sample_rate", c.App.ErrorSampleRate, func() { c.App.ErrorSampleRate = d.App.ErrorSampleRate })
	}
	if c.App.HistoryCapacity <= 0 {
		fix("app.history_capacity", c.App.HistoryCapacity, func() { c.App.HistoryCapacity = d.App.HistoryCapacity })
	}
	if c.Pipeline.BatchSize <= 0 {
		fix("pipeline.batch_size", c.Pipeline.BatchSize, func() { c.Pipeline.BatchSize = d.Pipeline.BatchSize })
	}
	if c.Pipeline.FlushDelay < 0 {
		fix("pipeline.flush_delay", c.Pipeline.FlushDelay, func() { c.Pipeline.FlushDelay = d.Pipeline.FlushDelay })
	}
	if c.Pipeline.MaxCacheSize <= 0 {
		fix("pipeline.max_cache_size", c.Pipeline.MaxCacheSize, func() { c.Pipeline.MaxCacheSize = d.Pipeline.MaxCacheSize })
	}
	if c.Pipeline.MaxRetries < 0 {
		fix("pipeline.max_retries", c.Pipeline.MaxRetries, func() { c.Pipeline.MaxRetries = d.Pipeline.MaxRetries })
	}
	return warnings
}

// validRate reports whether r is a probability. NaN fails every comparison,
// so it is rejected explicitly.
func validRate(r float64) bool {
	return !math.IsNaN(r) && r >= 0 && r <= 1
}
