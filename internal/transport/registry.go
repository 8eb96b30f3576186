package transport

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Config holds the settings a registered constructor may use.
type Config struct {
	Endpoint   string
	Headers    map[string]string
	Timeout    time.Duration
	BufferSize int
	Logger     *slog.Logger
}

// Constructor builds a Transport from config.
type Constructor func(cfg Config) (Transport, error)

var registry = map[string]Constructor{
	"http":   newHTTPFromConfig,
	"beacon": newBeaconFromConfig,
	"stdout": func(Config) (Transport, error) { return NewStdout(), nil },
}

// Register adds a transport constructor under the given name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Get returns the transport constructor for the given name.
func Get(name string) (Constructor, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", name)
	}
	return ctor, nil
}

// Names returns the registered transport names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func httpOptions(cfg Config) []HTTPOption {
	var opts []HTTPOption
	if len(cfg.Headers) > 0 {
		opts = append(opts, WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	return opts
}

func newHTTPFromConfig(cfg Config) (Transport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http transport: endpoint required")
	}
	return NewHTTP(cfg.Endpoint, httpOptions(cfg)...), nil
}

// newBeaconFromConfig builds the default browser-style stack: a beacon that
// falls back to a blocking POST when its buffer is full.
func newBeaconFromConfig(cfg Config) (Transport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("beacon transport: endpoint required")
	}
	opts := []BeaconOption{WithBufferSize(cfg.BufferSize), WithBeaconLogger(cfg.Logger)}
	beacon := NewBeacon(NewHTTP(cfg.Endpoint, httpOptions(cfg)...), opts...)
	fb := NewFallback(beacon, NewHTTP(cfg.Endpoint, httpOptions(cfg)...))
	fb.Logger = cfg.Logger
	return fb, nil
}
