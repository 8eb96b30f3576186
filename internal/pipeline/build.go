package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/crimson-sun/ember/internal/capture"
	"github.com/crimson-sun/ember/internal/config"
	"github.com/crimson-sun/ember/internal/connectivity"
	"github.com/crimson-sun/ember/internal/storage"
	"github.com/crimson-sun/ember/internal/transport"
)

// PolicyFromConfig extracts the capture policy from app settings. Used at
// construction and again on config hot reload.
func PolicyFromConfig(app config.AppConfig) capture.Policy {
	return capture.Policy{
		Enabled:         app.Enabled,
		SampleRate:      app.SampleRate,
		ErrorSampleRate: app.ErrorSampleRate,
		IgnorePatterns:  app.IgnorePatterns,
	}
}

// OpenStorage creates the durable store named by cfg.Kind. The "memory" kind
// returns a process-local store; an empty kind returns nil (no persistence).
func OpenStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Kind {
	case "":
		return nil, nil
	case "memory":
		return storage.NewMemory(), nil
	case "file":
		st, err := storage.NewFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "ember.db")
		}
		st, err := storage.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage: %s", cfg.Kind)
	}
}

// OpenTransport creates the transport named by cfg.Kind from the registry.
// A comma-separated kind ("http,stdout") fans out to all of them. Background
// delivery failures are logged through logger.
func OpenTransport(cfg config.TransportConfig, logger *slog.Logger) (transport.Transport, error) {
	kinds := strings.Split(cfg.Kind, ",")
	targets := make([]transport.Transport, 0, len(kinds))
	for _, kind := range kinds {
		ctor, err := transport.Get(strings.TrimSpace(kind))
		if err != nil {
			closeAll(targets)
			return nil, err
		}
		t, err := ctor(transport.Config{
			Endpoint:   cfg.Endpoint,
			Headers:    cfg.Headers,
			Timeout:    cfg.Timeout,
			BufferSize: cfg.BufferSize,
			Logger:     logger,
		})
		if err != nil {
			closeAll(targets)
			return nil, err
		}
		targets = append(targets, t)
	}
	if len(targets) == 1 {
		return targets[0], nil
	}
	return transport.NewMulti(targets...), nil
}

func closeAll(ts []transport.Transport) {
	for _, t := range ts {
		t.Close()
	}
}

// FromConfig opens the configured transport and storage and builds a
// Pipeline around them. A storage failure is not fatal: the pipeline runs
// memory-only and the error is logged.
func FromConfig(cfg config.Config, opts ...Option) (*Pipeline, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	tr := o.transport
	if tr == nil {
		var err error
		tr, err = OpenTransport(cfg.Transport, logger)
		if err != nil {
			return nil, fmt.Errorf("creating transport: %w", err)
		}
	}

	st, err := OpenStorage(cfg.Storage)
	if err != nil {
		logger.Warn("pipeline: storage unavailable, running memory-only", "kind", cfg.Storage.Kind, "error", err)
		st = nil
	}

	if o.probe == nil && cfg.Connectivity.ProbeURL != "" {
		opts = append(opts, WithProbe(connectivity.HTTPProbe(cfg.Connectivity.ProbeURL, cfg.Transport.Timeout)))
	}
	return New(cfg, tr, st, opts...), nil
}
