package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/ember/internal/config"
	"github.com/crimson-sun/ember/internal/logging"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand and override the config file.
type globalFlags struct {
	configPath string
	appID      string
	endpoint   string
	transport  string
	storage    string
	storageDir string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "ember",
		Short: "Reliable delivery of error and telemetry events",
		Long: `ember captures error and telemetry events, batches them, and delivers
them to a collector. Events that cannot be delivered are cached on disk and
retried when the collector is reachable again.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file (YAML)")
	pf.StringVar(&g.appID, "app", "", "application id")
	pf.StringVar(&g.endpoint, "endpoint", "", "collector URL")
	pf.StringVar(&g.transport, "transport", "", "transport: beacon, http, stdout (comma-separated to fan out)")
	pf.StringVar(&g.storage, "storage", "", "offline storage: file, sqlite, memory")
	pf.StringVar(&g.storageDir, "storage-path", "", "offline storage location")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "json, text, auto")

	root.AddCommand(sendCmd(g))
	root.AddCommand(retryCmd(g))
	root.AddCommand(statusCmd(g))
	return root
}

// load reads configuration, applies flag overrides, validates, and
// initializes logging.
func (g *globalFlags) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if g.appID != "" {
		cfg.App.ID = g.appID
	}
	if g.endpoint != "" {
		cfg.Transport.Endpoint = g.endpoint
	}
	if g.transport != "" {
		cfg.Transport.Kind = g.transport
	}
	if g.storage != "" {
		cfg.Storage.Kind = g.storage
	}
	if g.storageDir != "" {
		cfg.Storage.Path = g.storageDir
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}

	logger := logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	for _, w := range cfg.Validate() {
		logger.Warn("config", "warning", w)
	}
	return cfg, logger, nil
}
