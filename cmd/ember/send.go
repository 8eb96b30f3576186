package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/ember/internal/capture"
	"github.com/crimson-sun/ember/internal/config"
	"github.com/crimson-sun/ember/internal/connectivity"
	"github.com/crimson-sun/ember/internal/model"
	"github.com/crimson-sun/ember/internal/pipeline"
)

// inputLine is one NDJSON event read by send.
type inputLine struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Stack   string            `json:"stack"`
	Level   string            `json:"level"`
	User    string            `json:"user"`
	Tags    map[string]string `json:"tags"`
	Extra   map[string]any    `json:"extra"`
	Context *model.Context    `json:"context"`
}

func parseLine(line []byte) (model.RawEvent, capture.Options, error) {
	var in inputLine
	if err := json.Unmarshal(line, &in); err != nil {
		return model.RawEvent{}, capture.Options{}, fmt.Errorf("decoding event: %w", err)
	}
	ev := model.RawEvent{Type: in.Type, Message: in.Message, Stack: in.Stack, Context: in.Context}
	opts := capture.Options{Tags: in.Tags, Extra: in.Extra, User: in.User}
	if in.Level != "" {
		opts.Level = model.ParseLevel(in.Level)
	}
	return ev, opts, nil
}

func sendCmd(g *globalFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "send [file]",
		Short: "Capture NDJSON events from a file or stdin and deliver them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := pipeline.FromConfig(cfg, pipeline.WithLogger(logger))
			if err != nil {
				return err
			}
			defer p.Close()

			startMonitors(ctx, p, cfg, g.configPath, watch, logger)

			n, err := captureLines(ctx, p, in, logger)
			if ctx.Err() != nil {
				logger.Info("ember: interrupted, flushing")
			}
			p.PageHide()
			if err := p.Close(); err != nil {
				logger.Warn("ember: close", "error", err)
			}

			h := p.Health()
			fmt.Fprintf(cmd.OutOrStdout(), "read %d events: reported=%d filtered=%d sampled=%d sent=%d failed=%d cached=%d\n",
				n, h.Reported, h.Filtered, h.Sampled, h.Sent, h.SendFailures, h.Cached)
			return err
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "reload capture policy when the config file changes")
	return cmd
}

// startMonitors starts connectivity polling and config hot reload when
// configured.
func startMonitors(ctx context.Context, p *pipeline.Pipeline, cfg config.Config, configPath string, watch bool, logger *slog.Logger) {
	if cfg.Connectivity.ProbeURL != "" {
		p.MonitorConnectivity(connectivity.HTTPProbe(cfg.Connectivity.ProbeURL, cfg.Transport.Timeout), cfg.Connectivity.Interval)
	}
	if watch && configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(c config.Config) {
				p.SetPolicy(pipeline.PolicyFromConfig(c.App))
				logger.Info("ember: capture policy reloaded", "path", configPath)
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("ember: config watch stopped", "error", err)
			}
		}()
	}
}

// captureLines feeds every NDJSON line in r to p until EOF or ctx ends.
// Malformed lines are logged and skipped.
func captureLines(ctx context.Context, p *pipeline.Pipeline, r io.Reader, logger *slog.Logger) (int, error) {
	lines := make(chan []byte)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	n, lineNo := 0, 0
	for {
		select {
		case <-ctx.Done():
			return n, nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return n, err
				default:
					return n, nil
				}
			}
			lineNo++
			if len(line) == 0 {
				continue
			}
			ev, opts, err := parseLine(line)
			if err != nil {
				logger.Warn("ember: skipping line", "line", lineNo, "error", err)
				continue
			}
			n++
			p.Capture(ev, opts)
		}
	}
}
