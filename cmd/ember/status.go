package main

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/ember/internal/config"
	"github.com/crimson-sun/ember/internal/pipeline"
)

type status struct {
	App       string       `json:"app" yaml:"app"`
	Endpoint  string       `json:"endpoint" yaml:"endpoint"`
	Transport string       `json:"transport" yaml:"transport"`
	Storage   string       `json:"storage" yaml:"storage"`
	Key       string       `json:"key" yaml:"key"`
	Pending   int          `json:"pending" yaml:"pending"`
	Items     []statusItem `json:"items,omitempty" yaml:"items,omitempty"`
}

type statusItem struct {
	EventID    string    `json:"event_id" yaml:"event_id"`
	Level      string    `json:"level" yaml:"level"`
	Message    string    `json:"message" yaml:"message"`
	CachedAt   time.Time `json:"cached_at" yaml:"cached_at"`
	RetryCount int       `json:"retry_count" yaml:"retry_count"`
}

func statusCmd(g *globalFlags) *cobra.Command {
	var asJSON, verbose bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and the cached offline queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			s, err := readStatus(cfg, verbose)
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), s, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list every cached event")
	return cmd
}

// readStatus loads the queue straight from storage without sending anything.
func readStatus(cfg config.Config, verbose bool) (status, error) {
	s := status{
		App:       cfg.App.ID,
		Endpoint:  cfg.Transport.Endpoint,
		Transport: cfg.Transport.Kind,
		Storage:   cfg.Storage.Kind,
		Key:       cfg.StorageKey(),
	}
	st, err := pipeline.OpenStorage(cfg.Storage)
	if err != nil {
		return s, err
	}
	if st == nil {
		return s, nil
	}
	defer st.Close()

	items, err := st.Load(s.Key)
	if err != nil {
		return s, fmt.Errorf("reading %s: %w", s.Key, err)
	}
	s.Pending = len(items)
	if verbose {
		for _, it := range items {
			s.Items = append(s.Items, statusItem{
				EventID:    it.Report.EventID,
				Level:      string(it.Report.Level),
				Message:    it.Report.Message,
				CachedAt:   it.CachedAt,
				RetryCount: it.RetryCount,
			})
		}
	}
	return s, nil
}

func writeStatus(w io.Writer, s status, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
