package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/ember/internal/pipeline"
)

func retryCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry every cached event once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			p, err := pipeline.FromConfig(cfg, pipeline.WithLogger(logger), pipeline.WithStartupRetry(false))
			if err != nil {
				return err
			}
			defer p.Close()

			before := len(p.Pending())
			if !p.Online() {
				fmt.Fprintf(cmd.OutOrStdout(), "offline: %d cached events left untouched\n", before)
				return nil
			}
			p.RetryPass(cmd.Context())

			h := p.Health()
			fmt.Fprintf(cmd.OutOrStdout(), "retried %d: sent=%d failed=%d dropped=%d remaining=%d\n",
				before, h.Sent, h.SendFailures, h.Dropped, len(p.Pending()))
			return nil
		},
	}
}
