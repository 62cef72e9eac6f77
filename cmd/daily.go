package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Harvest recently published runs",
	Long:  "Search the trailing publication window, ingest new runs, and republish the artifact set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline()
		if err != nil {
			return err
		}

		_, err = p.Daily(ctx)
		return err
	},
}

func init() {
	rootCmd.AddCommand(dailyCmd)
}
