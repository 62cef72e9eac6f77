package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var backfillYear int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Harvest one calendar year day by day",
	Long:  "Walk every day of the given year with a bounded search window. Commits after each day, so an interrupted backfill resumes without rework.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if backfillYear < 2000 || backfillYear > 2100 {
			return eris.Errorf("backfill: implausible year %d", backfillYear)
		}

		p, err := buildPipeline()
		if err != nil {
			return err
		}

		_, err = p.BackfillYear(ctx, backfillYear)
		return err
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillYear, "year", 0, "calendar year to backfill")
	_ = backfillCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(backfillCmd)
}
