package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger, cache and catalog counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}

		status, err := p.Status()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
