package main

import (
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Rebuild published artifacts from the catalog",
	Long:  "Regenerate the chunked record parts, manifest, index, latest view and cache snapshots from the committed corpus without harvesting anything.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := buildPipeline()
		if err != nil {
			return err
		}
		return p.Publish()
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
