package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/urbanscope/harvester/internal/pipeline"
)

var (
	crawlPageSize  int
	crawlMaxTotal  int
	crawlStopAfter int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Page through the full catalog result set",
	Long:  "Crawl the entire search result set with retstart paging, newest first. Stops at the end of the result set, at --max-total examined entries, or after --stop-after-idle consecutive pages with nothing new.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline()
		if err != nil {
			return err
		}

		_, err = p.Crawl(ctx, pipeline.CrawlOptions{
			PageSize:      crawlPageSize,
			MaxTotal:      crawlMaxTotal,
			StopAfterIdle: crawlStopAfter,
		})
		return err
	},
}

func init() {
	crawlCmd.Flags().IntVar(&crawlPageSize, "page-size", 0, "entries per page (default: harvest.max_per_call)")
	crawlCmd.Flags().IntVar(&crawlMaxTotal, "max-total", 0, "stop after examining this many entries (0 = all)")
	crawlCmd.Flags().IntVar(&crawlStopAfter, "stop-after-idle", 0, "stop after this many consecutive pages with no new records (0 = never)")
	rootCmd.AddCommand(crawlCmd)
}
