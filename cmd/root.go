package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urbanscope/harvester/internal/catalog"
	"github.com/urbanscope/harvester/internal/classify"
	"github.com/urbanscope/harvester/internal/config"
	"github.com/urbanscope/harvester/internal/eutils"
	"github.com/urbanscope/harvester/internal/ledger"
	"github.com/urbanscope/harvester/internal/pipeline"
	"github.com/urbanscope/harvester/internal/resolve"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Incremental urban metagenomics harvest pipeline",
	Long:  "Searches NCBI SRA for urban metagenomic sequencing runs, resolves each to its BioProject, deduplicates against persistent ledgers, enriches with BioSample/BioProject metadata, and publishes chunked JSON artifacts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// buildPipeline opens the persistent stores and wires the run pipeline.
func buildPipeline() (*pipeline.Pipeline, error) {
	client := eutils.New(cfg.Source)

	led, err := ledger.Load(cfg.Paths.DataDir)
	if err != nil {
		return nil, err
	}
	caches, err := pipeline.LoadCaches(filepath.Join(cfg.Paths.DataDir, "cache"))
	if err != nil {
		return nil, err
	}

	tables := classify.DefaultTables()
	tablesPath := filepath.Join(cfg.Paths.DataDir, "geo_tables.yaml")
	if _, err := os.Stat(tablesPath); err == nil {
		tables, err = classify.LoadTables(tablesPath)
		if err != nil {
			return nil, err
		}
	}

	resolver := resolve.New(client, caches.LinkUID)
	cat := catalog.New(filepath.Join(cfg.Paths.DataDir, "catalog"), 0)
	return pipeline.New(client, resolver, led, cat, caches, tables, cfg), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
