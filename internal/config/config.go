package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Paths   PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Harvest HarvestConfig `yaml:"harvest" mapstructure:"harvest"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SourceConfig holds NCBI E-utilities connection settings.
type SourceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Tool        string  `yaml:"tool" mapstructure:"tool"`
	Email       string  `yaml:"email" mapstructure:"email"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	// RatePerSec paces successive successful calls; this is separate from
	// retry backoff, which only applies to failed calls.
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// PathsConfig holds the on-disk layout for ledgers, caches, catalogs and
// published artifacts.
type PathsConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
	DocsDir string `yaml:"docs_dir" mapstructure:"docs_dir"`
}

// HarvestConfig configures the harvest phases.
type HarvestConfig struct {
	Query          string `yaml:"query" mapstructure:"query"`
	MaxPerCall     int    `yaml:"max_per_call" mapstructure:"max_per_call"`
	RunInfoMaxRows int    `yaml:"runinfo_max_rows" mapstructure:"runinfo_max_rows"`
	RecentDays     int    `yaml:"recent_days" mapstructure:"recent_days"`
	Debug          bool   `yaml:"debug" mapstructure:"debug"`
}

// EnrichConfig holds the per-collaborator enrichment feature flags.
type EnrichConfig struct {
	Biosample  bool `yaml:"biosample" mapstructure:"biosample"`
	Bioproject bool `yaml:"bioproject" mapstructure:"bioproject"`
}

// ExportConfig configures the chunked artifact exporter.
type ExportConfig struct {
	MaxOutputBytes int64 `yaml:"max_output_bytes" mapstructure:"max_output_bytes"`
	LatestMaxItems int   `yaml:"latest_max_items" mapstructure:"latest_max_items"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultQuery is the catalog search expression used when none is configured:
// urban environment context, shotgun metagenomic/metatranscriptomic assays,
// environmental sampling, minus marker-gene and non-urban studies.
const DefaultQuery = `(("urban" OR "city" OR "cities" OR metropolitan OR municipal OR ` +
	`"built environment" OR subway OR metro OR transit OR railway OR airport OR ` +
	`"public transit" OR "public transport" OR wastewater OR sewage OR stormwater OR ` +
	`street OR sidewalk OR pavement OR building OR buildings OR housing OR ` +
	`"surface swab" OR fomite OR air OR aerosol) AND ` +
	`("whole genome shotgun" OR "shotgun metagenom*" OR "shotgun sequencing" OR ` +
	`metagenom* OR metatranscriptom* OR "total RNA sequencing" OR ` +
	`"metatranscriptome sequencing") AND ` +
	`(environment* OR "built environment" OR wastewater OR sewage OR stormwater OR ` +
	`surface OR swab OR air OR aerosol) ` +
	`NOT (amplicon OR "marker gene" OR "16S" OR "16S rRNA" OR "18S" OR "ITS" OR ` +
	`"V3-V4" OR "V4 region" OR "barcod*" OR "RNA-seq" OR "single-cell" OR scRNA OR ` +
	`"whole exome" OR WES OR soil OR sediment OR marine OR ocean OR freshwater OR ` +
	`river OR lake OR forest OR agricultur* OR farm OR plant OR rhizosphere))`

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/")
	v.SetDefault("source.api_key", "")
	v.SetDefault("source.email", "")
	v.SetDefault("source.tool", "urbanscope-harvester")
	v.SetDefault("source.timeout_secs", 60)
	v.SetDefault("source.max_retries", 6)
	v.SetDefault("source.rate_per_sec", 2.0)
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.docs_dir", "docs")
	v.SetDefault("harvest.query", DefaultQuery)
	v.SetDefault("harvest.max_per_call", 500)
	v.SetDefault("harvest.runinfo_max_rows", 200000)
	v.SetDefault("harvest.recent_days", 7)
	v.SetDefault("enrich.biosample", true)
	v.SetDefault("enrich.bioproject", true)
	v.SetDefault("export.max_output_bytes", int64(50*1024*1024))
	v.SetDefault("export.latest_max_items", 5000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
