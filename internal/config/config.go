// Package config loads flapjackd's process configuration from an
// optional YAML file (gopkg.in/yaml.v3, as cmd/warren's apply command
// parses manifests) layered under environment-variable overrides, the
// way cmd/warren reads --flags over file-provided defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/flapjack/internal/log"
	"github.com/cuemby/flapjack/internal/manager"
)

// Config is the process-wide configuration for flapjackd. It repeats the
// fields of the IndexManager's own Config (projected by ManagerConfig)
// plus the knobs that belong to the process rather than to any one
// tenant (spec §6.4, memory budget watermarks).
type Config struct {
	DataDir            string `yaml:"dataDir"`
	NodeID             string `yaml:"nodeID"`
	MaxBatchSize       int    `yaml:"maxBatchSize"`
	OpLogRetention     uint64 `yaml:"oplogRetention"`
	TaskCapPerTenant   int    `yaml:"taskCapPerTenant"`
	FacetCacheCapacity int    `yaml:"facetCacheCapacity"`
	MaxDocBytes        int    `yaml:"maxDocBytes"`
	QueueCapacity      int    `yaml:"queueCapacity"`

	MetricsAddr string `yaml:"metricsAddr"`

	// MemoryBudgetBytes, MemoryHighWatermarkPercent and
	// MemoryCriticalPercent bound the process-wide memory observer
	// (spec §5): crossing high degrades the facet cache and halves the
	// concurrent-writer limit (64 to 32), crossing critical caps it at 4.
	MemoryBudgetBytes          uint64 `yaml:"memoryBudgetBytes"`
	MemoryHighWatermarkPercent int    `yaml:"memoryHighWatermarkPercent"`
	MemoryCriticalPercent      int    `yaml:"memoryCriticalPercent"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJSON"`
}

const (
	defaultDataDir                    = "./flapjack-data"
	defaultMetricsAddr                = "127.0.0.1:9090"
	defaultMemoryHighWatermarkPercent = 70
	defaultMemoryCriticalPercent      = 90
	defaultLogLevel                   = "info"
)

// Default returns a Config with the process-level defaults set (data
// dir, metrics address, watermark percentages, log level). The manager
// knobs and MemoryBudgetBytes stay zero; manager.New and
// NewMemoryObserver substitute their own defaults for zero values.
func Default() Config {
	return Config{
		DataDir:                    defaultDataDir,
		MetricsAddr:                defaultMetricsAddr,
		MemoryHighWatermarkPercent: defaultMemoryHighWatermarkPercent,
		MemoryCriticalPercent:      defaultMemoryCriticalPercent,
		LogLevel:                   defaultLogLevel,
	}
}

// Load builds a Config starting from defaults, layering an optional YAML
// file (if path is non-empty) over them, then layering recognized
// environment variables over the result. Later layers win.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("MAX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxBatchSize = n
		} else {
			log.Logger.Warn().Str("value", v).Msg("invalid MAX_BATCH_SIZE, ignoring")
		}
	}
	if v := os.Getenv("OPLOG_RETENTION"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.OpLogRetention = n
		} else {
			log.Logger.Warn().Str("value", v).Msg("invalid OPLOG_RETENTION, ignoring")
		}
	}
	if v := os.Getenv("TASK_CAP_PER_TENANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TaskCapPerTenant = n
		}
	}
	if v := os.Getenv("FACET_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FacetCacheCapacity = n
		}
	}
	if v := os.Getenv("MAX_DOC_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDocBytes = n
		}
	}
	if v := os.Getenv("QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueCapacity = n
		}
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("MEMORY_BUDGET_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MemoryBudgetBytes = n
		}
	}
	if v := os.Getenv("MEMORY_HIGH_WATERMARK_PERCENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MemoryHighWatermarkPercent = n
		}
	}
	if v := os.Getenv("MEMORY_CRITICAL_PERCENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MemoryCriticalPercent = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_JSON"); v != "" {
		cfg.LogJSON = v == "1" || v == "true"
	}
}

// ManagerConfig projects the subset of Config that manager.New consumes.
func (c Config) ManagerConfig() manager.Config {
	return manager.Config{
		DataDir:            c.DataDir,
		NodeID:             c.NodeID,
		MaxBatchSize:       c.MaxBatchSize,
		OpLogRetention:     c.OpLogRetention,
		TaskCapPerTenant:   c.TaskCapPerTenant,
		FacetCacheCapacity: c.FacetCacheCapacity,
		MaxDocBytes:        c.MaxDocBytes,
		QueueCapacity:      c.QueueCapacity,
	}
}
