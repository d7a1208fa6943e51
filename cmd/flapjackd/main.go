package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/flapjack/internal/compactor"
	"github.com/cuemby/flapjack/internal/config"
	"github.com/cuemby/flapjack/internal/log"
	"github.com/cuemby/flapjack/internal/manager"
	"github.com/cuemby/flapjack/internal/metrics"
	"github.com/cuemby/flapjack/internal/taskgc"
	"github.com/cuemby/flapjack/internal/types"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flapjackd",
	Short: "Flapjack - multi-tenant full-text search engine",
	Long: `Flapjack is the indexing and query core of an Algolia-compatible
search engine: per-tenant index lifecycle, durable write pipeline,
and a query planner merging full-text, filter, facet and geo
constraints.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"flapjackd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config/env)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compactCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	if level == "" {
		level = "info"
	}
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// loadConfig builds a config.Config from --config, then applies the
// --data-dir/--log-level/--log-json flag overrides on top of the
// file+env layers config.Load already applied.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if jsonOut, _ := cmd.Flags().GetBool("log-json"); jsonOut {
		cfg.LogJSON = true
	}
	return cfg, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the flapjackd server: write queues, compactor, task GC and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		mgr := manager.New(cfg.ManagerConfig())

		comp := compactor.New(mgr, 0)
		comp.Start()

		gc := taskgc.New(mgr, 0)
		gc.Start()

		memObs := manager.NewMemoryObserver(mgr, cfg.MemoryBudgetBytes, cfg.MemoryHighWatermarkPercent, cfg.MemoryCriticalPercent)
		memObs.Start()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", healthHandler)
		mux.HandleFunc("/ready", healthHandler)

		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		log.Logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.Logger.Info().Msg("shutting down")
		case err := <-errCh:
			log.Logger.Error().Err(err).Msg("shutting down after server error")
		}

		comp.Stop()
		gc.Stop()
		memObs.Stop()
		if err := srv.Close(); err != nil {
			log.Logger.Warn().Err(err).Msg("metrics server close error")
		}
		if err := mgr.Shutdown(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Logger.Info().Msg("shutdown complete")
		return nil
	},
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Force a segment-store compaction for one tenant and wait for it to finish",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		tenant, _ := cmd.Flags().GetString("tenant")
		if tenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		mgr := manager.New(cfg.ManagerConfig())
		defer mgr.Shutdown()

		task, err := mgr.Compact(tenant)
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		final, err := waitForTask(mgr, tenant, task.TaskID)
		if err != nil {
			return err
		}
		fmt.Printf("compaction %s: %s\n", final.TaskID, final.Status)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every document of one tenant to a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		tenant, _ := cmd.Flags().GetString("tenant")
		out, _ := cmd.Flags().GetString("out")
		if tenant == "" || out == "" {
			return fmt.Errorf("--tenant and --out are required")
		}

		mgr := manager.New(cfg.ManagerConfig())
		defer mgr.Shutdown()

		docs, err := mgr.ExportTenant(tenant)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		data, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal export: %w", err)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write export file: %w", err)
		}
		fmt.Printf("exported %d documents from %q to %s\n", len(docs), tenant, out)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import documents from a JSON file into one tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		tenant, _ := cmd.Flags().GetString("tenant")
		in, _ := cmd.Flags().GetString("in")
		if tenant == "" || in == "" {
			return fmt.Errorf("--tenant and --in are required")
		}

		data, err := os.ReadFile(in)
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}
		var docs []map[string]any
		if err := json.Unmarshal(data, &docs); err != nil {
			return fmt.Errorf("parse import file: %w", err)
		}

		mgr := manager.New(cfg.ManagerConfig())
		defer mgr.Shutdown()

		if err := mgr.ImportTenant(tenant, docs); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		fmt.Printf("imported %d documents into %q from %s\n", len(docs), tenant, in)
		return nil
	},
}

func init() {
	compactCmd.Flags().String("tenant", "", "Tenant name (required)")

	exportCmd.Flags().String("tenant", "", "Tenant name (required)")
	exportCmd.Flags().String("out", "", "Output JSON file (required)")

	importCmd.Flags().String("tenant", "", "Tenant name (required)")
	importCmd.Flags().String("in", "", "Input JSON file (required)")
}

// waitForTask polls GetTask until the task reaches a terminal status.
// One-shot CLI commands have no caller waiting asynchronously, so they
// block here the way add_documents_sync does at the HTTP layer (spec
// §4.9).
func waitForTask(mgr *manager.Manager, tenant, taskID string) (types.Task, error) {
	deadline := time.Now().Add(time.Minute)
	for {
		task, err := mgr.GetTask(tenant, taskID)
		if err != nil {
			return types.Task{}, fmt.Errorf("get task: %w", err)
		}
		if task.Status == types.TaskSucceeded || task.Status == types.TaskFailed {
			return task, nil
		}
		if time.Now().After(deadline) {
			return task, fmt.Errorf("timed out waiting for task %s", taskID)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
