package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/config"
	"github.com/revops/pipeline-monitor/internal/observability"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pipeline-monitor",
	Short: "Revenue pipeline dashboard backend",
	Long: `pipeline-monitor serves the pipeline health and CRM integrity views.

Views are read from the platform when it is enabled and reachable and from
the local dataset otherwise. Every fallback is recorded in the session log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd.Context(), configPath)
		if err != nil {
			return err
		}

		level := cfg.Observability.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = observability.NewLogger(level, cfg.Observability.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PIPELINE_MONITOR_CONFIG"), "Path to a YAML config file (environment variables win)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(viewsCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and overlays the optional file.
func loadConfig(ctx context.Context, path string) (*config.Config, error) {
	c, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}
	fc, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.Apply(fc); err != nil {
		return nil, err
	}
	return c, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
