// Command scout finds and enriches distressed-property leads.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/scout"
)

var Version = "dev"

var (
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "scout",
		Short:         "Scout - distressed-property lead search for Pima County",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(leadsCmd())
	rootCmd.AddCommand(marketCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openRuntime loads the configuration and builds the service.
func openRuntime(ctx context.Context) (*scout.Runtime, *config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	rt, err := scout.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to start scout: %w", err)
	}
	return rt, cfg, log, nil
}
