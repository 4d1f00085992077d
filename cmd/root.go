// Package cmd defines the CLI commands for the ads-crawler executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/config"
	"github.com/cargpt/ads-crawler/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ads-crawler",
		Short: "A Tor-backed crawler for vehicle classified ads",
		Long: `ads-crawler walks a classified-ads site newest-first through a headless
browser riding a Tor circuit, normalizes every fresh listing, and stores
it in PostgreSQL. Runs resume from where the previous run caught up.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	return cmd
}

// Execute runs the CLI. It is the only entry point main uses.
func Execute() {
	root := newRootCmd()
	root.AddCommand(newCrawlCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// setup loads the environment, the configuration and the logger shared
// by every subcommand.
func setup() (config.Config, *zap.Logger, error) {
	// A missing .env file is fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}
