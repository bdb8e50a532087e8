// Package cli provides the command-line interface for the trading desk.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tradedesk/internal/config"
	"tradedesk/internal/logging"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies shared by commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "tradedesk",
		Short: "Multi-asset position-accounting engine",
		Long: `tradedesk runs the unified position-accounting engine for a trading
platform account: margined FX, spot stocks and spot crypto with shield
mode, with balance sync to the ledger of record.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tradedesk %s\n", Version)
		},
	}
}

// Execute loads configuration, builds the logger and runs the root command.
func Execute() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logger := logging.NewLoggerWithConfig(logCfg)

	return NewRootCmd(cfg, logger).Execute()
}
