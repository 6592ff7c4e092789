// Package main is the entry point for taskbot, a WhatsApp task assistant
// that answers pt-BR chat messages from a task store.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	_ "time/tzdata" // timezone data for containers without zoneinfo

	"github.com/spf13/cobra"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/server"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
)

func main() {
	server.Version = version

	rootCmd := &cobra.Command{
		Use:   "taskbot",
		Short: "taskbot - WhatsApp task assistant",
		Long: `taskbot answers chat messages about tasks: what is due today, what is
overdue, creating tasks and marking them done.

Run the service:        taskbot serve
Chat locally:           taskbot console --phone +5511999990000
Send digests now:       taskbot digest --dry-run`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taskbot v%s\n", version)
		},
	})

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(digestCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(eventsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ═══════════════════════════════════════════════════════════════════════════════

// loadConfig reads --config. A missing default config.yaml falls back to
// defaults plus environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		cfg = config.Default()
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) {
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
}
