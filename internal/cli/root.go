// Package cli implements the vaultproc command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/repomd/vaultproc/internal/config"
	"github.com/repomd/vaultproc/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	verbosity  int
	logJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "vaultproc",
	Short: "Turn a Markdown vault into a static-site content repository",
	Long: `vaultproc walks a folder of Markdown notes and media and writes
structured JSON, optimized images and a searchable SQLite database.

Settings are read from vaultproc.toml (or --config), then from
VAULTPROC_* environment variables, then from command flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./vaultproc.toml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log JSON lines to stderr")
}

// Execute runs the command line and returns the process exit code
func Execute(v, built string) int {
	version, buildTime = v, built
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// loadConfig reads the configuration and raises its debug level by -v
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Debug += verbosity
	return cfg, nil
}

// newLogger logs to stderr; stdout carries command output and the MCP protocol
func newLogger(debug int) (*zap.Logger, error) {
	if logJSON {
		return logging.JSON(debug)
	}
	return logging.New(debug)
}

// signalContext is cancelled on interrupt or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
