// Package cli implements the waveline command line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "waveline",
	Short: "Waveline client core daemon",
	Long: `Waveline is the consistency and progression engine behind the
Waveline social client. It keeps an offline action queue, a TTL cache,
and a local progression ledger, and syncs them against the remote
service whenever connectivity allows.

The UI shell runs 'waveline serve' and drives it over the local HTTP
API; the other commands are thin clients of a running daemon.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(),
		"Path to the TOML config file")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".waveline", "config.toml")
}
