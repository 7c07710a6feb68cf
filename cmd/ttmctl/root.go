package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

var rootCmd = &cobra.Command{
	Use:   "ttmctl",
	Short: "ttmctl exercises the TTM page backing manager.",
	Long: `ttmctl creates a device on a chosen host, runs buffers through their ` +
		`populate, bind, and unbind lifecycle, and prints the device statistics as JSON.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "TOML file with device, host, and aperture settings")
	rootCmd.PersistentFlags().Bool("debug", false, "log debug traces to stderr")
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if flag := cmd.Flag("debug"); flag != nil && flag.Value.String() == "true" {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
