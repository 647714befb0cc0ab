// Package cmd implements the CLI commands for ambientd.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/softglow/ambientd/internal/config"
	"github.com/softglow/ambientd/internal/observability"
	"github.com/softglow/ambientd/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "ambientd",
	Short:   "Ambient derivative transcode service",
	Version: version.Short(),
	Long: `ambientd is the server-side companion of a desktop video player. It
accepts uploaded or locally referenced video files, probes their streams,
and produces a small audio-stripped "ambient" derivative through a cascade
of hardware and software encoders, serving results over HTTP.`,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Global flags. Not bound to viper; loadConfig applies them as
	// overrides only when set explicitly.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/ambientd, $HOME/.ambientd)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// loadConfig reads configuration and applies CLI flag overrides.
// Priority: CLI flag > env var > config file > default.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := rootCmd.PersistentFlags()
	if level, ok := stringOverride(flags, "log-level"); ok {
		cfg.Logging.Level = level
	}
	if format, ok := stringOverride(flags, "log-format"); ok {
		cfg.Logging.Format = format
	}
	cfg.Logging.Normalize()

	return cfg, nil
}

// stringOverride returns the flag's value and whether it was set explicitly
// on the command line.
func stringOverride(fs *pflag.FlagSet, name string) (string, bool) {
	if !fs.Changed(name) {
		return "", false
	}
	v, _ := fs.GetString(name)
	return v, true
}

// newLogger builds the process logger from config and installs it as the
// slog default.
func newLogger(cfg *config.Config) *slog.Logger {
	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)
	return logger
}
