// Package cmd implements the CLI commands for avpump.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/avpump/internal/config"
	"github.com/jmylchreest/avpump/internal/engine"
	"github.com/jmylchreest/avpump/internal/observability"
	"github.com/jmylchreest/avpump/internal/version"

	// Engines register themselves on import.
	_ "github.com/jmylchreest/avpump/internal/engine/libav"
	_ "github.com/jmylchreest/avpump/internal/engine/native"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// cfg is the configuration loaded before every command.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "avpump",
	Short:   "Media demux, decode and resample pump",
	Version: version.Short(),
	Long: `avpump reads a media container, routes its packets to decoders and
packet copy outputs, and turns decoded audio into fixed 10 ms windows of
resampled PCM for files, WAV and RTP consumers.

Decoded video can be written as raw YUV or YUV4MPEG2 and queued for
consumers. The container and codec work is done by a pluggable engine:
"native" (pure Go, MPEG-TS and WAV) or "libav" (FFmpeg, built with
-tags libav).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Set here to avoid an initialization cycle with rootCmd.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	}

	// Flags are not bound to viper; they override config and env values
	// only when explicitly set.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./avpump.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig loads the configuration and configures the default logger.
//
// Priority order (highest to lowest):
//  1. CLI flags, only if explicitly provided
//  2. Environment variables (AVPUMP_LOGGING_LEVEL, ...)
//  3. Config file values
//  4. Built-in defaults
func initConfig(cmd *cobra.Command) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		level, _ := flags.GetString("log-level")
		loaded.Logging.Level = strings.ToLower(level)
	}
	if flags.Changed("log-format") {
		format, _ := flags.GetString("log-format")
		loaded.Logging.Format = strings.ToLower(format)
	}
	// "warning" is accepted as an alias for "warn".
	if loaded.Logging.Level == "warning" {
		loaded.Logging.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(loaded.Logging, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	cfg = loaded
	return nil
}

// newEngine builds the engine selected by the configuration.
func newEngine(c *config.Config) (engine.Engine, error) {
	return engine.New(c.Engine.Name, engine.Options{
		PacketSamples: c.Engine.PacketSamples,
		Logger:        observability.WithComponent(slog.Default(), "engine"),
	})
}
