package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fflog/fflog-go/internal/config"
	"github.com/fflog/fflog-go/pkg/fflog"
)

var (
	// global flags
	verbose    bool
	configPath string

	// cfg is loaded by the root command before any subcommand runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fflog",
	Short: "Upload FFXIV combat logs to FF Logs",
	Long: `fflog uploads ACT combat logs to FF Logs, either from a finished
file or live while the game runs.

Credentials come from the FFLOG_EMAIL and FFLOG_PASSWORD environment
variables. Report defaults (region, visibility, guild) can be set in
$XDG_CONFIG_HOME/fflog/config.yaml or per invocation via flags.

The service's own parser runs locally under Node.js; a working node
binary on PATH (or node_path in the config) is required for uploads.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		setupLogging()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default: $XDG_CONFIG_HOME/fflog/config.yaml)")
}

// setupLogging routes structured logs to stderr; stdout stays reserved
// for command output.
func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// newClient builds the API client from the loaded configuration.
func newClient() (*fflog.Client, error) {
	opts := []fflog.Option{fflog.WithLogger(slog.Default())}
	if cfg.NodePath != "" {
		opts = append(opts, fflog.WithNodePath(cfg.NodePath))
	}
	if cfg.CacheDir != "" {
		opts = append(opts, fflog.WithCacheDir(cfg.CacheDir))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, fflog.WithBaseURL(cfg.BaseURL))
	}
	return fflog.New(opts...)
}

// resolveRegion picks the flag value over the config default.
func resolveRegion(flag string) (fflog.Region, error) {
	s := flag
	if s == "" {
		s = cfg.Region
	}
	return fflog.ParseRegion(s)
}

// resolveVisibility picks the flag value over the config default.
func resolveVisibility(flag string) (fflog.Visibility, error) {
	s := flag
	if s == "" {
		s = cfg.Visibility
	}
	return fflog.ParseVisibility(s)
}

// resolveGuild picks the flag value over the config default. Flags use
// -1 for "not set" because 0 means personal logs.
func resolveGuild(flag int) int {
	if flag >= 0 {
		return flag
	}
	return cfg.GuildID
}

// reportURL renders the browsable address of a report.
func reportURL(code string) string {
	base := cfg.BaseURL
	if base == "" {
		base = "https://www.fflogs.com"
	}
	return strings.TrimSuffix(base, "/") + "/reports/" + code
}
