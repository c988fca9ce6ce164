// Package cli provides the command-line interface for feedwatch.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	quiet     bool
	logLevel  string
	logFormat string

	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

var rootCmd = &cobra.Command{
	Use:               "feedwatch",
	Short:             "Watch social accounts through feed mirrors and notify on new posts",
	Long:              "feedwatch polls read-only feed mirrors for a list of accounts, remembers which posts it has already seen, and sends a notification for every new one.",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	RunE:              runAction,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("feedwatch %s (%s)\n", Version, Commit)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config-dir", defaultConfigDir(), "directory holding config.yaml and the ledger (env FEEDWATCH_HOME)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "only print errors")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func defaultConfigDir() string {
	if dir := os.Getenv("FEEDWATCH_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".feedwatch"
	}
	return filepath.Join(home, ".feedwatch")
}

func setupLogging(_ *cobra.Command, _ []string) error {
	l, err := newLogger(os.Stderr, logLevel, logFormat)
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(l)
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (want text or json)", format)
	}
}

// printf writes user-facing output unless --quiet is set.
func printf(format string, args ...any) {
	if quiet {
		return
	}
	fmt.Printf(format, args...)
}
