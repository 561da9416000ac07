// Package main is the CLI entry point for focuscage.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/focuscage/internal/config"
	"github.com/eliteGoblin/focusd/focuscage/internal/ipc"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "focuscage",
	Short: "Scheduled focus profiles that block distracting apps and sites",
	Long: `focuscage enforces focus profiles on a weekly schedule. While a profile
is active its apps are killed and its websites are blocked in the hosts file.

Strict profiles can be unlocked after a cooldown a few times per session.
Locked profiles cannot be unlocked at all.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <data dir>/config.yaml)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config for the current execution mode.
func loadConfig() (config.Config, error) {
	mode := config.DetectExecMode()
	path := configPath
	if path == "" {
		path = config.DefaultPath(mode)
	}
	return config.Load(path, mode)
}

// withClient loads the config, dials the daemon and runs fn.
func withClient(fn func(c *ipc.Client, logger *zap.Logger) error) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := ipc.Dial(cfg.Bus == config.BusSystem)
	if err != nil {
		return err
	}
	defer client.Close()

	if !client.Running() {
		return fmt.Errorf("focuscage daemon is not running; run 'focuscage start'")
	}
	logger.Debug("connected to daemon", zap.String("bus", cfg.Bus))
	return fn(client, logger)
}

// createLogger builds the daemon logger writing to path.
func createLogger(path string) *zap.Logger {
	logConfig := zap.NewProductionConfig()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err == nil {
		logConfig.OutputPaths = []string{path}
		logConfig.ErrorOutputPaths = []string{path}
	}
	logConfig.EncoderConfig.TimeKey = "time"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := logConfig.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("focuscage %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
