package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/config"
	"github.com/eliteGoblin/focusd/focuscage/internal/daemon"
	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/infra"
	"github.com/eliteGoblin/focusd/focuscage/internal/ipc"
	"github.com/eliteGoblin/focusd/focuscage/internal/monitor"
	"github.com/eliteGoblin/focusd/focuscage/internal/usecase"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the focuscage daemon in the background",
	Long: `Starts the engine daemon detached from the terminal. The daemon owns
the profile store, follows profile schedules and enforces the active profile.`,
	RunE: runStart,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the engine daemon in the foreground",
	Long: `Runs the engine in the foreground. Use this under a service manager;
'focuscage start' runs the same thing in the background.`,
	RunE: runDaemon,
}

// Hidden monitor command - spawned by the daemon at interval boundaries
var monitorCmd = &cobra.Command{
	Use:    "monitor",
	Hidden: true,
	RunE:   runMonitor,
}

var (
	monitorEvent    string
	monitorActivity string
)

func init() {
	monitorCmd.Flags().StringVar(&monitorEvent, "event", "", "Interval event (start/end)")
	monitorCmd.Flags().StringVar(&monitorActivity, "activity", "", "Profile ID of the interval")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(monitorCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := ipc.Dial(cfg.Bus == config.BusSystem)
	if err != nil {
		return err
	}
	defer client.Close()

	if client.Running() {
		fmt.Println("focuscage is already running")
		return nil
	}

	if err := daemon.StartDaemon(configPath); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait for the daemon to claim its bus name
	deadline := time.Now().Add(3 * time.Second)
	for !client.Running() {
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon did not come up; see %s", cfg.LogPath)
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("\n=== focuscage Started ===")
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	fmt.Printf("Log file: %s\n", cfg.LogPath)
	fmt.Printf("Bus: %s\n", cfg.Bus)
	fmt.Println("=========================")
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg.LogPath)
	defer func() { _ = logger.Sync() }()

	key, err := infra.EnsureKey(infra.NewFileKeyProvider(cfg.DataDir), logger)
	if err != nil {
		return err
	}
	store, err := infra.NewEncryptedStore(cfg.DataDir, key, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	conn, err := ipc.Connect(cfg.Bus == config.BusSystem)
	if err != nil {
		return err
	}
	defer conn.Close()

	clock := infra.NewSystemClock()
	mirror := infra.NewFileMirror(cfg.DataDir)
	spawner := daemon.NewMonitorSpawner(executable, configPath, logger)
	cron := infra.NewCronIntervalScheduler(spawner.Handle, logger)
	intervals := newIntervalScheduler(cfg, conn, executable, cron, logger)
	enforcer := usecase.NewBlockEnforcer(infra.NewProcessManager(), infra.NewHostsFileBlocker(cfg.HostsPath), logger)
	bridge := usecase.NewEnforcementBridge(enforcer, logger)
	stats := usecase.NewStatisticsRecorder(store, logger)

	coordinator := usecase.NewCoordinator(store, mirror, intervals, cfg.Policies(), clock, logger)
	coordinator.Subscribe(bridge)
	coordinator.Subscribe(stats)
	defer coordinator.Close()

	runner := daemon.NewRunner(daemon.RunnerConfig{
		TickInterval:      cfg.TickInterval,
		EnforceInterval:   cfg.EnforceInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
	}, coordinator, bridge, mirror, clock, logger)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc := ipc.NewEngineService(coordinator, stats, runner, enforcer, clock, logger)
	serveErr := make(chan error, 1)
	go func() {
		select {
		case <-runner.Ready():
		case <-ctx.Done():
			serveErr <- nil
			return
		}
		err := ipc.Serve(ctx, conn, svc)
		if err != nil {
			logger.Error("bus service failed", zap.Error(err))
			cancel()
		}
		serveErr <- err
	}()

	cron.Start()
	defer cron.Stop()

	logger.Info("daemon starting",
		zap.Int("pid", os.Getpid()),
		zap.String("data_dir", cfg.DataDir),
		zap.String("bus", cfg.Bus))

	runErr := runner.Run(ctx)
	stats.Close(clock.Now())

	if err := <-serveErr; err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// newIntervalScheduler picks the interval backend. Systemd timers keep
// firing while the daemon is down; cron runs inside the daemon and backs
// up activities the timers cannot take.
func newIntervalScheduler(
	cfg config.Config,
	conn *dbus.Conn,
	executable string,
	cron *infra.CronIntervalScheduler,
	logger *zap.Logger,
) domain.IntervalScheduler {
	switch cfg.IntervalBackend {
	case config.IntervalCron:
		return cron
	case config.IntervalAuto:
		if conn == nil || !infra.SystemdAvailable(conn) {
			logger.Info("no systemd manager on the bus, using cron for intervals")
			return cron
		}
	}

	command := func(event infra.IntervalEvent, activity string) []string {
		return append([]string{executable}, daemon.MonitorArgs(configPath, event, activity)...)
	}
	timers := infra.NewSystemdIntervalScheduler(cfg.UnitDir, infra.NewSystemdManager(conn), command, logger)
	logger.Info("using systemd timers for intervals", zap.String("unit_dir", cfg.UnitDir))
	if cfg.IntervalBackend == config.IntervalSystemd {
		return timers
	}
	return infra.NewFallbackIntervalScheduler(timers, cron, logger)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorActivity == "" {
		return fmt.Errorf("--activity is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg.LogPath).With(zap.String("component", "monitor"))
	defer func() { _ = logger.Sync() }()

	enforcer := usecase.NewBlockEnforcer(infra.NewProcessManager(), infra.NewHostsFileBlocker(cfg.HostsPath), logger)
	m := monitor.NewIntervalMonitor(infra.NewFileMirror(cfg.DataDir), enforcer, infra.NewSystemClock(), logger)

	ctx := context.Background()
	switch infra.IntervalEvent(monitorEvent) {
	case infra.IntervalStart:
		err = m.IntervalDidStart(ctx, monitorActivity)
	case infra.IntervalEnd:
		err = m.IntervalDidEnd(ctx, monitorActivity)
	default:
		return fmt.Errorf("unknown event %q (want %s or %s)", monitorEvent, infra.IntervalStart, infra.IntervalEnd)
	}
	if err != nil {
		logger.Error("interval handling failed",
			zap.String("event", monitorEvent),
			zap.String("activity", monitorActivity),
			zap.Error(err))
	}
	return err
}
