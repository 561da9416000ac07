package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/infra"
)

// DaemonArgs is the command line that runs the engine daemon.
func DaemonArgs(configPath string) []string {
	return withConfig([]string{"daemon"}, configPath)
}

// MonitorArgs is the command line that handles one interval boundary.
func MonitorArgs(configPath string, event infra.IntervalEvent, activity string) []string {
	return withConfig([]string{"monitor", "--event", string(event), "--activity", activity}, configPath)
}

func withConfig(args []string, configPath string) []string {
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

// StartDaemon spawns the engine daemon detached from the caller's session.
func StartDaemon(configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	cmd, err := spawn(executable, DaemonArgs(configPath))
	if err != nil {
		return err
	}
	return cmd.Process.Release()
}

// MonitorSpawner launches a short-lived monitor process per interval
// boundary. Its Handle method is an infra.IntervalHandler.
type MonitorSpawner struct {
	executable string
	configPath string
	logger     *zap.Logger
}

// NewMonitorSpawner creates a spawner that re-executes executable.
func NewMonitorSpawner(executable, configPath string, logger *zap.Logger) *MonitorSpawner {
	return &MonitorSpawner{
		executable: executable,
		configPath: configPath,
		logger:     logger,
	}
}

// Spawn starts the monitor and reaps it in the background.
func (s *MonitorSpawner) Spawn(event infra.IntervalEvent, activity string) error {
	cmd, err := spawn(s.executable, MonitorArgs(s.configPath, event, activity))
	if err != nil {
		return fmt.Errorf("failed to spawn monitor: %w", err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			s.logger.Warn("monitor exited with error",
				zap.String("event", string(event)),
				zap.String("activity", activity),
				zap.Error(err))
		}
	}()
	return nil
}

// Handle implements infra.IntervalHandler.
func (s *MonitorSpawner) Handle(event infra.IntervalEvent, activity string) {
	if err := s.Spawn(event, activity); err != nil {
		s.logger.Error("interval boundary not handled",
			zap.String("event", string(event)),
			zap.String("activity", activity),
			zap.Error(err))
	}
}

func spawn(executable string, args []string) (*exec.Cmd, error) {
	cmd := exec.Command(executable, args...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
