// Package infra implements infrastructure concerns (store, mirror, hosts
// file, processes, interval scheduling).
package infra

import (
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct {
	selfPID int
}

// NewProcessManager creates a new process manager.
func NewProcessManager() *ProcessManagerImpl {
	return &ProcessManagerImpl{selfPID: os.Getpid()}
}

// FindByName returns PIDs of processes whose name contains pattern,
// case-insensitively. The calling process is never returned.
func (pm *ProcessManagerImpl) FindByName(pattern string) ([]int, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, nil
	}

	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int
	for _, p := range procs {
		if int(p.Pid) == pm.selfPID {
			continue
		}
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if matchesProcessName(name, pattern) {
			found = append(found, int(p.Pid))
		}
	}

	return found, nil
}

// Kill terminates a process by PID using SIGKILL.
func (pm *ProcessManagerImpl) Kill(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return p.Kill()
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 only checks for existence
	return proc.Signal(syscall.Signal(0)) == nil
}

func matchesProcessName(name, pattern string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
