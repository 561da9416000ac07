// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// FakeApp is a long-running process with a chosen name, standing in for a
// blocked application.
type FakeApp struct {
	Name string
	cmd  *exec.Cmd
	done chan error
}

// StartFakeApp copies sleep(1) into dir under name and runs it. Keep name
// under 16 characters; Linux truncates process names beyond that.
func StartFakeApp(dir, name string) (*FakeApp, error) {
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		return nil, fmt.Errorf("sleep not available: %w", err)
	}

	appPath := filepath.Join(dir, name)
	if err := copyExecutable(sleepPath, appPath); err != nil {
		return nil, err
	}

	cmd := exec.Command(appPath, "300")
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	app := &FakeApp{Name: name, cmd: cmd, done: make(chan error, 1)}
	go func() { app.done <- cmd.Wait() }()
	return app, nil
}

// PID returns the process ID.
func (a *FakeApp) PID() int {
	return a.cmd.Process.Pid
}

// Exited reports whether the process has terminated.
func (a *FakeApp) Exited() bool {
	select {
	case err := <-a.done:
		a.done <- err
		return true
	default:
		return false
	}
}

// Stop kills the process if it is still running.
func (a *FakeApp) Stop() {
	if !a.Exited() {
		_ = a.cmd.Process.Signal(syscall.SIGKILL)
		<-a.done
		a.done <- nil
	}
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// HostsFile writes a minimal hosts file into dir and returns its path.
func HostsFile(dir string) (string, error) {
	path := filepath.Join(dir, "hosts")
	content := "127.0.0.1 localhost\n::1 localhost\n"
	return path, os.WriteFile(path, []byte(content), 0644)
}
