package config

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser runs as the logged-in user on the session bus
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root on the system bus
	ExecModeSystem ExecMode = "system"
)

// AppName names the binary, data directory and bus service.
const AppName = "focuscage"

// ExecModeConfig holds paths and settings based on execution mode.
type ExecModeConfig struct {
	Mode    ExecMode
	DataDir string // Where the encrypted store, key and mirror live
	LogPath string // Daemon log file
	Bus     string // "session" or "system"
	UnitDir string // Where interval timer units are written
	IsRoot  bool   // Whether running as root
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return systemModeConfig()
	}
	home, _ := os.UserHomeDir()
	return userModeConfig(home, false)
}

// GetUserModeConfig returns user mode config regardless of current euid.
// Under sudo the invoking user's home directory is used.
func GetUserModeConfig() *ExecModeConfig {
	return userModeConfig(GetRealUserHome(), os.Geteuid() == 0)
}

func systemModeConfig() *ExecModeConfig {
	return &ExecModeConfig{
		Mode:    ExecModeSystem,
		DataDir: filepath.Join("/var/lib", AppName),
		LogPath: filepath.Join("/var/log", AppName+".log"),
		Bus:     BusSystem,
		UnitDir: "/etc/systemd/system",
		IsRoot:  true,
	}
}

func userModeConfig(home string, isRoot bool) *ExecModeConfig {
	dataDir := filepath.Join(home, "."+AppName)
	return &ExecModeConfig{
		Mode:    ExecModeUser,
		DataDir: dataDir,
		LogPath: filepath.Join(dataDir, AppName+".log"),
		Bus:     BusSession,
		UnitDir: filepath.Join(home, ".config", "systemd", "user"),
		IsRoot:  isRoot,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root, system bus)"
	case ExecModeUser:
		return "user (session bus)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
