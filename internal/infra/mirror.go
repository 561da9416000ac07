package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

const (
	mirrorFileName  = "mirror.json"
	heartbeatSuffix = ".heartbeat"
)

// FileMirror implements domain.SharedMirror using a JSON file in the data
// directory. Writers serialize on a sibling lock file; readers rely on the
// atomic rename and never lock. The heartbeat lives in its own small file
// so liveness stamps never rewrite the snapshot.
type FileMirror struct {
	path string
}

// NewFileMirror creates the mirror inside dataDir.
func NewFileMirror(dataDir string) *FileMirror {
	return &FileMirror{path: filepath.Join(dataDir, mirrorFileName)}
}

// NewFileMirrorWithPath creates a mirror at a specific path (for testing).
func NewFileMirrorWithPath(path string) *FileMirror {
	return &FileMirror{path: path}
}

// Path returns the mirror file path.
func (m *FileMirror) Path() string {
	return m.path
}

// Publish replaces the snapshot. The heartbeat file is not touched.
func (m *FileMirror) Publish(snapshot domain.MirrorSnapshot) error {
	return m.withLock(func() error {
		if snapshot.Version == 0 {
			snapshot.Version = domain.MirrorSchemaVersion
		}
		data, err := json.MarshalIndent(&snapshot, "", "  ")
		if err != nil {
			return err
		}
		return atomicWrite(m.path, data)
	})
}

// Heartbeat stamps the liveness file for status readers.
func (m *FileMirror) Heartbeat(at time.Time) error {
	return m.withLock(func() error {
		return atomicWrite(m.heartbeatPath(), []byte(strconv.FormatInt(at.Unix(), 10)))
	})
}

// Load returns the last published snapshot, or nil if none was written.
// Snapshots from a newer schema are rejected.
func (m *FileMirror) Load() (*domain.MirrorSnapshot, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var snapshot domain.MirrorSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode mirror %s: %w", m.path, err)
	}
	if snapshot.Version > domain.MirrorSchemaVersion {
		return nil, fmt.Errorf("mirror %s has unsupported version %d", m.path, snapshot.Version)
	}
	snapshot.LastHeartbeat = m.lastHeartbeat()
	return &snapshot, nil
}

// lastHeartbeat returns the stamped Unix time, or 0 if none is readable.
func (m *FileMirror) lastHeartbeat() int64 {
	data, err := os.ReadFile(m.heartbeatPath())
	if err != nil {
		return 0
	}
	at, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return at
}

func (m *FileMirror) heartbeatPath() string {
	return m.path + heartbeatSuffix
}

func (m *FileMirror) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return fmt.Errorf("failed to create mirror directory: %w", err)
	}
	lockFile, err := os.OpenFile(m.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	return fn()
}

// atomicWrite writes data to a temp file and renames it into place.
func atomicWrite(path string, data []byte) error {
	// Unique per process so a crashed writer never blocks the next
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileMirror implements domain.SharedMirror.
var _ domain.SharedMirror = (*FileMirror)(nil)
