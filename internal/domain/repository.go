package domain

import (
	"context"
	"time"
)

// ProfileRepository persists profiles and the coordinator decision.
// Implementation: SQLCipher encrypted SQLite database.
type ProfileRepository interface {
	// LoadProfiles returns profiles in creation order.
	LoadProfiles() ([]Profile, error)

	// SaveProfiles replaces the stored list, preserving order.
	SaveProfiles(profiles []Profile) error

	// LoadState returns the persisted active profile and nuclear override.
	LoadState() (CoordinatorState, error)

	// SaveState persists the active profile and nuclear override.
	SaveState(state CoordinatorState) error
}

// SessionStore records focus sessions for statistics.
type SessionStore interface {
	// AppendSession stores a finished session.
	AppendSession(session FocusSession) error

	// ListSessions returns sessions ordered by start time.
	ListSessions() ([]FocusSession, error)
}

// MirrorReader is the read-only view used by the restricted interval context.
type MirrorReader interface {
	// Load returns the last published snapshot, or nil if none exists.
	Load() (*MirrorSnapshot, error)
}

// SharedMirror is written by the engine after every successful save.
// Implementation: JSON file written atomically under a file lock.
type SharedMirror interface {
	MirrorReader

	// Publish replaces the snapshot.
	Publish(snapshot MirrorSnapshot) error

	// Heartbeat updates the liveness timestamp without touching the snapshot.
	Heartbeat(at time.Time) error

	// Path returns the mirror file path.
	Path() string
}

// Enforcer applies or removes blocking. Calls must be idempotent.
type Enforcer interface {
	// ApplyBlock blocks exactly targets. Empty targets block nothing.
	ApplyBlock(ctx context.Context, targets BlockedTargets) error

	// ClearBlock removes all blocking.
	ClearBlock(ctx context.Context) error
}

// SiteBlocker redirects blocked domains.
// Implementation: managed section of the hosts file.
type SiteBlocker interface {
	// Block replaces the blocked domain set.
	Block(domains []string) error

	// Unblock removes every blocked domain. No-op when nothing is blocked.
	Unblock() error

	// Blocked returns the domains currently blocked.
	Blocked() ([]string, error)
}

// IntervalScheduler delivers start/end callbacks for named recurring windows.
type IntervalScheduler interface {
	// StopAll unregisters every activity.
	StopAll()

	// Register adds one repeating activity.
	Register(activity IntervalActivity) error

	// Activities returns the registered activity names.
	Activities() []string
}

// ActivationListener consumes engine events.
type ActivationListener interface {
	OnActivationChange(ctx context.Context, change ActivationChange)
}

// Timer is a cancellable deferred action.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall-clock time and deferred execution.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
