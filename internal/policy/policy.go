// Package policy implements the Strategy pattern for strictness levels.
// Each level (Standard, Strict, Locked) defines how an enforced profile
// may be bypassed.
package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

const (
	// DefaultCooldown is how long an unlock request waits before granting.
	DefaultCooldown = 10 * time.Minute

	// DefaultUnlockWindow is how long a granted unlock lasts.
	DefaultUnlockWindow = 15 * time.Minute

	// DefaultStrictUnlocks is the per-session unlock budget of Strict.
	DefaultStrictUnlocks = 2

	// LockedDeleteWait is the waiting period before a Locked profile
	// that is being enforced may be deleted.
	LockedDeleteWait = 5 * time.Minute

	// Unlimited marks a policy without an unlock budget.
	Unlimited = -1
)

// StrictnessPolicy defines the strategy interface for one strictness level.
type StrictnessPolicy interface {
	// Level returns the level this policy implements.
	Level() domain.StrictnessLevel

	// DisplayName returns a human-readable name.
	DisplayName() string

	// Description explains the level to the user.
	Description() string

	// MaxUnlocks returns the unlock budget, or Unlimited.
	MaxUnlocks() int

	// CooldownDuration is the wait between request and grant.
	CooldownDuration() time.Duration

	// UnlockDuration is the length of a granted unlock window.
	UnlockDuration() time.Duration

	// AllowsUnlockRequests reports whether the cooldown flow applies.
	AllowsUnlockRequests() bool

	// CanFreelyDisable reports whether the user may disable the profile
	// given whether it is being enforced right now.
	CanFreelyDisable(activelyEnforced bool) bool

	// DeleteWaitPeriod is the countdown before deleting an enforced profile.
	// Zero means deletion is never gated.
	DeleteWaitPeriod() time.Duration
}
