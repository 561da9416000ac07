package policy

import (
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// StandardPolicy can be disabled at any time.
type StandardPolicy struct{}

// NewStandardPolicy creates the Standard level.
func NewStandardPolicy() *StandardPolicy {
	return &StandardPolicy{}
}

func (p *StandardPolicy) Level() domain.StrictnessLevel { return domain.StrictnessStandard }
func (p *StandardPolicy) DisplayName() string           { return "Standard" }

func (p *StandardPolicy) Description() string {
	return "Can be disabled anytime"
}

func (p *StandardPolicy) MaxUnlocks() int                 { return Unlimited }
func (p *StandardPolicy) CooldownDuration() time.Duration { return 0 }
func (p *StandardPolicy) UnlockDuration() time.Duration   { return 0 }
func (p *StandardPolicy) AllowsUnlockRequests() bool      { return false }
func (p *StandardPolicy) CanFreelyDisable(bool) bool      { return true }
func (p *StandardPolicy) DeleteWaitPeriod() time.Duration { return 0 }

// StrictPolicy grants a limited number of delayed, time-boxed unlocks.
type StrictPolicy struct {
	maxUnlocks int
	cooldown   time.Duration
	window     time.Duration
}

// NewStrictPolicy creates the Strict level with default limits.
func NewStrictPolicy() *StrictPolicy {
	return NewStrictPolicyWithLimits(DefaultStrictUnlocks, DefaultCooldown, DefaultUnlockWindow)
}

// NewStrictPolicyWithLimits creates a Strict level with custom limits.
func NewStrictPolicyWithLimits(maxUnlocks int, cooldown, window time.Duration) *StrictPolicy {
	return &StrictPolicy{maxUnlocks: maxUnlocks, cooldown: cooldown, window: window}
}

func (p *StrictPolicy) Level() domain.StrictnessLevel { return domain.StrictnessStrict }
func (p *StrictPolicy) DisplayName() string           { return "Strict" }

func (p *StrictPolicy) Description() string {
	return fmt.Sprintf("%d min cooldown to unlock, %d unlocks per session",
		int(p.cooldown.Minutes()), p.maxUnlocks)
}

func (p *StrictPolicy) MaxUnlocks() int                 { return p.maxUnlocks }
func (p *StrictPolicy) CooldownDuration() time.Duration { return p.cooldown }
func (p *StrictPolicy) UnlockDuration() time.Duration   { return p.window }
func (p *StrictPolicy) AllowsUnlockRequests() bool      { return true }

func (p *StrictPolicy) CanFreelyDisable(activelyEnforced bool) bool {
	return !activelyEnforced
}

func (p *StrictPolicy) DeleteWaitPeriod() time.Duration { return 0 }

// LockedPolicy cannot be unlocked until the schedule ends.
// Deleting it while enforced requires a waiting period.
type LockedPolicy struct {
	deleteWait time.Duration
}

// NewLockedPolicy creates the Locked level.
func NewLockedPolicy() *LockedPolicy {
	return &LockedPolicy{deleteWait: LockedDeleteWait}
}

func (p *LockedPolicy) Level() domain.StrictnessLevel { return domain.StrictnessLocked }
func (p *LockedPolicy) DisplayName() string           { return "Locked" }

func (p *LockedPolicy) Description() string {
	return "Cannot disable until schedule ends"
}

func (p *LockedPolicy) MaxUnlocks() int                 { return 0 }
func (p *LockedPolicy) CooldownDuration() time.Duration { return 0 }
func (p *LockedPolicy) UnlockDuration() time.Duration   { return 0 }
func (p *LockedPolicy) AllowsUnlockRequests() bool      { return false }

func (p *LockedPolicy) CanFreelyDisable(activelyEnforced bool) bool {
	return !activelyEnforced
}

func (p *LockedPolicy) DeleteWaitPeriod() time.Duration { return p.deleteWait }

// Ensure all levels implement StrictnessPolicy.
var (
	_ StrictnessPolicy = (*StandardPolicy)(nil)
	_ StrictnessPolicy = (*StrictPolicy)(nil)
	_ StrictnessPolicy = (*LockedPolicy)(nil)
)
