package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/policy"
)

// UnlockResult describes an accepted unlock request.
type UnlockResult struct {
	ProfileID        string    `json:"profile_id"`
	CooldownEndAt    time.Time `json:"cooldown_end_at"`
	RemainingUnlocks int       `json:"remaining_unlocks"`
	MaxUnlocks       int       `json:"max_unlocks"`
}

// RequestUnlock starts the cooldown for a Strict profile. The unlock budget
// is consumed only when the cooldown completes. A request while a cooldown
// is already running returns that cooldown unchanged.
func (c *Coordinator) RequestUnlock(ctx context.Context, id string, now time.Time) (UnlockResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := findProfile(c.profiles, id)
	if p == nil {
		return UnlockResult{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	pol, err := c.policyFor(p)
	if err != nil {
		return UnlockResult{}, err
	}
	if !pol.AllowsUnlockRequests() {
		return UnlockResult{}, fmt.Errorf("%w: %s profiles cannot request unlocks", domain.ErrNotEligible, pol.DisplayName())
	}

	if p.CooldownEndAt != nil {
		return c.unlockResultLocked(p, pol, now), nil
	}
	if p.IsTemporarilyUnlocked(now) {
		return UnlockResult{}, fmt.Errorf("%w: %q is already unlocked until %s",
			domain.ErrNotEligible, p.Name, p.TemporaryUnlockEndAt.Format(time.Kitchen))
	}

	resetBudget := budgetExpired(p, now)
	if !resetBudget && pol.MaxUnlocks() != policy.Unlimited && p.DailyUnlocksUsed >= pol.MaxUnlocks() {
		return UnlockResult{}, fmt.Errorf("%w: no unlocks remaining this session (%d of %d used)",
			domain.ErrNotEligible, p.DailyUnlocksUsed, pol.MaxUnlocks())
	}

	if resetBudget {
		p.DailyUnlocksUsed = 0
		reset := now
		p.LastUnlockResetAt = &reset
	} else if p.LastUnlockResetAt == nil {
		reset := now
		p.LastUnlockResetAt = &reset
	}

	end := now.Add(pol.CooldownDuration())
	p.CooldownEndAt = &end
	c.scheduleLocked(timerKey{kind: timerCooldown, profileID: p.ID}, pol.CooldownDuration())
	c.saveLocked(now)

	c.logger.Info("unlock requested",
		zap.String("profile", p.ID),
		zap.Time("cooldown_end", end),
		zap.Int("unlocks_used", p.DailyUnlocksUsed))

	return c.unlockResultLocked(p, pol, now), nil
}

// CompleteCooldown grants the unlock window once the cooldown deadline has
// passed. It is a no-op when no cooldown is pending, which covers both
// completed and cancelled cooldowns.
func (c *Coordinator) CompleteCooldown(ctx context.Context, id string, now time.Time) error {
	c.mu.Lock()

	p := findProfile(c.profiles, id)
	if p == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if p.CooldownEndAt == nil {
		c.mu.Unlock()
		return nil
	}
	if now.Before(*p.CooldownEndAt) {
		// Not due; keep the timer aligned with the deadline.
		c.scheduleLocked(timerKey{kind: timerCooldown, profileID: p.ID}, p.CooldownEndAt.Sub(now))
		c.mu.Unlock()
		return nil
	}

	c.completeCooldownLocked(p, now, now)
	c.reconcileLocked(now)
	c.saveLocked(now)
	c.mu.Unlock()

	c.flush(ctx)
	return nil
}

// CancelCooldown aborts a pending cooldown without consuming an unlock.
func (c *Coordinator) CancelCooldown(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := findProfile(c.profiles, id)
	if p == nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if p.CooldownEndAt == nil {
		return nil
	}

	p.CooldownEndAt = nil
	c.stopTimerLocked(timerKey{kind: timerCooldown, profileID: p.ID})
	c.saveLocked(c.clock.Now())

	c.logger.Info("unlock cancelled", zap.String("profile", p.ID))
	return nil
}

// ExpireTemporaryUnlock closes the unlock window once it has ended and
// re-engages enforcement if the schedule is still active.
func (c *Coordinator) ExpireTemporaryUnlock(ctx context.Context, id string, now time.Time) error {
	c.mu.Lock()

	p := findProfile(c.profiles, id)
	if p == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if p.TemporaryUnlockEndAt == nil {
		c.mu.Unlock()
		return nil
	}
	if now.Before(*p.TemporaryUnlockEndAt) {
		c.scheduleLocked(timerKey{kind: timerUnlock, profileID: p.ID}, p.TemporaryUnlockEndAt.Sub(now))
		c.mu.Unlock()
		return nil
	}

	p.TemporaryUnlockEndAt = nil
	c.stopTimerLocked(timerKey{kind: timerUnlock, profileID: p.ID})
	c.logger.Info("temporary unlock expired", zap.String("profile", p.ID))

	c.reconcileLocked(now)
	c.saveLocked(now)
	c.mu.Unlock()

	c.flush(ctx)
	return nil
}

// RemainingUnlocks returns how many unlocks the profile may still request
// this session, or policy.Unlimited.
func (c *Coordinator) RemainingUnlocks(id string, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := findProfile(c.profiles, id)
	if p == nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	pol, err := c.policyFor(p)
	if err != nil {
		return 0, err
	}
	return remainingUnlocks(p, pol, now), nil
}

// CanFreelyDisable reports whether the profile may be disabled right now.
func (c *Coordinator) CanFreelyDisable(id string) (bool, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	p := findProfile(c.profiles, id)
	if p == nil {
		return false, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	err := c.guardLocked(p, now)
	if errors.Is(err, domain.ErrNotEligible) {
		return false, nil
	}
	return err == nil, err
}

// completeCooldownLocked consumes one unlock and opens a window starting at
// grantedAt. A window that already ended by now is not opened.
func (c *Coordinator) completeCooldownLocked(p *domain.Profile, grantedAt, now time.Time) {
	var window time.Duration
	if pol, err := c.policyFor(p); err != nil {
		c.logger.Warn("completing cooldown without a policy", zap.String("profile", p.ID), zap.Error(err))
	} else {
		window = pol.UnlockDuration()
	}

	c.stopTimerLocked(timerKey{kind: timerCooldown, profileID: p.ID})
	p.CooldownEndAt = nil
	p.DailyUnlocksUsed++

	end := grantedAt.Add(window)
	if end.After(now) {
		p.TemporaryUnlockEndAt = &end
		c.scheduleLocked(timerKey{kind: timerUnlock, profileID: p.ID}, end.Sub(now))
	} else {
		p.TemporaryUnlockEndAt = nil
	}

	c.logger.Info("cooldown completed",
		zap.String("profile", p.ID),
		zap.Int("unlocks_used", p.DailyUnlocksUsed),
		zap.Time("unlocked_until", end))
}

func (c *Coordinator) unlockResultLocked(p *domain.Profile, pol policy.StrictnessPolicy, now time.Time) UnlockResult {
	r := UnlockResult{
		ProfileID:        p.ID,
		RemainingUnlocks: remainingUnlocks(p, pol, now),
		MaxUnlocks:       pol.MaxUnlocks(),
	}
	if p.CooldownEndAt != nil {
		r.CooldownEndAt = *p.CooldownEndAt
	}
	return r
}

// budgetExpired reports whether a new session began since the counter was
// last reset. The counter is per schedule session, not per calendar day.
func budgetExpired(p *domain.Profile, now time.Time) bool {
	if !p.Schedule.IsActiveNow(now) {
		return true
	}
	return p.LastUnlockResetAt != nil && p.LastUnlockResetAt.Before(p.Schedule.StartOn(now))
}

func remainingUnlocks(p *domain.Profile, pol policy.StrictnessPolicy, now time.Time) int {
	max := pol.MaxUnlocks()
	if max == policy.Unlimited {
		return policy.Unlimited
	}
	used := p.DailyUnlocksUsed
	if budgetExpired(p, now) {
		used = 0
	}
	if used >= max {
		return 0
	}
	return max - used
}
