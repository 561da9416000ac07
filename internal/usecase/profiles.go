package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// ErrInvalidProfile rejects profiles with missing or unknown fields.
var ErrInvalidProfile = errors.New("invalid profile")

// AddProfile validates and appends a profile. Session fields are reset and
// an ID is generated when empty. New profiles go last in tie-break order.
func (c *Coordinator) AddProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	now := c.clock.Now()

	if p.Strictness == "" {
		p.Strictness = domain.StrictnessStandard
	}
	if err := c.validateProfile(p); err != nil {
		return domain.Profile{}, err
	}

	c.mu.Lock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if c.indexLocked(p.ID) >= 0 {
		c.mu.Unlock()
		return domain.Profile{}, fmt.Errorf("%w: duplicate id %s", ErrInvalidProfile, p.ID)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.DailyUnlocksUsed = 0
	p.LastUnlockResetAt = nil
	p.CooldownEndAt = nil
	p.TemporaryUnlockEndAt = nil

	c.profiles = append(c.profiles, p.Clone())
	c.registerIntervalsLocked()
	c.reconcileLocked(now)
	c.saveLocked(now)

	c.logger.Info("profile added",
		zap.String("profile", p.ID),
		zap.String("name", p.Name),
		zap.String("strictness", string(p.Strictness)),
		zap.Stringer("schedule", p.Schedule))
	c.mu.Unlock()

	c.flush(ctx)
	return p, nil
}

// UpdateProfile replaces the editable fields of a profile. While the
// profile is protected (see guardLocked), edits that would weaken it
// (disabling, lowering strictness, moving the window off now, dropping
// blocked targets) are rejected with domain.ErrNotEligible.
func (c *Coordinator) UpdateProfile(ctx context.Context, updated domain.Profile) error {
	now := c.clock.Now()
	if err := c.validateProfile(updated); err != nil {
		return err
	}

	c.mu.Lock()
	idx := c.indexLocked(updated.ID)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, updated.ID)
	}
	old := c.profiles[idx]

	if weakens(old, updated, now) {
		if err := c.guardLocked(&old, now); err != nil {
			c.mu.Unlock()
			return err
		}
	}

	next := updated.Clone()
	next.CreatedAt = old.CreatedAt
	next.DailyUnlocksUsed = old.DailyUnlocksUsed
	next.LastUnlockResetAt = old.LastUnlockResetAt
	next.CooldownEndAt = old.CooldownEndAt
	next.TemporaryUnlockEndAt = old.TemporaryUnlockEndAt
	c.profiles[idx] = next

	c.registerIntervalsLocked()
	change, _ := c.reconcileLocked(now)
	if change == nil && c.state.ActiveProfileID == next.ID && !sameTargets(old.BlockedTargets, next.BlockedTargets) {
		// Same profile stays active with a different blocklist.
		clone := next.Clone()
		c.pending = append(c.pending, domain.ActivationChange{
			Kind:       domain.ChangeActivated,
			Profile:    &clone,
			PreviousID: next.ID,
			Nuclear:    c.state.Nuclear.InEffect(now) && c.state.Nuclear.ProfileID == next.ID,
			At:         now,
		})
	}
	c.saveLocked(now)

	c.logger.Info("profile updated", zap.String("profile", next.ID), zap.String("name", next.Name))
	c.mu.Unlock()

	c.flush(ctx)
	return nil
}

// SetEnabled enables or disables a profile. Disabling a protected profile
// fails with domain.ErrNotEligible.
func (c *Coordinator) SetEnabled(ctx context.Context, id string, enabled bool) error {
	now := c.clock.Now()

	c.mu.Lock()
	p := findProfile(c.profiles, id)
	if p == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if p.IsEnabled == enabled {
		c.mu.Unlock()
		return nil
	}
	if !enabled {
		if err := c.guardLocked(p, now); err != nil {
			c.mu.Unlock()
			return err
		}
	}

	p.IsEnabled = enabled
	c.registerIntervalsLocked()
	c.reconcileLocked(now)
	c.saveLocked(now)

	c.logger.Info("profile toggled", zap.String("profile", id), zap.Bool("enabled", enabled))
	c.mu.Unlock()

	c.flush(ctx)
	return nil
}

// ToggleProfile flips IsEnabled.
func (c *Coordinator) ToggleProfile(ctx context.Context, id string) error {
	p, err := c.Profile(id)
	if err != nil {
		return err
	}
	return c.SetEnabled(ctx, id, !p.IsEnabled)
}

// RequestDelete starts the waiting period for a destructive delete and
// returns when DeleteProfile will be permitted. Repeated requests keep the
// original start. A profile held by the nuclear override cannot be deleted
// until the override ends.
func (c *Coordinator) RequestDelete(id string) (time.Time, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	p := findProfile(c.profiles, id)
	if p == nil {
		return time.Time{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err := c.nuclearGuardLocked(p, now); err != nil {
		return time.Time{}, err
	}
	wait, err := c.deleteWaitLocked(p, now)
	if err != nil {
		return time.Time{}, err
	}
	if wait == 0 {
		return now, nil
	}

	requested, ok := c.deleteRequests[id]
	if !ok {
		requested = now
		c.deleteRequests[id] = requested
		c.logger.Info("delete requested", zap.String("profile", id), zap.Duration("wait", wait))
	}
	return requested.Add(wait), nil
}

// CancelDeleteRequest abandons a pending delete countdown.
func (c *Coordinator) CancelDeleteRequest(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.deleteRequests, id)
}

// DeleteProfile removes a profile. A destructive delete requires a prior
// RequestDelete whose waiting period has elapsed; otherwise
// domain.ErrDeleteCooldown is returned. The nuclear profile cannot be
// deleted while the override is in effect.
func (c *Coordinator) DeleteProfile(ctx context.Context, id string) error {
	now := c.clock.Now()

	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	if err := c.nuclearGuardLocked(&c.profiles[idx], now); err != nil {
		c.mu.Unlock()
		return err
	}
	wait, err := c.deleteWaitLocked(&c.profiles[idx], now)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if wait > 0 {
		requested, ok := c.deleteRequests[id]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: request deletion first and wait %s", domain.ErrDeleteCooldown, wait)
		}
		if readyAt := requested.Add(wait); now.Before(readyAt) {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s left", domain.ErrDeleteCooldown, readyAt.Sub(now).Round(time.Second))
		}
	}

	name := c.profiles[idx].Name
	c.profiles = append(c.profiles[:idx], c.profiles[idx+1:]...)
	c.stopProfileTimersLocked(id)
	delete(c.deleteRequests, id)
	if c.state.Nuclear != nil && c.state.Nuclear.ProfileID == id {
		c.state.Nuclear = nil
		c.stopTimerLocked(timerKey{kind: timerNuclear})
	}

	c.registerIntervalsLocked()
	c.reconcileLocked(now)
	c.saveLocked(now)

	c.logger.Info("profile deleted", zap.String("profile", id), zap.String("name", name))
	c.mu.Unlock()

	c.flush(ctx)
	return nil
}

// deleteWaitLocked returns the waiting period a delete of p must observe
// right now; zero when the delete would not remove enforcement.
func (c *Coordinator) deleteWaitLocked(p *domain.Profile, now time.Time) (time.Duration, error) {
	pol, err := c.policyFor(p)
	if err != nil {
		return 0, err
	}
	if !inSession(p, now) {
		return 0, nil
	}
	return pol.DeleteWaitPeriod(), nil
}

// guardLocked fails with domain.ErrNotEligible when p may not be disabled or
// weakened at now. A profile is protected while the nuclear override holds
// it, or while it is enabled inside its window and its policy forbids a
// free disable. A running cooldown or temporary unlock does not lift the
// protection; the unlock only suspends enforcement until it expires.
func (c *Coordinator) guardLocked(p *domain.Profile, now time.Time) error {
	if err := c.nuclearGuardLocked(p, now); err != nil {
		return err
	}
	pol, err := c.policyFor(p)
	if err != nil {
		return err
	}
	if !pol.CanFreelyDisable(inSession(p, now)) {
		return fmt.Errorf("%w: %s profile %q is protected until its window ends",
			domain.ErrNotEligible, pol.DisplayName(), p.Name)
	}
	return nil
}

func (c *Coordinator) nuclearGuardLocked(p *domain.Profile, now time.Time) error {
	if n := c.state.Nuclear; n.InEffect(now) && n.ProfileID == p.ID {
		return fmt.Errorf("%w: profile %q is held by the nuclear override until %s",
			domain.ErrNotEligible, p.Name, n.EndAt.Format("15:04"))
	}
	return nil
}

// inSession reports whether p is enabled and inside its window at now,
// whether or not an unlock currently suspends it.
func inSession(p *domain.Profile, now time.Time) bool {
	return p.IsEnabled && p.Schedule.IsActiveNow(now)
}

// weakens reports whether replacing old with updated at now would loosen
// enforcement.
func weakens(old, updated domain.Profile, now time.Time) bool {
	return (old.IsEnabled && !updated.IsEnabled) ||
		updated.Strictness.Rank() < old.Strictness.Rank() ||
		(old.Schedule.IsActiveNow(now) && !updated.Schedule.IsActiveNow(now)) ||
		dropsTargets(old.BlockedTargets, updated.BlockedTargets)
}

// dropsTargets reports whether next blocks less than prev.
func dropsTargets(prev, next domain.BlockedTargets) bool {
	return !containsAll(next.Apps, prev.Apps) || !containsAll(next.Websites, prev.Websites)
}

func containsAll(set, items []string) bool {
	have := make(map[string]bool, len(set))
	for _, s := range set {
		have[strings.ToLower(s)] = true
	}
	for _, item := range items {
		if !have[strings.ToLower(item)] {
			return false
		}
	}
	return true
}

func (c *Coordinator) validateProfile(p domain.Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if _, err := c.policies.For(p.Strictness); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	return p.Schedule.Validate()
}

func sameTargets(a, b domain.BlockedTargets) bool {
	return equalStrings(a.Apps, b.Apps) && equalStrings(a.Websites, b.Websites)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
