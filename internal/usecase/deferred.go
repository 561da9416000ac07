package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

type timerKind int

const (
	timerCooldown timerKind = iota
	timerUnlock
	timerNuclear
)

func (k timerKind) String() string {
	switch k {
	case timerCooldown:
		return "cooldown"
	case timerUnlock:
		return "unlock"
	case timerNuclear:
		return "nuclear"
	default:
		return "unknown"
	}
}

// timerKey identifies one deferred transition. Nuclear has no profile ID
// since only one override exists.
type timerKey struct {
	kind      timerKind
	profileID string
}

// scheduleLocked replaces any pending timer for key.
// Timer callbacks re-check persisted deadlines before acting, so a stale
// timer that raced with cancellation is harmless.
func (c *Coordinator) scheduleLocked(key timerKey, d time.Duration) {
	c.stopTimerLocked(key)
	c.timers[key] = c.clock.AfterFunc(d, func() { c.fire(key) })
	c.logger.Debug("deferred transition scheduled",
		zap.Stringer("kind", key.kind),
		zap.String("profile", key.profileID),
		zap.Duration("in", d))
}

func (c *Coordinator) stopTimerLocked(key timerKey) {
	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
}

func (c *Coordinator) stopProfileTimersLocked(id string) {
	c.stopTimerLocked(timerKey{kind: timerCooldown, profileID: id})
	c.stopTimerLocked(timerKey{kind: timerUnlock, profileID: id})
}

func (c *Coordinator) stopAllTimersLocked() {
	for key, t := range c.timers {
		t.Stop()
		delete(c.timers, key)
	}
}

func (c *Coordinator) fire(key timerKey) {
	ctx := context.Background()
	now := c.clock.Now()

	var err error
	switch key.kind {
	case timerCooldown:
		err = c.CompleteCooldown(ctx, key.profileID, now)
	case timerUnlock:
		err = c.ExpireTemporaryUnlock(ctx, key.profileID, now)
	case timerNuclear:
		c.expireNuclear(ctx, now)
	}
	if err != nil {
		c.logger.Debug("deferred transition skipped",
			zap.Stringer("kind", key.kind),
			zap.String("profile", key.profileID),
			zap.Error(err))
	}
}

// restoreDeadlinesLocked rebuilds timers from persisted deadlines.
// Anything already due is applied as of its own deadline, not as of now.
func (c *Coordinator) restoreDeadlinesLocked(p *domain.Profile, now time.Time) {
	if p.CooldownEndAt != nil {
		if remaining := p.CooldownEndAt.Sub(now); remaining > 0 {
			c.scheduleLocked(timerKey{kind: timerCooldown, profileID: p.ID}, remaining)
		} else {
			c.completeCooldownLocked(p, *p.CooldownEndAt, now)
		}
	}

	if p.TemporaryUnlockEndAt != nil {
		if remaining := p.TemporaryUnlockEndAt.Sub(now); remaining > 0 {
			c.scheduleLocked(timerKey{kind: timerUnlock, profileID: p.ID}, remaining)
		} else {
			c.logger.Info("temporary unlock expired while stopped", zap.String("profile", p.ID))
			p.TemporaryUnlockEndAt = nil
		}
	}
}

func (c *Coordinator) restoreNuclearLocked(now time.Time) {
	n := c.state.Nuclear
	if n == nil {
		return
	}
	if remaining := n.EndAt.Sub(now); remaining > 0 {
		c.scheduleLocked(timerKey{kind: timerNuclear}, remaining)
		return
	}
	c.logger.Info("nuclear override expired while stopped", zap.String("profile", n.ProfileID))
	c.state.Nuclear = nil
}
