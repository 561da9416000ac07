package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// NuclearDuration is how long a nuclear override forces its profile.
const NuclearDuration = time.Hour

// ActivateNuclear forces the profile active for NuclearDuration regardless
// of its schedule, enabled flag or strictness. An existing override is
// replaced.
func (c *Coordinator) ActivateNuclear(ctx context.Context, id string, now time.Time) (domain.NuclearOverride, error) {
	c.mu.Lock()

	p := findProfile(c.profiles, id)
	if p == nil {
		c.mu.Unlock()
		return domain.NuclearOverride{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	override := domain.NuclearOverride{ProfileID: id, EndAt: now.Add(NuclearDuration)}
	if prev := c.state.Nuclear; prev != nil {
		c.logger.Info("replacing nuclear override", zap.String("previous", prev.ProfileID))
	}
	c.state.Nuclear = &override
	c.scheduleLocked(timerKey{kind: timerNuclear}, NuclearDuration)

	c.logger.Warn("nuclear override activated",
		zap.String("profile", id),
		zap.String("name", p.Name),
		zap.Time("end_at", override.EndAt))

	c.reconcileLocked(now)
	c.saveLocked(now)
	c.mu.Unlock()

	c.flush(ctx)
	return override, nil
}

// DeactivateNuclear clears the override and lets normal scheduling resume.
func (c *Coordinator) DeactivateNuclear(ctx context.Context, now time.Time) {
	c.mu.Lock()
	if c.state.Nuclear == nil {
		c.mu.Unlock()
		return
	}

	c.logger.Info("nuclear override deactivated", zap.String("profile", c.state.Nuclear.ProfileID))
	c.state.Nuclear = nil
	c.stopTimerLocked(timerKey{kind: timerNuclear})

	c.reconcileLocked(now)
	c.saveLocked(now)
	c.mu.Unlock()

	c.flush(ctx)
}

// Nuclear returns the current override, or nil.
func (c *Coordinator) Nuclear() *domain.NuclearOverride {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state).Nuclear
}

func (c *Coordinator) expireNuclear(ctx context.Context, now time.Time) {
	c.mu.Lock()
	n := c.state.Nuclear
	if n == nil {
		c.mu.Unlock()
		return
	}
	if now.Before(n.EndAt) {
		c.scheduleLocked(timerKey{kind: timerNuclear}, n.EndAt.Sub(now))
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.DeactivateNuclear(ctx, now)
}
