// Package monitor runs in the short-lived process spawned at interval
// boundaries. It only reads the shared mirror and never writes state.
package monitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/usecase"
)

// IntervalMonitor recomputes the active profile from the mirror when an
// interval starts or ends and pushes the result to the enforcer.
type IntervalMonitor struct {
	mirror   domain.MirrorReader
	enforcer domain.Enforcer
	clock    domain.Clock
	logger   *zap.Logger
}

// NewIntervalMonitor creates a monitor.
func NewIntervalMonitor(mirror domain.MirrorReader, enforcer domain.Enforcer, clock domain.Clock, logger *zap.Logger) *IntervalMonitor {
	return &IntervalMonitor{
		mirror:   mirror,
		enforcer: enforcer,
		clock:    clock,
		logger:   logger,
	}
}

// IntervalDidStart handles the start boundary of activity. Unknown or
// disabled profiles and days the profile is not active are ignored.
func (m *IntervalMonitor) IntervalDidStart(ctx context.Context, activity string) error {
	snapshot, err := m.load()
	if err != nil || snapshot == nil {
		return err
	}
	now := m.clock.Now()

	p := findProfile(snapshot.Profiles, activity)
	switch {
	case p == nil:
		m.logger.Info("interval start for unknown profile", zap.String("activity", activity))
		return nil
	case !p.IsEnabled:
		m.logger.Info("interval start for disabled profile", zap.String("activity", activity))
		return nil
	case !p.Schedule.HasDay(domain.WeekdayOf(now)):
		m.logger.Debug("profile not active today", zap.String("activity", activity))
		return nil
	}

	d := usecase.SelectActive(snapshot.Profiles, snapshot.Nuclear, now)
	return m.apply(ctx, d, "start", activity)
}

// IntervalDidEnd handles the end boundary of activity. Another profile
// that is still active takes over; otherwise blocking is cleared.
func (m *IntervalMonitor) IntervalDidEnd(ctx context.Context, activity string) error {
	snapshot, err := m.load()
	if err != nil || snapshot == nil {
		return err
	}
	now := m.clock.Now()

	d := usecase.SelectActive(snapshot.Profiles, snapshot.Nuclear, now)
	if d.Profile != nil && d.Profile.ID == activity && !d.Nuclear {
		// The boundary fired before the window closed on this clock
		rest := make([]domain.Profile, 0, len(snapshot.Profiles))
		for _, p := range snapshot.Profiles {
			if p.ID != activity {
				rest = append(rest, p)
			}
		}
		d = usecase.SelectActive(rest, snapshot.Nuclear, now)
	}
	return m.apply(ctx, d, "end", activity)
}

func (m *IntervalMonitor) apply(ctx context.Context, d usecase.Decision, event, activity string) error {
	if d.Profile == nil {
		m.logger.Info("no profile active, clearing block",
			zap.String("event", event),
			zap.String("activity", activity))
		if err := m.enforcer.ClearBlock(ctx); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrEnforcer, err)
		}
		return nil
	}

	m.logger.Info("applying block",
		zap.String("event", event),
		zap.String("activity", activity),
		zap.String("profile", d.Profile.ID),
		zap.Bool("nuclear", d.Nuclear))
	if err := m.enforcer.ApplyBlock(ctx, d.Profile.BlockedTargets); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEnforcer, err)
	}
	return nil
}

func (m *IntervalMonitor) load() (*domain.MirrorSnapshot, error) {
	snapshot, err := m.mirror.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: read mirror: %v", domain.ErrPersistence, err)
	}
	if snapshot == nil {
		m.logger.Warn("mirror not written yet, nothing to do")
	}
	return snapshot, nil
}

func findProfile(profiles []domain.Profile, id string) *domain.Profile {
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}
