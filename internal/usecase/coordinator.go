// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/policy"
)

// Coordinator is the scheduling engine. It owns the profile list and the
// active/nuclear decision; every mutation goes through its methods.
// Activation events are delivered to listeners after the state lock is
// released, in the order they were produced.
type Coordinator struct {
	mu             sync.Mutex
	profiles       []domain.Profile
	state          domain.CoordinatorState
	timers         map[timerKey]domain.Timer
	deleteRequests map[string]time.Time
	degraded       bool

	listeners   []domain.ActivationListener
	pending     []domain.ActivationChange
	dispatching bool

	repo      domain.ProfileRepository
	mirror    domain.SharedMirror
	intervals domain.IntervalScheduler
	policies  *policy.Registry
	clock     domain.Clock
	logger    *zap.Logger
}

// NewCoordinator creates a scheduling engine. mirror and intervals may be nil.
func NewCoordinator(
	repo domain.ProfileRepository,
	mirror domain.SharedMirror,
	intervals domain.IntervalScheduler,
	policies *policy.Registry,
	clock domain.Clock,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		timers:         make(map[timerKey]domain.Timer),
		deleteRequests: make(map[string]time.Time),
		repo:           repo,
		mirror:         mirror,
		intervals:      intervals,
		policies:       policies,
		clock:          clock,
		logger:         logger,
	}
}

// Subscribe registers a listener for activation events.
func (c *Coordinator) Subscribe(l domain.ActivationListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Load reads profiles and state from the store, rebuilds deferred
// transitions from their persisted deadlines, registers interval activities
// and reconciles. A store failure leaves the engine running on an empty
// profile set in degraded mode and is returned wrapped in
// domain.ErrPersistence. While degraded nothing is written to the store or
// the mirror, so a transient read error cannot overwrite the stored
// profiles. Calling Load again retries; a failed retry keeps the in-memory
// state as it is.
func (c *Coordinator) Load(ctx context.Context) error {
	now := c.clock.Now()

	c.mu.Lock()
	var loadErr error

	profiles, err := c.repo.LoadProfiles()
	if err != nil {
		loadErr = fmt.Errorf("%w: load profiles: %v", domain.ErrPersistence, err)
		profiles = nil
	}
	state, err := c.repo.LoadState()
	if err != nil && loadErr == nil {
		loadErr = fmt.Errorf("%w: load state: %v", domain.ErrPersistence, err)
	}
	if err != nil {
		state = domain.CoordinatorState{}
	}

	if loadErr != nil {
		if c.degraded {
			c.mu.Unlock()
			c.logger.Warn("store still unreadable", zap.Error(loadErr))
			return loadErr
		}
		c.logger.Error("failed to load store, running degraded without persistence", zap.Error(loadErr))
	}

	c.stopAllTimersLocked()
	c.profiles = profiles
	c.state = state
	c.degraded = loadErr != nil

	for i := range c.profiles {
		c.restoreDeadlinesLocked(&c.profiles[i], now)
	}
	c.restoreNuclearLocked(now)
	c.registerIntervalsLocked()
	c.reconcileLocked(now)
	c.saveLocked(now)

	c.logger.Info("coordinator loaded",
		zap.Int("profiles", len(c.profiles)),
		zap.String("active", c.state.ActiveProfileID),
		zap.Bool("degraded", c.degraded))
	c.mu.Unlock()

	c.flush(ctx)
	return loadErr
}

// Degraded reports whether the last Load failed and persistence is off.
func (c *Coordinator) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Reconcile recomputes which profile should be enforced at now and emits an
// event when the decision changed. Repeated calls with unchanged inputs
// return nil.
func (c *Coordinator) Reconcile(ctx context.Context, now time.Time) *domain.ActivationChange {
	c.mu.Lock()
	change, dirty := c.reconcileLocked(now)
	if dirty {
		c.saveLocked(now)
	}
	c.mu.Unlock()

	c.flush(ctx)
	return change
}

// Resync reconciles and then re-announces the current decision even if it
// did not change, so listeners that lost their state (process restart,
// wake from sleep) converge on it.
func (c *Coordinator) Resync(ctx context.Context, now time.Time) {
	c.mu.Lock()
	changed, dirty := c.reconcileLocked(now)
	if dirty {
		c.saveLocked(now)
	}
	if changed == nil {
		change := domain.ActivationChange{Kind: domain.ChangeDeactivated, At: now}
		if p := findProfile(c.profiles, c.state.ActiveProfileID); p != nil {
			clone := p.Clone()
			change = domain.ActivationChange{
				Kind:       domain.ChangeActivated,
				Profile:    &clone,
				PreviousID: p.ID,
				Nuclear:    c.state.Nuclear.InEffect(now) && c.state.Nuclear.ProfileID == p.ID,
				At:         now,
			}
		}
		c.pending = append(c.pending, change)
	}
	c.mu.Unlock()

	c.flush(ctx)
}

// Close cancels all deferred transitions.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopAllTimersLocked()
}

// Profiles returns a copy of all profiles in tie-break order.
func (c *Coordinator) Profiles() []domain.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneProfiles(c.profiles)
}

// Profile returns a copy of one profile.
func (c *Coordinator) Profile(id string) (domain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := findProfile(c.profiles, id)
	if p == nil {
		return domain.Profile{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return p.Clone(), nil
}

// ActiveProfile returns the enforced profile, or nil.
func (c *Coordinator) ActiveProfile() *domain.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := findProfile(c.profiles, c.state.ActiveProfileID)
	if p == nil {
		return nil
	}
	clone := p.Clone()
	return &clone
}

// State returns a copy of the coordinator decision.
func (c *Coordinator) State() domain.CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

// reconcileLocked applies the selection to state and queues an event on
// change. It reports whether state needs saving; callers save.
func (c *Coordinator) reconcileLocked(now time.Time) (*domain.ActivationChange, bool) {
	d := SelectActive(c.profiles, c.state.Nuclear, now)
	dirty := false

	if d.ClearNuclear {
		c.logger.Info("nuclear override cleared",
			zap.String("profile", c.state.Nuclear.ProfileID),
			zap.Time("end_at", c.state.Nuclear.EndAt))
		c.state.Nuclear = nil
		c.stopTimerLocked(timerKey{kind: timerNuclear})
		dirty = true
	}

	newID := ""
	if d.Profile != nil {
		newID = d.Profile.ID
	}

	var change *domain.ActivationChange
	if newID != c.state.ActiveProfileID {
		prev := c.state.ActiveProfileID
		c.state.ActiveProfileID = newID
		dirty = true

		if d.Profile != nil {
			change = &domain.ActivationChange{
				Kind:       domain.ChangeActivated,
				Profile:    d.Profile,
				PreviousID: prev,
				Nuclear:    d.Nuclear,
				At:         now,
			}
			c.logger.Info("profile activated",
				zap.String("profile", d.Profile.ID),
				zap.String("name", d.Profile.Name),
				zap.String("previous", prev),
				zap.Bool("nuclear", d.Nuclear))
		} else {
			change = &domain.ActivationChange{
				Kind:       domain.ChangeDeactivated,
				PreviousID: prev,
				At:         now,
			}
			c.logger.Info("profile deactivated", zap.String("previous", prev))
		}
		c.pending = append(c.pending, *change)
	}

	return change, dirty
}

// saveLocked persists profiles and state, then refreshes the mirror.
// The mirror is only written after the store accepted both. Nothing is
// written while degraded.
func (c *Coordinator) saveLocked(now time.Time) {
	if c.degraded {
		c.logger.Warn("store unavailable, change kept in memory only")
		return
	}
	if err := c.repo.SaveProfiles(domain.CloneProfiles(c.profiles)); err != nil {
		c.logger.Error("failed to save profiles",
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
		return
	}
	if err := c.repo.SaveState(copyState(c.state)); err != nil {
		c.logger.Error("failed to save coordinator state",
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
		return
	}
	c.publishLocked(now)
}

func (c *Coordinator) publishLocked(now time.Time) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.Publish(c.snapshotLocked(now)); err != nil {
		c.logger.Warn("failed to publish mirror", zap.String("path", c.mirror.Path()), zap.Error(err))
	}
}

func (c *Coordinator) snapshotLocked(now time.Time) domain.MirrorSnapshot {
	snap := domain.MirrorSnapshot{
		Version:   domain.MirrorSchemaVersion,
		Profiles:  domain.CloneProfiles(c.profiles),
		Nuclear:   copyState(c.state).Nuclear,
		Active:    c.activeSummaryLocked(now),
		UpdatedAt: now.Unix(),
	}
	return snap
}

func (c *Coordinator) activeSummaryLocked(now time.Time) *domain.ActiveSummary {
	p := findProfile(c.profiles, c.state.ActiveProfileID)
	if p == nil {
		return nil
	}
	summary := &domain.ActiveSummary{
		ProfileID:  p.ID,
		Name:       p.Name,
		IconName:   p.IconName,
		Color:      p.Color,
		Strictness: p.Strictness,
		EndAt:      p.Schedule.EndOn(now),
	}
	if n := c.state.Nuclear; n.InEffect(now) && n.ProfileID == p.ID {
		summary.EndAt = n.EndAt
		summary.Nuclear = true
	}
	return summary
}

// flush delivers pending events. A listener that calls back into the
// coordinator has its events drained by the outer flush.
func (c *Coordinator) flush(ctx context.Context) {
	c.mu.Lock()
	if c.dispatching {
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	for len(c.pending) > 0 {
		change := c.pending[0]
		c.pending = c.pending[1:]
		listeners := append([]domain.ActivationListener(nil), c.listeners...)
		c.mu.Unlock()

		for _, l := range listeners {
			l.OnActivationChange(ctx, change)
		}

		c.mu.Lock()
	}
	c.dispatching = false
	c.mu.Unlock()
}

func (c *Coordinator) registerIntervalsLocked() {
	if c.intervals == nil {
		return
	}
	c.intervals.StopAll()
	for _, p := range c.profiles {
		if !p.IsEnabled {
			continue
		}
		activity := domain.IntervalActivity{
			Name:        p.ID,
			StartMinute: p.Schedule.StartMinute,
			EndMinute:   p.Schedule.EndMinute,
			Days:        p.Schedule.SortedDays(),
		}
		if err := c.intervals.Register(activity); err != nil {
			c.logger.Warn("failed to register interval",
				zap.String("profile", p.ID),
				zap.Error(err))
		}
	}
}

func (c *Coordinator) policyFor(p *domain.Profile) (policy.StrictnessPolicy, error) {
	pol, err := c.policies.For(p.Strictness)
	if err != nil {
		return nil, fmt.Errorf("%w: profile %s: %v", domain.ErrNotEligible, p.ID, err)
	}
	return pol, nil
}

func (c *Coordinator) indexLocked(id string) int {
	for i := range c.profiles {
		if c.profiles[i].ID == id {
			return i
		}
	}
	return -1
}

func copyState(s domain.CoordinatorState) domain.CoordinatorState {
	out := domain.CoordinatorState{ActiveProfileID: s.ActiveProfileID}
	if s.Nuclear != nil {
		n := *s.Nuclear
		out.Nuclear = &n
	}
	return out
}
