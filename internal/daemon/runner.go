// Package daemon runs the long-lived engine process and spawns the helper
// processes it needs.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// RunnerConfig holds the daemon loop intervals.
type RunnerConfig struct {
	TickInterval      time.Duration // How often to reconcile against the clock
	EnforceInterval   time.Duration // How often to re-apply the current block
	HeartbeatInterval time.Duration // How often to stamp the mirror
}

// DefaultRunnerConfig returns default loop intervals.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		TickInterval:      30 * time.Second,
		EnforceInterval:   10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Engine is the part of the coordinator the runner drives.
type Engine interface {
	Load(ctx context.Context) error
	Reconcile(ctx context.Context, now time.Time) *domain.ActivationChange
	Resync(ctx context.Context, now time.Time)
	Degraded() bool
}

// Reapplier re-applies the latest enforcement decision.
type Reapplier interface {
	Reapply(ctx context.Context) error
}

// Heartbeater stamps liveness for out-of-process readers.
type Heartbeater interface {
	Heartbeat(at time.Time) error
}

// Runner is the engine daemon loop. It reconciles on a tick, sweeps
// enforcement so killed-and-relaunched apps stay blocked, and resyncs when
// the host wakes from sleep.
type Runner struct {
	config    RunnerConfig
	engine    Engine
	reapplier Reapplier
	heartbeat Heartbeater
	clock     domain.Clock
	logger    *zap.Logger
	resume    chan struct{}
	ready     chan struct{}
}

// NewRunner creates a daemon loop. heartbeat may be nil.
func NewRunner(
	config RunnerConfig,
	engine Engine,
	reapplier Reapplier,
	heartbeat Heartbeater,
	clock domain.Clock,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		config:    config,
		engine:    engine,
		reapplier: reapplier,
		heartbeat: heartbeat,
		clock:     clock,
		logger:    logger,
		resume:    make(chan struct{}, 1),
		ready:     make(chan struct{}),
	}
}

// Resume asks the loop to resync. Calls while a resync is already queued
// are coalesced.
func (r *Runner) Resume() {
	select {
	case r.resume <- struct{}{}:
	default:
	}
}

// Ready is closed once the engine is loaded and the first resync is done.
func (r *Runner) Ready() <-chan struct{} {
	return r.ready
}

// Run loads the engine and blocks until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.engine.Load(ctx); err != nil {
		// The engine keeps running on an empty profile set; retried on tick
		r.logger.Error("failed to load profiles", zap.Error(err))
	}

	now := r.clock.Now()
	r.engine.Resync(ctx, now)
	lastTick := now
	close(r.ready)

	r.logger.Info("engine daemon started",
		zap.Duration("tick", r.config.TickInterval),
		zap.Duration("enforce", r.config.EnforceInterval))

	tickTicker := time.NewTicker(r.config.TickInterval)
	enforceTicker := time.NewTicker(r.config.EnforceInterval)
	heartbeatTicker := time.NewTicker(r.config.HeartbeatInterval)

	defer func() {
		tickTicker.Stop()
		enforceTicker.Stop()
		heartbeatTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("engine daemon stopping")
			return ctx.Err()

		case <-tickTicker.C:
			if r.engine.Degraded() {
				r.retryLoad(ctx)
			}
			now := r.clock.Now()
			if gap := now.Sub(lastTick); gap > 2*r.config.TickInterval || gap < 0 {
				r.logger.Info("clock jumped, resyncing", zap.Duration("gap", gap))
				r.engine.Resync(ctx, now)
			} else {
				r.engine.Reconcile(ctx, now)
			}
			lastTick = now

		case <-enforceTicker.C:
			if err := r.reapplier.Reapply(ctx); err != nil {
				r.logger.Warn("enforcement sweep failed", zap.Error(err))
			}

		case <-heartbeatTicker.C:
			if r.heartbeat == nil {
				continue
			}
			if err := r.heartbeat.Heartbeat(r.clock.Now()); err != nil {
				r.logger.Warn("failed to update heartbeat", zap.Error(err))
			}

		case <-r.resume:
			now := r.clock.Now()
			r.logger.Info("resume requested, resyncing")
			r.engine.Resync(ctx, now)
			lastTick = now
		}
	}
}

func (r *Runner) retryLoad(ctx context.Context) {
	if err := r.engine.Load(ctx); err != nil {
		r.logger.Debug("store still unavailable", zap.Error(err))
		return
	}
	r.logger.Info("store readable again, persistence resumed")
}
