package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// EnforcementBridge forwards activation events to the Enforcer.
// Failures are logged and not retried; Reapply and the next event
// converge the Enforcer on the latest decision.
type EnforcementBridge struct {
	mu       sync.Mutex
	enforcer domain.Enforcer
	logger   *zap.Logger

	// Most recent decision; nil targets means cleared.
	targets *domain.BlockedTargets
	synced  bool
}

// NewEnforcementBridge creates a bridge to enforcer.
func NewEnforcementBridge(enforcer domain.Enforcer, logger *zap.Logger) *EnforcementBridge {
	return &EnforcementBridge{enforcer: enforcer, logger: logger}
}

// OnActivationChange implements domain.ActivationListener.
func (b *EnforcementBridge) OnActivationChange(ctx context.Context, change domain.ActivationChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch change.Kind {
	case domain.ChangeActivated:
		if change.Profile == nil {
			return
		}
		targets := change.Profile.BlockedTargets.Clone()
		b.targets = &targets
	case domain.ChangeDeactivated:
		b.targets = nil
	default:
		return
	}
	b.synced = true
	b.applyLocked(ctx)
}

// Reapply pushes the latest decision to the Enforcer again.
// It does nothing before the first event arrives.
func (b *EnforcementBridge) Reapply(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.synced {
		return nil
	}
	return b.applyLocked(ctx)
}

func (b *EnforcementBridge) applyLocked(ctx context.Context) error {
	var err error
	if b.targets == nil {
		err = b.enforcer.ClearBlock(ctx)
	} else {
		err = b.enforcer.ApplyBlock(ctx, *b.targets)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrEnforcer, err)
		b.logger.Warn("enforcer call failed", zap.Error(err))
		return err
	}
	return nil
}

// Ensure EnforcementBridge implements domain.ActivationListener.
var _ domain.ActivationListener = (*EnforcementBridge)(nil)
