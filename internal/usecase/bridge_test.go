package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/testfixtures"
)

func TestEnforcementBridge_FollowsEvents(t *testing.T) {
	enforcer := &mockEnforcer{}
	bridge := NewEnforcementBridge(enforcer, zap.NewNop())
	ctx := context.Background()

	p := workday("a", domain.StrictnessStrict)
	bridge.OnActivationChange(ctx, domain.ActivationChange{Kind: domain.ChangeActivated, Profile: &p})
	require.NotNil(t, enforcer.applied)
	assert.Equal(t, []string{"steam"}, enforcer.applied.Apps)

	bridge.OnActivationChange(ctx, domain.ActivationChange{Kind: domain.ChangeDeactivated, PreviousID: "a"})
	assert.Nil(t, enforcer.applied)
	assert.Equal(t, []string{"apply", "clear"}, enforcer.calls)
}

func TestEnforcementBridge_ReapplyBeforeFirstEvent(t *testing.T) {
	enforcer := &mockEnforcer{}
	bridge := NewEnforcementBridge(enforcer, zap.NewNop())

	require.NoError(t, bridge.Reapply(context.Background()))
	assert.Empty(t, enforcer.calls)
}

func TestEnforcementBridge_ReapplyRepeatsLatest(t *testing.T) {
	enforcer := &mockEnforcer{}
	bridge := NewEnforcementBridge(enforcer, zap.NewNop())
	ctx := context.Background()

	p := workday("a", domain.StrictnessStrict)
	bridge.OnActivationChange(ctx, domain.ActivationChange{Kind: domain.ChangeActivated, Profile: &p})
	require.NoError(t, bridge.Reapply(ctx))
	assert.Equal(t, []string{"apply", "apply"}, enforcer.calls)

	bridge.OnActivationChange(ctx, domain.ActivationChange{Kind: domain.ChangeDeactivated})
	require.NoError(t, bridge.Reapply(ctx))
	assert.Equal(t, []string{"apply", "apply", "clear", "clear"}, enforcer.calls)
}

func TestEnforcementBridge_ErrorsWrapped(t *testing.T) {
	enforcer := &mockEnforcer{applyErr: errBoom}
	bridge := NewEnforcementBridge(enforcer, zap.NewNop())
	ctx := context.Background()

	p := workday("a", domain.StrictnessStrict)
	bridge.OnActivationChange(ctx, domain.ActivationChange{Kind: domain.ChangeActivated, Profile: &p})

	err := bridge.Reapply(ctx)
	assert.ErrorIs(t, err, domain.ErrEnforcer)

	// Recovery on the next attempt.
	enforcer.applyErr = nil
	require.NoError(t, bridge.Reapply(ctx))
	require.NotNil(t, enforcer.applied)
}

func TestEnforcementBridge_WithCoordinator(t *testing.T) {
	enforcer := &mockEnforcer{}
	env := newTestEnv(t, testfixtures.At(8, 0), workday("a", domain.StrictnessStandard))
	env.c.Subscribe(NewEnforcementBridge(enforcer, zap.NewNop()))

	env.c.Reconcile(context.Background(), testfixtures.At(9, 0))
	env.c.Reconcile(context.Background(), testfixtures.At(17, 0))

	assert.Equal(t, []string{"apply", "clear"}, enforcer.calls)
}
