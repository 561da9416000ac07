package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/policy"
	"github.com/eliteGoblin/focusd/focuscage/internal/testfixtures"
)

// Scenario: a Strict unlock cools down for 10 minutes, unlocks for 15 and
// then enforcement resumes inside the window.
func TestStrictUnlock_FullCycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(14, 0), workday("s", domain.StrictnessStrict))

	res, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, testfixtures.At(14, 10), res.CooldownEndAt)
	assert.Equal(t, 2, res.RemainingUnlocks)

	p, _ := env.c.Profile("s")
	assert.Equal(t, 0, p.DailyUnlocksUsed, "budget is consumed on completion only")
	assert.Equal(t, domain.UnlockCoolingDown, p.UnlockState(env.clock.Now()))
	assert.Equal(t, "s", env.c.State().ActiveProfileID)

	env.clock.Advance(10 * time.Minute)

	p, _ = env.c.Profile("s")
	assert.Equal(t, 1, p.DailyUnlocksUsed)
	assert.Nil(t, p.CooldownEndAt)
	require.NotNil(t, p.TemporaryUnlockEndAt)
	assert.Equal(t, testfixtures.At(14, 25), *p.TemporaryUnlockEndAt)
	assert.True(t, p.IsTemporarilyUnlocked(env.clock.Now()))
	assert.Empty(t, env.c.State().ActiveProfileID)
	assert.Equal(t, domain.ChangeDeactivated, env.listener.last().Kind)

	env.clock.Advance(15 * time.Minute)

	p, _ = env.c.Profile("s")
	assert.Nil(t, p.TemporaryUnlockEndAt)
	assert.Equal(t, "s", env.c.State().ActiveProfileID)

	kinds := make([]domain.ChangeKind, 0)
	for _, c := range env.listener.all() {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []domain.ChangeKind{domain.ChangeActivated, domain.ChangeDeactivated, domain.ChangeActivated}, kinds)

	// Persisted copy matches.
	stored := env.repo.stored("s")
	assert.Equal(t, 1, stored.DailyUnlocksUsed)
	assert.Nil(t, stored.TemporaryUnlockEndAt)
}

func TestStrictUnlock_UnlockEndingAfterWindowStaysOff(t *testing.T) {
	env := newTestEnv(t, testfixtures.At(16, 50), workday("s", domain.StrictnessStrict))

	_, err := env.c.RequestUnlock(context.Background(), "s", env.clock.Now())
	require.NoError(t, err)
	env.clock.Advance(25 * time.Minute)

	assert.Empty(t, env.c.State().ActiveProfileID)
	p, _ := env.c.Profile("s")
	assert.Nil(t, p.TemporaryUnlockEndAt)
}

func TestStrictUnlock_ThirdRequestRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(14, 0), workday("s", domain.StrictnessStrict))

	for i := 0; i < 2; i++ {
		_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
		require.NoError(t, err, "unlock %d", i+1)
		env.clock.Advance(25 * time.Minute)
	}

	p, _ := env.c.Profile("s")
	require.Equal(t, 2, p.DailyUnlocksUsed)
	saves := env.repo.saveCount

	_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	assert.True(t, errors.Is(err, domain.ErrNotEligible))

	p, _ = env.c.Profile("s")
	assert.Nil(t, p.CooldownEndAt)
	assert.Equal(t, saves, env.repo.saveCount)

	remaining, err := env.c.RemainingUnlocks("s", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestStrictUnlock_BudgetResetsNextSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(14, 0), workday("s", domain.StrictnessStrict))

	for i := 0; i < 2; i++ {
		_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
		require.NoError(t, err)
		env.clock.Advance(25 * time.Minute)
	}

	// Next day's session.
	env.clock.Set(testfixtures.At(10, 0).AddDate(0, 0, 1))
	remaining, err := env.c.RemainingUnlocks("s", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	res, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, res.RemainingUnlocks)

	p, _ := env.c.Profile("s")
	assert.Equal(t, 0, p.DailyUnlocksUsed)
	require.NotNil(t, p.LastUnlockResetAt)
	assert.Equal(t, env.clock.Now(), *p.LastUnlockResetAt)
}

func TestRequestUnlock_IneligibleLevels(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0),
		workday("locked", domain.StrictnessLocked),
		workday("standard", domain.StrictnessStandard),
	)

	for _, id := range []string{"locked", "standard"} {
		_, err := env.c.RequestUnlock(ctx, id, env.clock.Now())
		assert.True(t, errors.Is(err, domain.ErrNotEligible), id)

		p, _ := env.c.Profile(id)
		assert.Nil(t, p.CooldownEndAt, id)
	}

	_, err := env.c.RequestUnlock(ctx, "ghost", env.clock.Now())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRequestUnlock_DuringCooldownReturnsExisting(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("s", domain.StrictnessStrict))

	first, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)

	env.clock.Advance(3 * time.Minute)
	second, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, first.CooldownEndAt, second.CooldownEndAt)
}

func TestRequestUnlock_WhileUnlockedRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("s", domain.StrictnessStrict))

	_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	env.clock.Advance(11 * time.Minute)

	_, err = env.c.RequestUnlock(ctx, "s", env.clock.Now())
	assert.True(t, errors.Is(err, domain.ErrNotEligible))
}

func TestCancelCooldown_InvalidatesCompletion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("s", domain.StrictnessStrict))

	_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	env.clock.Advance(5 * time.Minute)

	require.NoError(t, env.c.CancelCooldown(ctx, "s"))
	require.NoError(t, env.c.CancelCooldown(ctx, "s"), "cancel is idempotent")

	env.clock.Advance(10 * time.Minute)
	require.NoError(t, env.c.CompleteCooldown(ctx, "s", env.clock.Now()))

	p, _ := env.c.Profile("s")
	assert.Equal(t, 0, p.DailyUnlocksUsed)
	assert.Nil(t, p.TemporaryUnlockEndAt)
	assert.Equal(t, "s", env.c.State().ActiveProfileID)
	assert.Len(t, env.listener.all(), 1)

	// A new request gets its own full cooldown.
	res, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now().Add(policy.DefaultCooldown), res.CooldownEndAt)
}

func TestCompleteCooldown_EarlyCallIsNoOp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("s", domain.StrictnessStrict))

	_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)

	require.NoError(t, env.c.CompleteCooldown(ctx, "s", testfixtures.At(10, 5)))
	p, _ := env.c.Profile("s")
	assert.NotNil(t, p.CooldownEndAt)
	assert.Equal(t, 0, p.DailyUnlocksUsed)

	// Completing twice only counts once.
	require.NoError(t, env.c.CompleteCooldown(ctx, "s", testfixtures.At(10, 10)))
	require.NoError(t, env.c.CompleteCooldown(ctx, "s", testfixtures.At(10, 10)))
	p, _ = env.c.Profile("s")
	assert.Equal(t, 1, p.DailyUnlocksUsed)
}

func TestSetEnabled_StrictnessRules(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		level   domain.StrictnessLevel
		now     time.Time
		wantErr bool
	}{
		{"standard while enforced", domain.StrictnessStandard, testfixtures.At(10, 0), false},
		{"strict while enforced", domain.StrictnessStrict, testfixtures.At(10, 0), true},
		{"locked while enforced", domain.StrictnessLocked, testfixtures.At(10, 0), true},
		{"strict while idle", domain.StrictnessStrict, testfixtures.At(18, 0), false},
		{"locked while idle", domain.StrictnessLocked, testfixtures.At(18, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.now, workday("p", tt.level))

			free, err := env.c.CanFreelyDisable("p")
			require.NoError(t, err)
			assert.Equal(t, !tt.wantErr, free)

			err = env.c.SetEnabled(ctx, "p", false)
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrNotEligible))
				p, _ := env.c.Profile("p")
				assert.True(t, p.IsEnabled)
			} else {
				require.NoError(t, err)
				p, _ := env.c.Profile("p")
				assert.False(t, p.IsEnabled)
			}
		})
	}
}

func TestStrictUnlock_DisableDuringUnlockRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("s", domain.StrictnessStrict))

	_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)

	// Refused while cooling down.
	assert.ErrorIs(t, env.c.SetEnabled(ctx, "s", false), domain.ErrNotEligible)

	env.clock.Advance(10 * time.Minute)
	require.Empty(t, env.c.State().ActiveProfileID, "unlock window suspends enforcement")

	// Refused inside the unlock window, although nothing is enforced.
	assert.ErrorIs(t, env.c.SetEnabled(ctx, "s", false), domain.ErrNotEligible)
	assert.ErrorIs(t, env.c.ToggleProfile(ctx, "s"), domain.ErrNotEligible)
	free, err := env.c.CanFreelyDisable("s")
	require.NoError(t, err)
	assert.False(t, free)

	// Enforcement resumes when the window ends.
	env.clock.Advance(15 * time.Minute)
	assert.Equal(t, "s", env.c.State().ActiveProfileID)
	assert.Equal(t, testfixtures.At(10, 25), env.clock.Now())
}

func TestStrictUnlock_WeakeningEditDuringUnlockRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("s", domain.StrictnessStrict))

	_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	env.clock.Advance(10 * time.Minute)
	base, _ := env.c.Profile("s")
	require.True(t, base.IsTemporarilyUnlocked(env.clock.Now()))

	edits := map[string]func(p *domain.Profile){
		"to standard":     func(p *domain.Profile) { p.Strictness = domain.StrictnessStandard },
		"disabled":        func(p *domain.Profile) { p.IsEnabled = false },
		"window moved":    func(p *domain.Profile) { p.Schedule.StartMinute, p.Schedule.EndMinute = 18*60, 19*60 },
		"targets emptied": func(p *domain.Profile) { p.BlockedTargets = domain.BlockedTargets{} },
	}
	for name, edit := range edits {
		t.Run(name, func(t *testing.T) {
			p := base.Clone()
			edit(&p)
			assert.ErrorIs(t, env.c.UpdateProfile(ctx, p), domain.ErrNotEligible)
		})
	}

	stored, _ := env.c.Profile("s")
	assert.Equal(t, domain.StrictnessStrict, stored.Strictness)
	assert.Equal(t, base.BlockedTargets, stored.BlockedTargets)

	stronger := base.Clone()
	stronger.Strictness = domain.StrictnessLocked
	require.NoError(t, env.c.UpdateProfile(ctx, stronger))

	env.clock.Advance(15 * time.Minute)
	assert.Equal(t, "s", env.c.State().ActiveProfileID)
}

func TestStrictUnlock_DisableAllowedOutsideWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("s", domain.StrictnessStrict))

	_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	env.clock.Set(testfixtures.At(18, 0))

	require.NoError(t, env.c.SetEnabled(ctx, "s", false))
}

func TestToggleProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(18, 0), workday("p", domain.StrictnessLocked))

	require.NoError(t, env.c.ToggleProfile(ctx, "p"))
	p, _ := env.c.Profile("p")
	assert.False(t, p.IsEnabled)
	assert.Empty(t, env.intervals.Activities())

	require.NoError(t, env.c.ToggleProfile(ctx, "p"))
	p, _ = env.c.Profile("p")
	assert.True(t, p.IsEnabled)
	assert.Equal(t, []string{"p"}, env.intervals.Activities())
}

func TestUpdateProfile_CannotWeakenEnforcedLocked(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("p", domain.StrictnessLocked))

	base, _ := env.c.Profile("p")

	weaker := base.Clone()
	weaker.Strictness = domain.StrictnessStandard
	assert.True(t, errors.Is(env.c.UpdateProfile(ctx, weaker), domain.ErrNotEligible))

	moved := base.Clone()
	moved.Schedule.StartMinute, moved.Schedule.EndMinute = 18*60, 19*60
	assert.True(t, errors.Is(env.c.UpdateProfile(ctx, moved), domain.ErrNotEligible))

	disabled := base.Clone()
	disabled.IsEnabled = false
	assert.True(t, errors.Is(env.c.UpdateProfile(ctx, disabled), domain.ErrNotEligible))

	renamed := base.Clone()
	renamed.Name = "Deep Work"
	renamed.Schedule.EndMinute = 18 * 60
	require.NoError(t, env.c.UpdateProfile(ctx, renamed))
}

func TestDeleteProfile_LockedRequiresWaitingPeriod(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("p", domain.StrictnessLocked))

	row := env.c.Status(env.clock.Now()).Profiles[0]
	assert.Equal(t, 5*time.Minute, row.DeleteWait)

	err := env.c.DeleteProfile(ctx, "p")
	assert.True(t, errors.Is(err, domain.ErrDeleteCooldown))

	readyAt, err := env.c.RequestDelete("p")
	require.NoError(t, err)
	assert.Equal(t, testfixtures.At(10, 5), readyAt)

	env.clock.Advance(4 * time.Minute)
	again, err := env.c.RequestDelete("p")
	require.NoError(t, err)
	assert.Equal(t, readyAt, again, "repeat requests keep the original start")

	err = env.c.DeleteProfile(ctx, "p")
	assert.True(t, errors.Is(err, domain.ErrDeleteCooldown))

	env.clock.Advance(time.Minute)
	require.NoError(t, env.c.DeleteProfile(ctx, "p"))
	assert.Empty(t, env.c.Profiles())
	assert.Equal(t, domain.ChangeDeactivated, env.listener.last().Kind)
}

func TestDeleteProfile_CancelledRequestRestartsCountdown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("p", domain.StrictnessLocked))

	_, err := env.c.RequestDelete("p")
	require.NoError(t, err)
	env.clock.Advance(5 * time.Minute)
	env.c.CancelDeleteRequest("p")

	assert.True(t, errors.Is(env.c.DeleteProfile(ctx, "p"), domain.ErrDeleteCooldown))
}

func TestDeleteProfile_NonDestructive(t *testing.T) {
	ctx := context.Background()

	t.Run("locked outside window", func(t *testing.T) {
		env := newTestEnv(t, testfixtures.At(20, 0), workday("p", domain.StrictnessLocked))
		readyAt, err := env.c.RequestDelete("p")
		require.NoError(t, err)
		assert.Equal(t, env.clock.Now(), readyAt)
		require.NoError(t, env.c.DeleteProfile(ctx, "p"))
	})

	t.Run("strict while enforced", func(t *testing.T) {
		env := newTestEnv(t, testfixtures.At(10, 0), workday("p", domain.StrictnessStrict))
		assert.Zero(t, env.c.Status(env.clock.Now()).Profiles[0].DeleteWait)
		require.NoError(t, env.c.DeleteProfile(ctx, "p"))
	})
}

func TestDeleteProfile_CancelsPendingCooldown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, testfixtures.At(10, 0), workday("s", domain.StrictnessStrict))

	_, err := env.c.RequestUnlock(ctx, "s", env.clock.Now())
	require.NoError(t, err)
	require.NoError(t, env.c.DeleteProfile(ctx, "s"))

	assert.Equal(t, 0, env.clock.Pending())
}
