package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/policy"
	"github.com/eliteGoblin/focusd/focuscage/internal/testfixtures"
	"github.com/eliteGoblin/focusd/focuscage/internal/usecase"
)

type memRepository struct {
	mu       sync.Mutex
	profiles []domain.Profile
	state    domain.CoordinatorState
}

func (m *memRepository) LoadProfiles() ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneProfiles(m.profiles), nil
}

func (m *memRepository) SaveProfiles(profiles []domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = domain.CloneProfiles(profiles)
	return nil
}

func (m *memRepository) LoadState() (domain.CoordinatorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memRepository) SaveState(state domain.CoordinatorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

type memSessions struct {
	sessions []domain.FocusSession
}

func (m *memSessions) AppendSession(s domain.FocusSession) error {
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *memSessions) ListSessions() ([]domain.FocusSession, error) {
	return m.sessions, nil
}

type fixedReporter struct{ pass *usecase.EnforcementResult }

func (r fixedReporter) LastPass() *usecase.EnforcementResult { return r.pass }

type countingResumer struct{ calls int }

func (r *countingResumer) Resume() { r.calls++ }

func newTestService(t *testing.T) (*EngineService, *testfixtures.Clock) {
	t.Helper()
	clock := testfixtures.NewClock(testfixtures.At(10, 0))
	logger := zap.NewNop()

	c := usecase.NewCoordinator(&memRepository{}, nil, nil, policy.NewRegistry(), clock, logger)
	stats := usecase.NewStatisticsRecorder(&memSessions{}, logger)
	c.Subscribe(stats)
	require.NoError(t, c.Load(context.Background()))
	t.Cleanup(c.Close)

	return NewEngineService(c, stats, nil, nil, clock, logger), clock
}

func profileDoc(t *testing.T, name string, level domain.StrictnessLevel) string {
	t.Helper()
	data, err := json.Marshal(domain.Profile{
		Name:           name,
		Schedule:       domain.DefaultSchedule(),
		IsEnabled:      true,
		Strictness:     level,
		BlockedTargets: domain.BlockedTargets{Apps: []string{"steam"}},
	})
	require.NoError(t, err)
	return string(data)
}

func addProfile(t *testing.T, svc *EngineService, name string, level domain.StrictnessLevel) domain.Profile {
	t.Helper()
	doc, dbusErr := svc.AddProfile(profileDoc(t, name, level))
	require.Nil(t, dbusErr)

	var p domain.Profile
	require.NoError(t, json.Unmarshal([]byte(doc), &p))
	return p
}

func TestEngineService_AddAndList(t *testing.T) {
	svc, _ := newTestService(t)

	added := addProfile(t, svc, "Work", domain.StrictnessStrict)
	assert.NotEmpty(t, added.ID)

	doc, dbusErr := svc.ListProfiles()
	require.Nil(t, dbusErr)
	var profiles []domain.Profile
	require.NoError(t, json.Unmarshal([]byte(doc), &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, added.ID, profiles[0].ID)
}

func TestEngineService_AddRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, dbusErr := svc.AddProfile("{not json")
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrNameInvalidArgs, dbusErr.Name)

	_, dbusErr = svc.AddProfile(profileDoc(t, " ", domain.StrictnessStrict))
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrNameInvalidProfile, dbusErr.Name)
}

func TestEngineService_StatusAndTick(t *testing.T) {
	svc, _ := newTestService(t)
	p := addProfile(t, svc, "Work", domain.StrictnessStrict)

	active, dbusErr := svc.Tick()
	require.Nil(t, dbusErr)
	assert.Equal(t, p.ID, active)

	doc, dbusErr := svc.Status()
	require.Nil(t, dbusErr)
	var report usecase.StatusReport
	require.NoError(t, json.Unmarshal([]byte(doc), &report))
	require.NotNil(t, report.Active)
	assert.Equal(t, "Work", report.Active.Name)
	assert.Equal(t, "7h 0m remaining", report.TimeRemaining)
	assert.Nil(t, report.LastEnforcement)
}

func TestEngineService_StatusReportsLastEnforcement(t *testing.T) {
	svc, clock := newTestService(t)
	svc.enforcement = fixedReporter{pass: &usecase.EnforcementResult{
		KilledPIDs: []int{42},
		Errors:     []error{errors.New("kill 43: operation not permitted")},
		ExecutedAt: clock.Now(),
	}}

	doc, dbusErr := svc.Status()
	require.Nil(t, dbusErr)
	var report usecase.StatusReport
	require.NoError(t, json.Unmarshal([]byte(doc), &report))
	require.NotNil(t, report.LastEnforcement)
	assert.Equal(t, []int{42}, report.LastEnforcement.KilledPIDs)
	assert.Equal(t, []string{"kill 43: operation not permitted"}, report.LastEnforcement.Errors)
	assert.True(t, clock.Now().Equal(report.LastEnforcement.At))
}

func TestEngineService_UnlockFlow(t *testing.T) {
	svc, _ := newTestService(t)
	strict := addProfile(t, svc, "Work", domain.StrictnessStrict)
	locked := addProfile(t, svc, "Exam", domain.StrictnessLocked)

	doc, dbusErr := svc.RequestUnlock(strict.ID)
	require.Nil(t, dbusErr)
	var result usecase.UnlockResult
	require.NoError(t, json.Unmarshal([]byte(doc), &result))
	assert.True(t, testfixtures.At(10, 10).Equal(result.CooldownEndAt))

	require.Nil(t, svc.CancelUnlock(strict.ID))

	_, dbusErr = svc.RequestUnlock(locked.ID)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrNameNotEligible, dbusErr.Name)
	assert.ErrorIs(t, fromDBusError(*dbusErr), domain.ErrNotEligible)
}

func TestEngineService_DeleteLocked(t *testing.T) {
	svc, clock := newTestService(t)
	locked := addProfile(t, svc, "Exam", domain.StrictnessLocked)

	dbusErr := svc.DeleteProfile(locked.ID)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrNameDeleteCooldown, dbusErr.Name)

	readyAt, dbusErr := svc.RequestDelete(locked.ID)
	require.Nil(t, dbusErr)
	assert.Equal(t, testfixtures.At(10, 5).Unix(), readyAt)

	clock.Advance(5 * time.Minute)
	require.Nil(t, svc.DeleteProfile(locked.ID))
}

func TestEngineService_Nuclear(t *testing.T) {
	svc, _ := newTestService(t)
	p := addProfile(t, svc, "Work", domain.StrictnessStandard)

	_, dbusErr := svc.ActivateNuclear("ghost")
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrNameNotFound, dbusErr.Name)

	endAt, dbusErr := svc.ActivateNuclear(p.ID)
	require.Nil(t, dbusErr)
	assert.Greater(t, endAt, testfixtures.At(10, 0).Unix())

	require.Nil(t, svc.DeactivateNuclear())
}

func TestEngineService_ToggleAndEnable(t *testing.T) {
	svc, _ := newTestService(t)
	p := addProfile(t, svc, "Work", domain.StrictnessStandard)

	require.Nil(t, svc.ToggleProfile(p.ID))
	require.Nil(t, svc.SetEnabled(p.ID, true))

	dbusErr := svc.SetEnabled("ghost", false)
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrNameNotFound, dbusErr.Name)
}

func TestEngineService_Stats(t *testing.T) {
	svc, _ := newTestService(t)
	addProfile(t, svc, "Work", domain.StrictnessStrict)

	doc, dbusErr := svc.Stats()
	require.Nil(t, dbusErr)
	var summary usecase.StatsSummary
	require.NoError(t, json.Unmarshal([]byte(doc), &summary))
	assert.Equal(t, "Work", summary.CurrentProfileName)

	svc.stats = nil
	_, dbusErr = svc.Stats()
	require.NotNil(t, dbusErr)
	assert.Equal(t, ErrNameFailed, dbusErr.Name)
}

func TestEngineService_ResumeUsesResumer(t *testing.T) {
	svc, _ := newTestService(t)
	r := &countingResumer{}
	svc.resumer = r

	require.Nil(t, svc.Resume())
	assert.Equal(t, 1, r.calls)
}

func TestRemoteError_Unwrap(t *testing.T) {
	err := &RemoteError{Name: ErrNameNotFound, Message: "profile not found: x", sentinel: domain.ErrNotFound}
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
