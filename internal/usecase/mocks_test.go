package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/policy"
	"github.com/eliteGoblin/focusd/focuscage/internal/testfixtures"
)

// mockRepository implements domain.ProfileRepository in memory
type mockRepository struct {
	mu        sync.Mutex
	profiles  []domain.Profile
	state     domain.CoordinatorState
	loadErr   error
	saveErr   error
	saveCount int
}

func (m *mockRepository) LoadProfiles() ([]domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return domain.CloneProfiles(m.profiles), nil
}

func (m *mockRepository) SaveProfiles(profiles []domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.profiles = domain.CloneProfiles(profiles)
	m.saveCount++
	return nil
}

func (m *mockRepository) LoadState() (domain.CoordinatorState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return domain.CoordinatorState{}, m.loadErr
	}
	return copyState(m.state), nil
}

func (m *mockRepository) SaveState(state domain.CoordinatorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.state = copyState(state)
	return nil
}

func (m *mockRepository) stored(id string) domain.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ID == id {
			return p.Clone()
		}
	}
	return domain.Profile{}
}

// mockMirror implements domain.SharedMirror in memory
type mockMirror struct {
	mu        sync.Mutex
	snapshots []domain.MirrorSnapshot
	heartbeat time.Time
}

func (m *mockMirror) Load() (*domain.MirrorSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	s := m.snapshots[len(m.snapshots)-1]
	return &s, nil
}

func (m *mockMirror) Publish(snapshot domain.MirrorSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *mockMirror) Heartbeat(at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeat = at
	return nil
}

func (m *mockMirror) Path() string { return "mem://mirror" }

func (m *mockMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

// mockIntervals implements domain.IntervalScheduler
type mockIntervals struct {
	activities  []domain.IntervalActivity
	stopCalls   int
	registerErr error
}

func (m *mockIntervals) StopAll() {
	m.stopCalls++
	m.activities = nil
}

func (m *mockIntervals) Register(a domain.IntervalActivity) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.activities = append(m.activities, a)
	return nil
}

func (m *mockIntervals) Activities() []string {
	names := make([]string, len(m.activities))
	for i, a := range m.activities {
		names[i] = a.Name
	}
	return names
}

// recordingListener captures activation events in order
type recordingListener struct {
	mu      sync.Mutex
	changes []domain.ActivationChange
}

func (l *recordingListener) OnActivationChange(_ context.Context, change domain.ActivationChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, change)
}

func (l *recordingListener) all() []domain.ActivationChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ActivationChange(nil), l.changes...)
}

func (l *recordingListener) last() domain.ActivationChange {
	all := l.all()
	if len(all) == 0 {
		return domain.ActivationChange{}
	}
	return all[len(all)-1]
}

// mockProcessManager implements domain.ProcessManager for testing
type mockProcessManager struct {
	findResult map[string][]int
	findErr    error
	killErr    error
	killedPIDs []int
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.findResult != nil {
		return m.findResult[pattern], nil
	}
	return nil, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	if m.killErr != nil {
		return m.killErr
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return false
}

// mockSiteBlocker implements domain.SiteBlocker for testing
type mockSiteBlocker struct {
	blocked      []string
	blockCalls   int
	unblockCalls int
	blockErr     error
}

func (m *mockSiteBlocker) Block(domains []string) error {
	m.blockCalls++
	if m.blockErr != nil {
		return m.blockErr
	}
	m.blocked = append([]string(nil), domains...)
	return nil
}

func (m *mockSiteBlocker) Unblock() error {
	m.unblockCalls++
	m.blocked = nil
	return nil
}

func (m *mockSiteBlocker) Blocked() ([]string, error) {
	return m.blocked, nil
}

// mockEnforcer implements domain.Enforcer and records calls
type mockEnforcer struct {
	calls    []string
	applied  *domain.BlockedTargets
	applyErr error
}

func (m *mockEnforcer) ApplyBlock(_ context.Context, targets domain.BlockedTargets) error {
	m.calls = append(m.calls, "apply")
	if m.applyErr != nil {
		return m.applyErr
	}
	t := targets.Clone()
	m.applied = &t
	return nil
}

func (m *mockEnforcer) ClearBlock(_ context.Context) error {
	m.calls = append(m.calls, "clear")
	m.applied = nil
	return nil
}

// mockSessionStore implements domain.SessionStore in memory
type mockSessionStore struct {
	sessions  []domain.FocusSession
	appendErr error
}

func (m *mockSessionStore) AppendSession(s domain.FocusSession) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *mockSessionStore) ListSessions() ([]domain.FocusSession, error) {
	return m.sessions, nil
}

var errBoom = errors.New("boom")

// testEnv bundles a coordinator with its fakes.
type testEnv struct {
	c         *Coordinator
	repo      *mockRepository
	mirror    *mockMirror
	intervals *mockIntervals
	listener  *recordingListener
	clock     *testfixtures.Clock
}

// newTestEnv builds a loaded coordinator at start holding profiles.
func newTestEnv(t *testing.T, start time.Time, profiles ...domain.Profile) *testEnv {
	t.Helper()
	return newTestEnvFrom(t, &mockRepository{profiles: profiles}, testfixtures.NewClock(start))
}

// newTestEnvFrom loads a fresh coordinator over an existing repository.
func newTestEnvFrom(t *testing.T, repo *mockRepository, clock *testfixtures.Clock) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:      repo,
		mirror:    &mockMirror{},
		intervals: &mockIntervals{},
		listener:  &recordingListener{},
		clock:     clock,
	}
	env.c = NewCoordinator(env.repo, env.mirror, env.intervals, policy.NewRegistry(), env.clock, zap.NewNop())
	env.c.Subscribe(env.listener)
	if err := env.c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(env.c.Close)
	return env
}

// workday returns an enabled 09:00-17:00 every-day profile.
func workday(id string, level domain.StrictnessLevel) domain.Profile {
	return domain.Profile{
		ID:         id,
		Name:       "Profile " + id,
		Schedule:   domain.Schedule{StartMinute: 9 * 60, EndMinute: 17 * 60, ActiveDays: domain.AllWeekdays()},
		IsEnabled:  true,
		Strictness: level,
		BlockedTargets: domain.BlockedTargets{
			Apps:     []string{"steam"},
			Websites: []string{"reddit.com"},
		},
		CreatedAt: testfixtures.ReferenceTime().AddDate(0, 0, -1),
	}
}
