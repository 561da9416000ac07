//go:build integration

package integration

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/infra"
	"github.com/eliteGoblin/focusd/focuscage/internal/monitor"
	"github.com/eliteGoblin/focusd/focuscage/internal/policy"
	"github.com/eliteGoblin/focusd/focuscage/internal/testfixtures"
	"github.com/eliteGoblin/focusd/focuscage/internal/usecase"
	"github.com/eliteGoblin/focusd/focuscage/test/fixtures"
)

type recordingEnforcer struct {
	applied []domain.BlockedTargets
	cleared int
}

func (r *recordingEnforcer) ApplyBlock(_ context.Context, targets domain.BlockedTargets) error {
	r.applied = append(r.applied, targets)
	return nil
}

func (r *recordingEnforcer) ClearBlock(context.Context) error {
	r.cleared++
	return nil
}

var _ = Describe("Engine with encrypted store and shared mirror", func() {
	var (
		ctx     context.Context
		dataDir string
		key     []byte
		clock   *testfixtures.Clock
		logger  *zap.Logger

		store    *infra.EncryptedStore
		mirror   *infra.FileMirror
		enforcer *recordingEnforcer
		engine   *usecase.Coordinator
		workday  domain.Profile
	)

	openEngine := func() {
		var err error
		store, err = infra.NewEncryptedStore(dataDir, key, logger)
		Expect(err).NotTo(HaveOccurred())

		mirror = infra.NewFileMirror(dataDir)
		enforcer = &recordingEnforcer{}
		engine = usecase.NewCoordinator(store, mirror, nil, policy.NewRegistry(), clock, logger)
		engine.Subscribe(usecase.NewEnforcementBridge(enforcer, logger))
		Expect(engine.Load(ctx)).To(Succeed())
	}

	closeEngine := func() {
		engine.Close()
		Expect(store.Close()).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		logger = zap.NewNop()
		clock = testfixtures.NewClock(testfixtures.At(14, 0))

		dataDir, err = os.MkdirTemp("", "focuscage-integration-*")
		Expect(err).NotTo(HaveOccurred())

		key, err = infra.EnsureKey(infra.NewFileKeyProvider(dataDir), logger)
		Expect(err).NotTo(HaveOccurred())

		workday = domain.Profile{
			Name:           "Work",
			Schedule:       domain.DefaultSchedule(),
			IsEnabled:      true,
			Strictness:     domain.StrictnessStrict,
			BlockedTargets: domain.BlockedTargets{Apps: []string{"steam"}, Websites: []string{"reddit.com"}},
		}

		openEngine()
	})

	AfterEach(func() {
		closeEngine()
		os.RemoveAll(dataDir)
	})

	Describe("adding a profile inside its window", func() {
		It("enforces it and publishes the active summary", func() {
			added, err := engine.AddProfile(ctx, workday)
			Expect(err).NotTo(HaveOccurred())

			Expect(enforcer.applied).To(HaveLen(1))
			Expect(enforcer.applied[0].Apps).To(Equal([]string{"steam"}))

			snapshot, err := mirror.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot).NotTo(BeNil())
			Expect(snapshot.Active).NotTo(BeNil())
			Expect(snapshot.Active.ProfileID).To(Equal(added.ID))
			Expect(snapshot.Active.EndAt).To(BeTemporally("==", testfixtures.At(17, 0)))
		})
	})

	Describe("restarting during a cooldown", func() {
		It("completes the cooldown that elapsed while stopped", func() {
			added, err := engine.AddProfile(ctx, workday)
			Expect(err).NotTo(HaveOccurred())

			result, err := engine.RequestUnlock(ctx, added.ID, clock.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.CooldownEndAt).To(BeTemporally("==", testfixtures.At(14, 10)))

			closeEngine()
			clock.Set(testfixtures.At(14, 12))
			openEngine()

			p, err := engine.Profile(added.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.DailyUnlocksUsed).To(Equal(1))
			Expect(p.CooldownEndAt).To(BeNil())
			Expect(p.TemporaryUnlockEndAt).NotTo(BeNil())
			Expect(*p.TemporaryUnlockEndAt).To(BeTemporally("==", testfixtures.At(14, 25)))
			Expect(engine.ActiveProfile()).To(BeNil())
		})
	})

	Describe("nuclear override across a restart", func() {
		It("keeps the override until it expires", func() {
			clock.Set(testfixtures.At(20, 0))
			added, err := engine.AddProfile(ctx, workday)
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.ActiveProfile()).To(BeNil())

			_, err = engine.ActivateNuclear(ctx, added.ID, clock.Now())
			Expect(err).NotTo(HaveOccurred())

			closeEngine()
			openEngine()
			Expect(engine.ActiveProfile()).NotTo(BeNil())

			clock.Advance(time.Hour)
			Expect(engine.ActiveProfile()).To(BeNil())
			Expect(engine.State().Nuclear).To(BeNil())
		})
	})

	Describe("interval monitor reading the mirror", func() {
		It("reaches the same decision as the engine", func() {
			added, err := engine.AddProfile(ctx, workday)
			Expect(err).NotTo(HaveOccurred())

			monitorEnforcer := &recordingEnforcer{}
			m := monitor.NewIntervalMonitor(infra.NewFileMirror(dataDir), monitorEnforcer, clock, logger)

			Expect(m.IntervalDidStart(ctx, added.ID)).To(Succeed())
			Expect(monitorEnforcer.applied).To(HaveLen(1))
			Expect(monitorEnforcer.applied[0]).To(Equal(enforcer.applied[0]))

			clock.Set(testfixtures.At(17, 0))
			Expect(m.IntervalDidEnd(ctx, added.ID)).To(Succeed())
			Expect(monitorEnforcer.cleared).To(Equal(1))
		})
	})

	Describe("statistics", func() {
		It("records a completed session in the encrypted store", func() {
			stats := usecase.NewStatisticsRecorder(store, logger)
			engine.Subscribe(stats)

			_, err := engine.AddProfile(ctx, workday)
			Expect(err).NotTo(HaveOccurred())

			clock.Set(testfixtures.At(17, 0))
			engine.Reconcile(ctx, clock.Now())

			sessions, err := store.ListSessions()
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].WasCompleted).To(BeTrue())
			Expect(sessions[0].Duration(clock.Now())).To(Equal(3 * time.Hour))
		})
	})
})

var _ = Describe("Block enforcer against real processes", func() {
	var (
		tmpDir string
		app    *fixtures.FakeApp
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "focuscage-enforce-*")
		Expect(err).NotTo(HaveOccurred())

		app, err = fixtures.StartFakeApp(tmpDir, "fcfakegame")
		if err != nil {
			Skip(err.Error())
		}
	})

	AfterEach(func() {
		if app != nil {
			app.Stop()
		}
		os.RemoveAll(tmpDir)
	})

	It("kills matching processes and writes the hosts section", func() {
		hostsPath, err := fixtures.HostsFile(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		hosts := infra.NewHostsFileBlocker(hostsPath)
		enforcer := usecase.NewBlockEnforcer(infra.NewProcessManager(), hosts, zap.NewNop())

		err = enforcer.ApplyBlock(context.Background(), domain.BlockedTargets{
			Apps:     []string{"fcfakegame"},
			Websites: []string{"reddit.com"},
		})
		Expect(err).NotTo(HaveOccurred())
		Eventually(app.Exited, 2*time.Second, 20*time.Millisecond).Should(BeTrue())

		blocked, err := hosts.Blocked()
		Expect(err).NotTo(HaveOccurred())
		Expect(blocked).To(Equal([]string{"reddit.com"}))

		Expect(enforcer.ClearBlock(context.Background())).To(Succeed())
		blocked, err = hosts.Blocked()
		Expect(err).NotTo(HaveOccurred())
		Expect(blocked).To(BeEmpty())
	})
})
