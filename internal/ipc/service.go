package ipc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/usecase"
)

// Resumer is notified when a client reports a wake from sleep.
type Resumer interface {
	Resume()
}

// EnforcementReporter exposes the most recent enforcement pass.
type EnforcementReporter interface {
	LastPass() *usecase.EnforcementResult
}

// EngineService is exported on the bus. Structured results are passed as
// JSON strings; timestamps as Unix seconds.
type EngineService struct {
	coordinator *usecase.Coordinator
	stats       *usecase.StatisticsRecorder
	resumer     Resumer
	enforcement EnforcementReporter
	clock       domain.Clock
	logger      *zap.Logger
}

// NewEngineService creates the exported object. stats, resumer and
// enforcement may be nil.
func NewEngineService(
	coordinator *usecase.Coordinator,
	stats *usecase.StatisticsRecorder,
	resumer Resumer,
	enforcement EnforcementReporter,
	clock domain.Clock,
	logger *zap.Logger,
) *EngineService {
	return &EngineService{
		coordinator: coordinator,
		stats:       stats,
		resumer:     resumer,
		enforcement: enforcement,
		clock:       clock,
		logger:      logger,
	}
}

// Status returns a JSON encoded usecase.StatusReport.
func (s *EngineService) Status() (string, *dbus.Error) {
	report := s.coordinator.Status(s.clock.Now())
	if s.enforcement != nil {
		report.LastEnforcement = usecase.NewEnforcementStatus(s.enforcement.LastPass())
	}
	return s.encode(report)
}

// ListProfiles returns the JSON encoded profile list in tie-break order.
func (s *EngineService) ListProfiles() (string, *dbus.Error) {
	return s.encode(s.coordinator.Profiles())
}

// AddProfile decodes a profile, adds it and returns the stored profile.
func (s *EngineService) AddProfile(doc string) (string, *dbus.Error) {
	var p domain.Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return "", s.fail("AddProfile", invalidArgs("profile: %v", err))
	}
	added, err := s.coordinator.AddProfile(context.Background(), p)
	if err != nil {
		return "", s.fail("AddProfile", err)
	}
	return s.encode(added)
}

// UpdateProfile replaces the editable fields of an existing profile.
func (s *EngineService) UpdateProfile(doc string) *dbus.Error {
	var p domain.Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return s.fail("UpdateProfile", invalidArgs("profile: %v", err))
	}
	return s.fail("UpdateProfile", s.coordinator.UpdateProfile(context.Background(), p))
}

// SetEnabled enables or disables a profile. Disabling a protected profile
// fails with ErrNameNotEligible.
func (s *EngineService) SetEnabled(id string, enabled bool) *dbus.Error {
	return s.fail("SetEnabled", s.coordinator.SetEnabled(context.Background(), id, enabled))
}

// ToggleProfile flips the enabled flag under the same rules as SetEnabled.
func (s *EngineService) ToggleProfile(id string) *dbus.Error {
	return s.fail("ToggleProfile", s.coordinator.ToggleProfile(context.Background(), id))
}

// RequestDelete returns when the profile may be deleted.
func (s *EngineService) RequestDelete(id string) (int64, *dbus.Error) {
	readyAt, err := s.coordinator.RequestDelete(id)
	if err != nil {
		return 0, s.fail("RequestDelete", err)
	}
	return readyAt.Unix(), nil
}

// CancelDeleteRequest abandons a pending delete countdown. Unknown IDs are
// ignored.
func (s *EngineService) CancelDeleteRequest(id string) *dbus.Error {
	s.coordinator.CancelDeleteRequest(id)
	return nil
}

// DeleteProfile removes a profile, failing with ErrNameDeleteCooldown until
// a requested waiting period has elapsed.
func (s *EngineService) DeleteProfile(id string) *dbus.Error {
	return s.fail("DeleteProfile", s.coordinator.DeleteProfile(context.Background(), id))
}

// RequestUnlock returns a JSON encoded usecase.UnlockResult.
func (s *EngineService) RequestUnlock(id string) (string, *dbus.Error) {
	result, err := s.coordinator.RequestUnlock(context.Background(), id, s.clock.Now())
	if err != nil {
		return "", s.fail("RequestUnlock", err)
	}
	return s.encode(result)
}

// CancelUnlock abandons a pending cooldown without consuming an unlock.
func (s *EngineService) CancelUnlock(id string) *dbus.Error {
	return s.fail("CancelUnlock", s.coordinator.CancelCooldown(context.Background(), id))
}

// ActivateNuclear returns when the override ends.
func (s *EngineService) ActivateNuclear(id string) (int64, *dbus.Error) {
	n, err := s.coordinator.ActivateNuclear(context.Background(), id, s.clock.Now())
	if err != nil {
		return 0, s.fail("ActivateNuclear", err)
	}
	return n.EndAt.Unix(), nil
}

// DeactivateNuclear ends the nuclear override early, if one is in effect.
func (s *EngineService) DeactivateNuclear() *dbus.Error {
	s.coordinator.DeactivateNuclear(context.Background(), s.clock.Now())
	return nil
}

// Tick reconciles immediately and returns the active profile ID, or "".
func (s *EngineService) Tick() (string, *dbus.Error) {
	s.coordinator.Reconcile(context.Background(), s.clock.Now())
	return s.coordinator.State().ActiveProfileID, nil
}

// Resume re-announces the current decision after a wake from sleep.
func (s *EngineService) Resume() *dbus.Error {
	if s.resumer != nil {
		s.resumer.Resume()
		return nil
	}
	s.coordinator.Resync(context.Background(), s.clock.Now())
	return nil
}

// Stats returns a JSON encoded usecase.StatsSummary.
func (s *EngineService) Stats() (string, *dbus.Error) {
	if s.stats == nil {
		return "", s.fail("Stats", fmt.Errorf("statistics are not recorded"))
	}
	summary, err := s.stats.Summary(s.clock.Now())
	if err != nil {
		return "", s.fail("Stats", err)
	}
	return s.encode(summary)
}

func (s *EngineService) encode(v interface{}) (string, *dbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", toDBusError(err)
	}
	return string(data), nil
}

func (s *EngineService) fail(method string, err error) *dbus.Error {
	if err == nil {
		return nil
	}
	s.logger.Info("request rejected", zap.String("method", method), zap.Error(err))
	return toDBusError(err)
}

// Serve claims the service name on conn and exports svc until ctx is done.
func Serve(ctx context.Context, conn *dbus.Conn, svc *EngineService) error {
	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%s is already owned by another process", ServiceName)
	}

	if err := conn.Export(svc, dbus.ObjectPath(ObjectPath), InterfaceName); err != nil {
		return fmt.Errorf("failed to export interface: %w", err)
	}
	svc.logger.Info("engine exported on bus", zap.String("service", ServiceName))

	<-ctx.Done()
	_, _ = conn.ReleaseName(ServiceName)
	return nil
}

// Connect opens the session or system bus.
func Connect(system bool) (*dbus.Conn, error) {
	if system {
		conn, err := dbus.ConnectSystemBus()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to system bus: %w", err)
		}
		return conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return conn, nil
}
