package infra

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// UnitPrefix starts the name of every unit the timer scheduler writes.
const UnitPrefix = "focuscage-"

// Timer unit templates. One oneshot service and one timer per boundary.
const timerServiceTemplate = `[Unit]
Description=focuscage interval {{.Event}} of {{.Activity}}

[Service]
Type=oneshot
ExecStart={{.ExecStart}}
`

const timerUnitTemplate = `[Unit]
Description=focuscage interval {{.Event}} of {{.Activity}}

[Timer]
OnCalendar={{.Calendar}}
AccuracySec=1s
Unit={{.Service}}

[Install]
WantedBy=timers.target
`

var (
	serviceTmpl = template.Must(template.New("service").Parse(timerServiceTemplate))
	timerTmpl   = template.Must(template.New("timer").Parse(timerUnitTemplate))

	unitNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// UnitManager is the part of the systemd manager the timer scheduler drives.
type UnitManager interface {
	Reload() error
	EnableUnitFiles(paths []string) error
	DisableUnitFiles(names []string) error
	RestartUnit(name string) error
	StopUnit(name string) error
}

// MonitorCommand returns the argv a timer runs for one interval boundary.
type MonitorCommand func(event IntervalEvent, activity string) []string

// SystemdIntervalScheduler implements domain.IntervalScheduler with systemd
// timer units, so boundaries fire even while the daemon is not running.
// Units live in dir and are named focuscage-<activity>-<event>.
type SystemdIntervalScheduler struct {
	mu         sync.Mutex
	dir        string
	manager    UnitManager
	command    MonitorCommand
	activities map[string]domain.IntervalActivity
	logger     *zap.Logger
}

// NewSystemdIntervalScheduler creates a scheduler writing units into dir.
func NewSystemdIntervalScheduler(dir string, manager UnitManager, command MonitorCommand, logger *zap.Logger) *SystemdIntervalScheduler {
	return &SystemdIntervalScheduler{
		dir:        dir,
		manager:    manager,
		command:    command,
		activities: make(map[string]domain.IntervalActivity),
		logger:     logger,
	}
}

type unitData struct {
	Event     IntervalEvent
	Activity  string
	ExecStart string
	Calendar  string
	Service   string
}

// Register writes, enables and starts the start and end timers of a.
// Registering an existing name replaces its units.
func (s *SystemdIntervalScheduler) Register(a domain.IntervalActivity) error {
	if !unitNamePattern.MatchString(a.Name) {
		return fmt.Errorf("activity %q: name is not usable in a unit name", a.Name)
	}
	if _, _, err := CronSpecs(a); err != nil {
		return fmt.Errorf("activity %s: %w", a.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}

	timers := make([]string, 0, 2)
	for _, event := range []IntervalEvent{IntervalStart, IntervalEnd} {
		minute := a.StartMinute
		if event == IntervalEnd {
			minute = a.EndMinute
		}
		base := UnitBaseName(a.Name, event)
		data := unitData{
			Event:     event,
			Activity:  a.Name,
			ExecStart: ExecLine(s.command(event, a.Name)),
			Calendar:  OnCalendar(a.Days, minute),
			Service:   base + ".service",
		}
		if err := s.writeUnit(serviceTmpl, base+".service", data); err != nil {
			return err
		}
		if err := s.writeUnit(timerTmpl, base+".timer", data); err != nil {
			return err
		}
		timers = append(timers, base+".timer")
	}

	if err := s.manager.Reload(); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	paths := make([]string, len(timers))
	for i, t := range timers {
		paths[i] = filepath.Join(s.dir, t)
	}
	if err := s.manager.EnableUnitFiles(paths); err != nil {
		return fmt.Errorf("failed to enable timers of %s: %w", a.Name, err)
	}
	for _, t := range timers {
		if err := s.manager.RestartUnit(t); err != nil {
			return fmt.Errorf("failed to start %s: %w", t, err)
		}
	}

	s.activities[a.Name] = a
	s.logger.Debug("interval timers registered",
		zap.String("activity", a.Name),
		zap.Strings("timers", timers))
	return nil
}

// StopAll stops, disables and removes every timer in the unit directory
// carrying UnitPrefix, including units left over by an earlier run.
func (s *SystemdIntervalScheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activities = make(map[string]domain.IntervalActivity)

	timers, err := filepath.Glob(filepath.Join(s.dir, UnitPrefix+"*.timer"))
	if err != nil || len(timers) == 0 {
		return
	}

	names := make([]string, 0, len(timers))
	for _, path := range timers {
		name := filepath.Base(path)
		if err := s.manager.StopUnit(name); err != nil {
			s.logger.Warn("failed to stop timer", zap.String("timer", name), zap.Error(err))
		}
		names = append(names, name)
	}
	if err := s.manager.DisableUnitFiles(names); err != nil {
		s.logger.Warn("failed to disable timers", zap.Error(err))
	}
	for _, path := range timers {
		service := strings.TrimSuffix(path, ".timer") + ".service"
		for _, p := range []string{path, service} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove unit file", zap.String("path", p), zap.Error(err))
			}
		}
	}
	if err := s.manager.Reload(); err != nil {
		s.logger.Warn("failed to reload systemd", zap.Error(err))
	}
}

// Activities returns the registered activity names, sorted.
func (s *SystemdIntervalScheduler) Activities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.activities))
	for name := range s.activities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *SystemdIntervalScheduler) writeUnit(tmpl *template.Template, name string, data unitData) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// UnitBaseName is the unit name without suffix for one boundary of activity.
func UnitBaseName(activity string, event IntervalEvent) string {
	return UnitPrefix + activity + "-" + string(event)
}

// OnCalendar renders a systemd calendar expression firing at minute of day
// on days, e.g. "Mon,Fri *-*-* 09:30:00".
func OnCalendar(days []domain.Weekday, minute int) string {
	sorted := append([]domain.Weekday(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	names := make([]string, 0, len(sorted))
	for _, d := range sorted {
		names = append(names, d.ShortName())
	}
	return fmt.Sprintf("%s *-*-* %02d:%02d:00", strings.Join(names, ","), minute/60, minute%60)
}

// ExecLine quotes argv for an ExecStart= line. Specifiers and variables are
// escaped so systemd passes every argument through verbatim.
func ExecLine(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		arg = strings.ReplaceAll(arg, `\`, `\\`)
		arg = strings.ReplaceAll(arg, `"`, `\"`)
		arg = strings.ReplaceAll(arg, "%", "%%")
		arg = strings.ReplaceAll(arg, "$", "$$")
		quoted[i] = `"` + arg + `"`
	}
	return strings.Join(quoted, " ")
}

// Ensure SystemdIntervalScheduler implements domain.IntervalScheduler.
var _ domain.IntervalScheduler = (*SystemdIntervalScheduler)(nil)
