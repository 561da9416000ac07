package infra

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	robfigcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// IntervalEvent names an interval boundary.
type IntervalEvent string

const (
	IntervalStart IntervalEvent = "start"
	IntervalEnd   IntervalEvent = "end"
)

// IntervalHandler is invoked at each interval boundary with the activity name.
type IntervalHandler func(event IntervalEvent, activity string)

// CronIntervalScheduler implements domain.IntervalScheduler with two cron
// entries per activity, one for the start minute and one for the end minute.
type CronIntervalScheduler struct {
	mu         sync.Mutex
	scheduler  *robfigcron.Cron
	handler    IntervalHandler
	entries    map[string][]robfigcron.EntryID
	activities map[string]domain.IntervalActivity
	logger     *zap.Logger
}

// NewCronIntervalScheduler creates a scheduler. Call Start to begin firing.
func NewCronIntervalScheduler(handler IntervalHandler, logger *zap.Logger, opts ...robfigcron.Option) *CronIntervalScheduler {
	return &CronIntervalScheduler{
		scheduler:  robfigcron.New(opts...),
		handler:    handler,
		entries:    make(map[string][]robfigcron.EntryID),
		activities: make(map[string]domain.IntervalActivity),
		logger:     logger,
	}
}

// Start begins the cron scheduler.
func (s *CronIntervalScheduler) Start() {
	s.scheduler.Start()
}

// Stop stops the cron scheduler and waits for running callbacks.
func (s *CronIntervalScheduler) Stop() {
	<-s.scheduler.Stop().Done()
}

// StopAll removes every registered activity.
func (s *CronIntervalScheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, ids := range s.entries {
		for _, id := range ids {
			s.scheduler.Remove(id)
		}
		delete(s.entries, name)
		delete(s.activities, name)
	}
}

// Register adds a repeating activity. Registering an existing name
// replaces it.
func (s *CronIntervalScheduler) Register(a domain.IntervalActivity) error {
	startSpec, endSpec, err := CronSpecs(a)
	if err != nil {
		return fmt.Errorf("activity %s: %w", a.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.entries[a.Name] {
		s.scheduler.Remove(id)
	}
	delete(s.entries, a.Name)

	name := a.Name
	startID, err := s.scheduler.AddFunc(startSpec, func() { s.fire(IntervalStart, name) })
	if err != nil {
		return fmt.Errorf("failed to register start of %s: %w", name, err)
	}
	endID, err := s.scheduler.AddFunc(endSpec, func() { s.fire(IntervalEnd, name) })
	if err != nil {
		s.scheduler.Remove(startID)
		return fmt.Errorf("failed to register end of %s: %w", name, err)
	}

	s.entries[name] = []robfigcron.EntryID{startID, endID}
	s.activities[name] = a
	s.logger.Debug("interval registered",
		zap.String("activity", name),
		zap.String("start", startSpec),
		zap.String("end", endSpec))
	return nil
}

// Activities returns the registered activity names, sorted.
func (s *CronIntervalScheduler) Activities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.activities))
	for name := range s.activities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *CronIntervalScheduler) fire(event IntervalEvent, activity string) {
	s.logger.Info("interval boundary", zap.String("event", string(event)), zap.String("activity", activity))
	s.handler(event, activity)
}

// CronSpecs converts an activity into standard five-field cron specs for
// its start and end minutes.
func CronSpecs(a domain.IntervalActivity) (start, end string, err error) {
	if a.Name == "" {
		return "", "", fmt.Errorf("activity has no name")
	}
	if a.StartMinute < 0 || a.EndMinute >= domain.MinutesPerDay || a.StartMinute >= a.EndMinute {
		return "", "", fmt.Errorf("%w: %d-%d", domain.ErrInvalidSchedule, a.StartMinute, a.EndMinute)
	}
	if len(a.Days) == 0 {
		return "", "", fmt.Errorf("%w: no active days", domain.ErrInvalidSchedule)
	}

	dow := make([]string, 0, len(a.Days))
	for _, d := range a.Days {
		if !d.Valid() {
			return "", "", fmt.Errorf("%w: weekday %d", domain.ErrInvalidSchedule, d)
		}
		// cron counts Sunday as 0
		dow = append(dow, strconv.Itoa(int(d)-1))
	}
	days := strings.Join(dow, ",")

	start = fmt.Sprintf("%d %d * * %s", a.StartMinute%60, a.StartMinute/60, days)
	end = fmt.Sprintf("%d %d * * %s", a.EndMinute%60, a.EndMinute/60, days)
	return start, end, nil
}

// Ensure CronIntervalScheduler implements domain.IntervalScheduler.
var _ domain.IntervalScheduler = (*CronIntervalScheduler)(nil)
