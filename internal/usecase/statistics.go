package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// StatisticsRecorder turns activation events into focus sessions.
// It observes the engine and never influences its decisions.
type StatisticsRecorder struct {
	mu      sync.Mutex
	store   domain.SessionStore
	current *domain.FocusSession
	logger  *zap.Logger
}

// NewStatisticsRecorder creates a recorder writing to store.
func NewStatisticsRecorder(store domain.SessionStore, logger *zap.Logger) *StatisticsRecorder {
	return &StatisticsRecorder{store: store, logger: logger}
}

// OnActivationChange implements domain.ActivationListener.
func (r *StatisticsRecorder) OnActivationChange(_ context.Context, change domain.ActivationChange) {
	switch change.Kind {
	case domain.ChangeActivated:
		if change.Profile != nil {
			r.startSession(*change.Profile, change.At)
		}
	case domain.ChangeDeactivated:
		r.endCurrentSession(change.At, true)
	}
}

// Current returns the running session, or nil.
func (r *StatisticsRecorder) Current() *domain.FocusSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	s := *r.current
	return &s
}

// Close ends a running session as not completed.
func (r *StatisticsRecorder) Close(at time.Time) {
	r.endCurrentSession(at, false)
}

func (r *StatisticsRecorder) startSession(p domain.Profile, at time.Time) {
	r.mu.Lock()
	if r.current != nil && r.current.ProfileID == p.ID {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	// A different profile took over before its predecessor ended.
	r.endCurrentSession(at, false)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = &domain.FocusSession{
		ID:                  uuid.NewString(),
		ProfileID:           p.ID,
		ProfileName:         p.Name,
		ProfileIconName:     p.IconName,
		ProfileColor:        p.Color,
		StartAt:             at,
		ScheduledEndAt:      p.Schedule.EndOn(at),
		BlockedAppCount:     len(p.BlockedTargets.Apps),
		BlockedWebsiteCount: len(p.BlockedTargets.Websites),
	}
	r.logger.Info("session started", zap.String("profile", p.ID), zap.String("name", p.Name))
}

func (r *StatisticsRecorder) endCurrentSession(at time.Time, completed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return
	}
	session := *r.current
	r.current = nil

	end := at
	session.EndAt = &end
	session.WasCompleted = completed
	if err := r.store.AppendSession(session); err != nil {
		r.logger.Error("failed to save session",
			zap.String("session", session.ID),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistence, err)))
		return
	}
	r.logger.Info("session ended",
		zap.String("profile", session.ProfileID),
		zap.Bool("completed", completed),
		zap.Duration("duration", session.Duration(at)))
}

// DailyHours is focus time on one calendar day.
type DailyHours struct {
	Date  time.Time `json:"date"`
	Hours float64   `json:"hours"`
}

// StatsSummary aggregates recorded sessions.
type StatsSummary struct {
	TotalSessions      int          `json:"total_sessions"`
	HoursToday         float64      `json:"hours_today"`
	HoursThisWeek      float64      `json:"hours_this_week"`
	CompletionRate     float64      `json:"completion_rate"`
	CurrentStreak      int          `json:"current_streak"`
	LongestStreak      int          `json:"longest_streak"`
	MostUsedProfile    string       `json:"most_used_profile,omitempty"`
	MostUsedCount      int          `json:"most_used_count,omitempty"`
	Daily              []DailyHours `json:"daily"`
	CurrentProfileName string       `json:"current_profile_name,omitempty"`
}

// Summary loads stored sessions and aggregates them at now.
func (r *StatisticsRecorder) Summary(now time.Time) (StatsSummary, error) {
	sessions, err := r.store.ListSessions()
	if err != nil {
		return StatsSummary{}, fmt.Errorf("%w: list sessions: %v", domain.ErrPersistence, err)
	}
	summary := ComputeStats(sessions, now, 7)
	if cur := r.Current(); cur != nil {
		summary.CurrentProfileName = cur.ProfileName
	}
	return summary, nil
}

// ComputeStats aggregates sessions by the calendar of now's location.
// Weeks start on Sunday.
func ComputeStats(sessions []domain.FocusSession, now time.Time, daysBack int) StatsSummary {
	today := startOfDay(now)
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))

	s := StatsSummary{TotalSessions: len(sessions)}
	completedDays := make(map[time.Time]bool)
	counts := make(map[string]int)
	completed := 0

	for _, session := range sessions {
		start := session.StartAt.In(now.Location())
		hours := session.Duration(now).Hours()
		day := startOfDay(start)

		if day.Equal(today) {
			s.HoursToday += hours
		}
		if !start.Before(weekStart) {
			s.HoursThisWeek += hours
		}
		if session.WasCompleted {
			completed++
			completedDays[day] = true
		}
		counts[session.ProfileName]++
	}

	if len(sessions) > 0 {
		s.CompletionRate = float64(completed) / float64(len(sessions))
	}

	s.CurrentStreak = currentStreak(completedDays, today)
	s.LongestStreak = longestStreak(completedDays)

	for name, count := range counts {
		if count > s.MostUsedCount || (count == s.MostUsedCount && name < s.MostUsedProfile) {
			s.MostUsedProfile, s.MostUsedCount = name, count
		}
	}

	s.Daily = make([]DailyHours, 0, daysBack)
	for offset := daysBack - 1; offset >= 0; offset-- {
		date := today.AddDate(0, 0, -offset)
		entry := DailyHours{Date: date}
		for _, session := range sessions {
			if startOfDay(session.StartAt.In(now.Location())).Equal(date) {
				entry.Hours += session.Duration(now).Hours()
			}
		}
		s.Daily = append(s.Daily, entry)
	}
	return s
}

// currentStreak counts consecutive days with a completed session, ending
// today, or yesterday when today has none yet.
func currentStreak(days map[time.Time]bool, today time.Time) int {
	check := today
	if !days[check] {
		check = check.AddDate(0, 0, -1)
	}
	streak := 0
	for days[check] {
		streak++
		check = check.AddDate(0, 0, -1)
	}
	return streak
}

func longestStreak(days map[time.Time]bool) int {
	if len(days) == 0 {
		return 0
	}
	sorted := make([]time.Time, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].AddDate(0, 0, 1).Equal(sorted[i]) {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}
	return longest
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Ensure StatisticsRecorder implements domain.ActivationListener.
var _ domain.ActivationListener = (*StatisticsRecorder)(nil)
