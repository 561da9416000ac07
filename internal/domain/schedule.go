package domain

import (
	"fmt"
	"sort"
	"time"
)

// MinutesPerDay bounds minute-of-day values to [0, MinutesPerDay).
const MinutesPerDay = 24 * 60

// Weekday uses 1 = Sunday through 7 = Saturday.
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var weekdayNames = map[Weekday]string{
	Sunday:    "Sun",
	Monday:    "Mon",
	Tuesday:   "Tue",
	Wednesday: "Wed",
	Thursday:  "Thu",
	Friday:    "Fri",
	Saturday:  "Sat",
}

// AllWeekdays returns every day, Sunday first.
func AllWeekdays() []Weekday {
	return []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}
}

// WeekdayOf returns the local weekday of t.
func WeekdayOf(t time.Time) Weekday {
	return Weekday(int(t.Weekday()) + 1)
}

// Valid reports whether d is in 1..7.
func (d Weekday) Valid() bool {
	return d >= Sunday && d <= Saturday
}

// ShortName returns "Sun".."Sat".
func (d Weekday) ShortName() string {
	if name, ok := weekdayNames[d]; ok {
		return name
	}
	return "?"
}

// ParseWeekday accepts short names (case-sensitive "Mon") or numbers 1..7.
func ParseWeekday(s string) (Weekday, error) {
	for d, name := range weekdayNames {
		if name == s {
			return d, nil
		}
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && Weekday(n).Valid() {
		return Weekday(n), nil
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

// Schedule is a weekly window. Windows never wrap past midnight.
type Schedule struct {
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	ActiveDays  []Weekday `json:"active_days"`
}

// DefaultSchedule is 9:00 AM to 5:00 PM every day.
func DefaultSchedule() Schedule {
	return Schedule{
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
		ActiveDays:  AllWeekdays(),
	}
}

// Validate rejects out-of-range minutes, unknown days and overnight windows.
func (s Schedule) Validate() error {
	if s.StartMinute < 0 || s.StartMinute >= MinutesPerDay {
		return fmt.Errorf("%w: start minute %d out of range", ErrInvalidSchedule, s.StartMinute)
	}
	if s.EndMinute < 0 || s.EndMinute >= MinutesPerDay {
		return fmt.Errorf("%w: end minute %d out of range", ErrInvalidSchedule, s.EndMinute)
	}
	if s.EndMinute <= s.StartMinute {
		return fmt.Errorf("%w: end %s must be after start %s (overnight windows are not supported)",
			ErrInvalidSchedule, FormatMinute(s.EndMinute), FormatMinute(s.StartMinute))
	}
	for _, d := range s.ActiveDays {
		if !d.Valid() {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidSchedule, d)
		}
	}
	return nil
}

// HasDay reports whether d is an active day.
func (s Schedule) HasDay(d Weekday) bool {
	for _, day := range s.ActiveDays {
		if day == d {
			return true
		}
	}
	return false
}

// IsActiveNow reports whether now falls in [start, end) on an active day.
func (s Schedule) IsActiveNow(now time.Time) bool {
	if !s.HasDay(WeekdayOf(now)) {
		return false
	}
	minute := MinuteOfDay(now)
	return minute >= s.StartMinute && minute < s.EndMinute
}

// StartOn returns the window start on the calendar day of t.
func (s Schedule) StartOn(t time.Time) time.Time {
	return atMinute(t, s.StartMinute)
}

// EndOn returns the window end on the calendar day of t.
func (s Schedule) EndOn(t time.Time) time.Time {
	return atMinute(t, s.EndMinute)
}

// SortedDays returns the active days in weekday order without duplicates.
func (s Schedule) SortedDays() []Weekday {
	seen := make(map[Weekday]bool, len(s.ActiveDays))
	days := make([]Weekday, 0, len(s.ActiveDays))
	for _, d := range s.ActiveDays {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// Clone returns a copy that does not share the day slice.
func (s Schedule) Clone() Schedule {
	c := s
	c.ActiveDays = append([]Weekday(nil), s.ActiveDays...)
	return c
}

// String renders e.g. "9:00 AM - 5:00 PM (Mon,Tue)".
func (s Schedule) String() string {
	days := ""
	for i, d := range s.SortedDays() {
		if i > 0 {
			days += ","
		}
		days += d.ShortName()
	}
	return fmt.Sprintf("%s - %s (%s)", FormatMinute(s.StartMinute), FormatMinute(s.EndMinute), days)
}

// MinuteOfDay returns hour*60+minute of t in its own location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// FormatMinute renders a minute-of-day as "3:04 PM".
func FormatMinute(minute int) string {
	return time.Date(2000, 1, 1, minute/60, minute%60, 0, 0, time.UTC).Format("3:04 PM")
}

// ParseClock parses "HH:MM" (24h) into a minute-of-day.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func atMinute(t time.Time, minute int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, minute/60, minute%60, 0, 0, t.Location())
}
