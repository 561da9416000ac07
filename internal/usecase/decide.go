package usecase

import (
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// Decision is the outcome of SelectActive.
type Decision struct {
	// Profile is the profile to enforce, or nil.
	Profile *domain.Profile

	// Nuclear is true when Profile was forced by the override.
	Nuclear bool

	// ClearNuclear is true when the supplied override is expired or
	// references a profile that no longer exists.
	ClearNuclear bool
}

// SelectActive decides which profile should be enforced at now.
// An unexpired nuclear override wins unconditionally. Otherwise the first
// profile in list order that is enabled, inside its window and not
// temporarily unlocked is chosen. Both the engine and the interval monitor
// use this function so they never disagree.
func SelectActive(profiles []domain.Profile, nuclear *domain.NuclearOverride, now time.Time) Decision {
	var d Decision

	if nuclear != nil {
		if nuclear.InEffect(now) {
			if p := findProfile(profiles, nuclear.ProfileID); p != nil {
				c := p.Clone()
				return Decision{Profile: &c, Nuclear: true}
			}
		}
		d.ClearNuclear = true
	}

	for i := range profiles {
		p := &profiles[i]
		if !p.IsEnabled || !p.Schedule.IsActiveNow(now) || p.IsTemporarilyUnlocked(now) {
			continue
		}
		c := p.Clone()
		d.Profile = &c
		return d
	}
	return d
}

// UpcomingProfile returns the enabled profile whose window starts soonest
// later today, or nil.
func UpcomingProfile(profiles []domain.Profile, now time.Time) *domain.Profile {
	today := domain.WeekdayOf(now)
	minute := domain.MinuteOfDay(now)

	var best *domain.Profile
	for i := range profiles {
		p := &profiles[i]
		if !p.IsEnabled || !p.Schedule.HasDay(today) || p.Schedule.StartMinute <= minute {
			continue
		}
		if best == nil || p.Schedule.StartMinute < best.Schedule.StartMinute {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	c := best.Clone()
	return &c
}

// FormatRemaining renders "Xh Ym remaining" or "Ym remaining".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	hours := minutes / 60
	minutes %= 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm remaining", hours, minutes)
	}
	return fmt.Sprintf("%dm remaining", minutes)
}

func findProfile(profiles []domain.Profile, id string) *domain.Profile {
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}
