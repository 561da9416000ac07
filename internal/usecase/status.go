package usecase

import (
	"time"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// ProfileStatus is one row of a StatusReport.
type ProfileStatus struct {
	ID                   string                 `json:"id"`
	Name                 string                 `json:"name"`
	Schedule             string                 `json:"schedule"`
	Strictness           domain.StrictnessLevel `json:"strictness"`
	Enabled              bool                   `json:"enabled"`
	Active               bool                   `json:"active"`
	UnlockState          domain.UnlockState     `json:"unlock_state"`
	RemainingUnlocks     int                    `json:"remaining_unlocks"`
	CooldownEndAt        *time.Time             `json:"cooldown_end_at,omitempty"`
	TemporaryUnlockEndAt *time.Time             `json:"temporary_unlock_end_at,omitempty"`
	DeleteReadyAt        *time.Time             `json:"delete_ready_at,omitempty"`
	Protected            bool                   `json:"protected"`
	DeleteWait           time.Duration          `json:"delete_wait,omitempty"`
}

// StatusReport is a point-in-time view of the engine.
type StatusReport struct {
	At            time.Time               `json:"at"`
	Active        *domain.ActiveSummary   `json:"active,omitempty"`
	TimeRemaining string                  `json:"time_remaining,omitempty"`
	Nuclear       *domain.NuclearOverride `json:"nuclear,omitempty"`
	Upcoming      *UpcomingStatus         `json:"upcoming,omitempty"`
	Profiles      []ProfileStatus         `json:"profiles"`
	Degraded      bool                    `json:"degraded,omitempty"`

	// LastEnforcement is filled in by the daemon from its BlockEnforcer.
	LastEnforcement *EnforcementStatus `json:"last_enforcement,omitempty"`
}

// EnforcementStatus summarizes the most recent enforcement pass.
type EnforcementStatus struct {
	At           time.Time `json:"at"`
	KilledPIDs   []int     `json:"killed_pids,omitempty"`
	SitesChanged bool      `json:"sites_changed"`
	Errors       []string  `json:"errors,omitempty"`
}

// NewEnforcementStatus converts a pass result for reporting; nil stays nil.
func NewEnforcementStatus(r *EnforcementResult) *EnforcementStatus {
	if r == nil {
		return nil
	}
	status := &EnforcementStatus{
		At:           r.ExecutedAt,
		KilledPIDs:   append([]int(nil), r.KilledPIDs...),
		SitesChanged: r.SitesChanged,
	}
	for _, err := range r.Errors {
		status.Errors = append(status.Errors, err.Error())
	}
	return status
}

// UpcomingStatus names the next profile starting later today.
type UpcomingStatus struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	StartAt time.Time `json:"start_at"`
}

// Status builds a StatusReport at now.
func (c *Coordinator) Status(now time.Time) StatusReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := StatusReport{
		At:            now,
		Active:        c.activeSummaryLocked(now),
		TimeRemaining: c.timeUntilNextChangeLocked(now),
		Nuclear:       copyState(c.state).Nuclear,
		Profiles:      make([]ProfileStatus, 0, len(c.profiles)),
		Degraded:      c.degraded,
	}

	if up := UpcomingProfile(c.profiles, now); up != nil {
		report.Upcoming = &UpcomingStatus{ID: up.ID, Name: up.Name, StartAt: up.Schedule.StartOn(now)}
	}

	for i := range c.profiles {
		p := &c.profiles[i]
		clone := p.Clone()
		row := ProfileStatus{
			ID:                   p.ID,
			Name:                 p.Name,
			Schedule:             p.Schedule.String(),
			Strictness:           p.Strictness,
			Enabled:              p.IsEnabled,
			Active:               c.state.ActiveProfileID == p.ID,
			UnlockState:          p.UnlockState(now),
			CooldownEndAt:        clone.CooldownEndAt,
			TemporaryUnlockEndAt: clone.TemporaryUnlockEndAt,
			Protected:            c.guardLocked(p, now) != nil,
		}
		if wait, err := c.deleteWaitLocked(p, now); err == nil {
			row.DeleteWait = wait
		}
		if pol, err := c.policyFor(p); err == nil {
			row.RemainingUnlocks = remainingUnlocks(p, pol, now)
			if requested, ok := c.deleteRequests[p.ID]; ok {
				ready := requested.Add(pol.DeleteWaitPeriod())
				row.DeleteReadyAt = &ready
			}
		}
		report.Profiles = append(report.Profiles, row)
	}
	return report
}

func (c *Coordinator) timeUntilNextChangeLocked(now time.Time) string {
	summary := c.activeSummaryLocked(now)
	if summary == nil {
		return ""
	}
	return FormatRemaining(summary.EndAt.Sub(now))
}
