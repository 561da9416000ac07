// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// StrictnessLevel controls how hard it is to bypass an enforced profile.
type StrictnessLevel string

const (
	StrictnessStandard StrictnessLevel = "standard"
	StrictnessStrict   StrictnessLevel = "strict"
	StrictnessLocked   StrictnessLevel = "locked"
)

// Rank orders levels from weakest to strongest resistance.
func (l StrictnessLevel) Rank() int {
	switch l {
	case StrictnessStandard:
		return 0
	case StrictnessStrict:
		return 1
	case StrictnessLocked:
		return 2
	default:
		return -1
	}
}

// Valid reports whether l is one of the known levels.
func (l StrictnessLevel) Valid() bool {
	return l.Rank() >= 0
}

// BlockedTargets is the opaque set handed to the Enforcer.
type BlockedTargets struct {
	Apps     []string `json:"apps,omitempty"`     // Process name patterns
	Websites []string `json:"websites,omitempty"` // Domains
}

// IsEmpty reports whether nothing would be blocked.
func (t BlockedTargets) IsEmpty() bool {
	return len(t.Apps) == 0 && len(t.Websites) == 0
}

// Clone returns a deep copy.
func (t BlockedTargets) Clone() BlockedTargets {
	return BlockedTargets{
		Apps:     append([]string(nil), t.Apps...),
		Websites: append([]string(nil), t.Websites...),
	}
}

// UnlockState is the per-profile position in the unlock state machine.
type UnlockState string

const (
	UnlockEnforced            UnlockState = "enforced"
	UnlockCoolingDown         UnlockState = "cooling_down"
	UnlockTemporarilyUnlocked UnlockState = "temporarily_unlocked"
)

// Profile is a schedule plus what to block and how hard it is to escape.
// Session fields are mutated only by the coordinator.
type Profile struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	IconName       string          `json:"icon_name"`
	Color          string          `json:"color"`
	Schedule       Schedule        `json:"schedule"`
	IsEnabled      bool            `json:"is_enabled"`
	BlockedTargets BlockedTargets  `json:"blocked_targets"`
	Strictness     StrictnessLevel `json:"strictness"`
	CreatedAt      time.Time       `json:"created_at"`

	DailyUnlocksUsed     int        `json:"daily_unlocks_used"`
	LastUnlockResetAt    *time.Time `json:"last_unlock_reset_at,omitempty"`
	CooldownEndAt        *time.Time `json:"cooldown_end_at,omitempty"`
	TemporaryUnlockEndAt *time.Time `json:"temporary_unlock_end_at,omitempty"`
}

// IsTemporarilyUnlocked reports whether an unlock window covers now.
func (p Profile) IsTemporarilyUnlocked(now time.Time) bool {
	return p.TemporaryUnlockEndAt != nil && now.Before(*p.TemporaryUnlockEndAt)
}

// IsCoolingDown reports whether an unlock request is waiting out its cooldown.
func (p Profile) IsCoolingDown() bool {
	return p.CooldownEndAt != nil
}

// UnlockState derives the state machine position from the persisted deadlines.
func (p Profile) UnlockState(now time.Time) UnlockState {
	switch {
	case p.IsTemporarilyUnlocked(now):
		return UnlockTemporarilyUnlocked
	case p.IsCoolingDown():
		return UnlockCoolingDown
	default:
		return UnlockEnforced
	}
}

// Clone returns a deep copy so callers never alias coordinator state.
func (p Profile) Clone() Profile {
	c := p
	c.Schedule = p.Schedule.Clone()
	c.BlockedTargets = p.BlockedTargets.Clone()
	c.LastUnlockResetAt = cloneTime(p.LastUnlockResetAt)
	c.CooldownEndAt = cloneTime(p.CooldownEndAt)
	c.TemporaryUnlockEndAt = cloneTime(p.TemporaryUnlockEndAt)
	return c
}

// CloneProfiles deep-copies a profile list.
func CloneProfiles(profiles []Profile) []Profile {
	out := make([]Profile, len(profiles))
	for i, p := range profiles {
		out[i] = p.Clone()
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// NuclearOverride forces one profile active until EndAt.
type NuclearOverride struct {
	ProfileID string    `json:"profile_id"`
	EndAt     time.Time `json:"end_at"`
}

// InEffect reports whether the override is unexpired at now.
func (n *NuclearOverride) InEffect(now time.Time) bool {
	return n != nil && now.Before(n.EndAt)
}

// CoordinatorState is the engine's persisted decision.
// An empty ActiveProfileID means nothing is enforced.
type CoordinatorState struct {
	ActiveProfileID string           `json:"active_profile_id,omitempty"`
	Nuclear         *NuclearOverride `json:"nuclear,omitempty"`
}

// ChangeKind identifies an activation event.
type ChangeKind string

const (
	ChangeActivated   ChangeKind = "activated"
	ChangeDeactivated ChangeKind = "deactivated"
)

// ActivationChange is emitted whenever the enforced profile changes.
type ActivationChange struct {
	Kind       ChangeKind
	Profile    *Profile // Set for ChangeActivated
	PreviousID string   // Profile that was active before, if any
	Nuclear    bool     // Activation forced by the nuclear override
	At         time.Time
}

// ActiveSummary is the glanceable description of what is enforced right now.
type ActiveSummary struct {
	ProfileID  string          `json:"profile_id"`
	Name       string          `json:"name"`
	IconName   string          `json:"icon_name"`
	Color      string          `json:"color"`
	Strictness StrictnessLevel `json:"strictness"`
	EndAt      time.Time       `json:"end_at"`
	Nuclear    bool            `json:"nuclear,omitempty"`
}

// MirrorSchemaVersion is written into every MirrorSnapshot.
const MirrorSchemaVersion = 1

// MirrorSnapshot is the read-only copy shared with the interval monitor
// and status surfaces.
type MirrorSnapshot struct {
	Version       int              `json:"version"`
	Profiles      []Profile        `json:"profiles"`
	Nuclear       *NuclearOverride `json:"nuclear,omitempty"`
	Active        *ActiveSummary   `json:"active,omitempty"`
	UpdatedAt     int64            `json:"updated_at"`

	// LastHeartbeat is read from a separate file next to the mirror.
	LastHeartbeat int64 `json:"-"`
}

// IntervalActivity is a named recurring window registered with the OS scheduler.
// Name is the profile ID.
type IntervalActivity struct {
	Name        string
	StartMinute int
	EndMinute   int
	Days        []Weekday
}

// FocusSession records one activation of a profile.
type FocusSession struct {
	ID                  string     `json:"id"`
	ProfileID           string     `json:"profile_id"`
	ProfileName         string     `json:"profile_name"`
	ProfileIconName     string     `json:"profile_icon_name"`
	ProfileColor        string     `json:"profile_color"`
	StartAt             time.Time  `json:"start_at"`
	EndAt               *time.Time `json:"end_at,omitempty"`
	ScheduledEndAt      time.Time  `json:"scheduled_end_at"`
	BlockedAppCount     int        `json:"blocked_app_count"`
	BlockedWebsiteCount int        `json:"blocked_website_count"`
	WasCompleted        bool       `json:"was_completed"`
}

// Duration is the session length, measured to now if still running.
func (s FocusSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndAt != nil {
		end = *s.EndAt
	}
	return end.Sub(s.StartAt)
}
