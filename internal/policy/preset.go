package policy

import (
	"fmt"
	"sort"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// Preset is a named, reusable blocklist that can seed a profile's targets.
type Preset struct {
	ID       string
	Name     string
	Apps     []string // Process name patterns, matched case-insensitively
	Websites []string
}

// Targets converts the preset to domain targets.
func (p Preset) Targets() domain.BlockedTargets {
	return domain.BlockedTargets{
		Apps:     append([]string(nil), p.Apps...),
		Websites: append([]string(nil), p.Websites...),
	}
}

var presets = map[string]Preset{
	"steam": {
		ID:   "steam",
		Name: "Steam",
		Apps: []string{
			"Steam",
			"steam_osx",
			"steamwebhelper",
			"Steam Helper",
		},
		Websites: []string{
			"store.steampowered.com",
			"steamcommunity.com",
		},
	},
	"dota2": {
		ID:   "dota2",
		Name: "Dota 2",
		Apps: []string{
			"dota2",
			"dota_osx64",
			"Dota 2",
			"dota2_launcher",
		},
		Websites: []string{
			"dota2.com",
		},
	},
	"social": {
		ID:   "social",
		Name: "Social Media",
		Websites: []string{
			"twitter.com",
			"x.com",
			"reddit.com",
			"facebook.com",
			"instagram.com",
			"tiktok.com",
		},
	},
}

// LookupPreset returns a preset by ID.
func LookupPreset(id string) (Preset, error) {
	p, ok := presets[id]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (available: %v)", id, PresetIDs())
	}
	return p, nil
}

// PresetIDs returns all preset IDs, sorted.
func PresetIDs() []string {
	ids := make([]string, 0, len(presets))
	for id := range presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MergeTargets unions target lists, keeping first-seen order.
func MergeTargets(sets ...domain.BlockedTargets) domain.BlockedTargets {
	var out domain.BlockedTargets
	seenApps := make(map[string]bool)
	seenSites := make(map[string]bool)
	for _, s := range sets {
		for _, a := range s.Apps {
			if !seenApps[a] {
				seenApps[a] = true
				out.Apps = append(out.Apps, a)
			}
		}
		for _, w := range s.Websites {
			if !seenSites[w] {
				seenSites[w] = true
				out.Websites = append(out.Websites, w)
			}
		}
	}
	return out
}
