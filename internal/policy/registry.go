package policy

import (
	"fmt"
	"sort"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// Registry holds one policy per strictness level.
type Registry struct {
	policies map[domain.StrictnessLevel]StrictnessPolicy
}

// NewRegistry creates a registry with the three built-in levels.
func NewRegistry() *Registry {
	return NewRegistryWithPolicies(
		NewStandardPolicy(),
		NewStrictPolicy(),
		NewLockedPolicy(),
	)
}

// NewRegistryWithPolicies creates a registry with custom policies (for testing).
func NewRegistryWithPolicies(policies ...StrictnessPolicy) *Registry {
	r := &Registry{
		policies: make(map[domain.StrictnessLevel]StrictnessPolicy),
	}
	for _, p := range policies {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the policy for its level.
func (r *Registry) Register(p StrictnessPolicy) {
	r.policies[p.Level()] = p
}

// Get returns the policy for a level.
func (r *Registry) Get(level domain.StrictnessLevel) (StrictnessPolicy, bool) {
	p, ok := r.policies[level]
	return p, ok
}

// For returns the policy for a level or an error for unknown levels.
func (r *Registry) For(level domain.StrictnessLevel) (StrictnessPolicy, error) {
	p, ok := r.Get(level)
	if !ok {
		return nil, fmt.Errorf("unknown strictness level %q", level)
	}
	return p, nil
}

// Levels returns registered levels from weakest to strongest.
func (r *Registry) Levels() []domain.StrictnessLevel {
	levels := make([]domain.StrictnessLevel, 0, len(r.policies))
	for l := range r.policies {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Rank() < levels[j].Rank() })
	return levels
}
