package infra

import (
	"sort"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// FallbackIntervalScheduler registers each activity with primary and falls
// back to fallback for activities primary rejects.
type FallbackIntervalScheduler struct {
	primary  domain.IntervalScheduler
	fallback domain.IntervalScheduler
	logger   *zap.Logger
}

// NewFallbackIntervalScheduler combines two schedulers.
func NewFallbackIntervalScheduler(primary, fallback domain.IntervalScheduler, logger *zap.Logger) *FallbackIntervalScheduler {
	return &FallbackIntervalScheduler{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Register tries primary first.
func (s *FallbackIntervalScheduler) Register(a domain.IntervalActivity) error {
	err := s.primary.Register(a)
	if err == nil {
		return nil
	}
	s.logger.Warn("primary interval scheduler failed, using fallback",
		zap.String("activity", a.Name),
		zap.Error(err))
	return s.fallback.Register(a)
}

// StopAll clears both schedulers.
func (s *FallbackIntervalScheduler) StopAll() {
	s.primary.StopAll()
	s.fallback.StopAll()
}

// Activities returns the names registered with either scheduler, sorted.
func (s *FallbackIntervalScheduler) Activities() []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range append(s.primary.Activities(), s.fallback.Activities()...) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Ensure FallbackIntervalScheduler implements domain.IntervalScheduler.
var _ domain.IntervalScheduler = (*FallbackIntervalScheduler)(nil)
