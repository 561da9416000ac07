package infra

import (
	"time"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
)

// SystemClock implements domain.Clock with the wall clock.
type SystemClock struct{}

// NewSystemClock returns the wall clock.
func NewSystemClock() SystemClock {
	return SystemClock{}
}

// Now returns the current local time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f in its own goroutine after d.
func (SystemClock) AfterFunc(d time.Duration, f func()) domain.Timer {
	return time.AfterFunc(d, f)
}

// Ensure SystemClock implements domain.Clock.
var _ domain.Clock = SystemClock{}
