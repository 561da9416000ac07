package domain

import "errors"

var (
	// ErrNotEligible: the request is not allowed under the profile's strictness
	// or its unlock budget is spent. No state was changed.
	ErrNotEligible = errors.New("not eligible")

	// ErrNotFound: the referenced profile is no longer in the store.
	ErrNotFound = errors.New("profile not found")

	// ErrPersistence wraps load/save failures of the profile store.
	ErrPersistence = errors.New("persistence failure")

	// ErrEnforcer wraps failures of the blocking capability.
	ErrEnforcer = errors.New("enforcer failure")

	// ErrInvalidSchedule rejects malformed or overnight windows.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDeleteCooldown: deleting would remove active locked enforcement
	// before the waiting period has been observed.
	ErrDeleteCooldown = errors.New("delete waiting period not elapsed")
)
