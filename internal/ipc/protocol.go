// Package ipc exposes the scheduling engine on D-Bus and provides the
// matching client used by the CLI.
package ipc

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/usecase"
)

const (
	ObjectPath    = "/io/github/elitegoblin/focuscage"
	InterfaceName = "io.github.elitegoblin.focuscage.Engine"
	ServiceName   = "io.github.elitegoblin.focuscage"
)

// Error names returned over the bus.
const (
	ErrNameNotEligible     = ServiceName + ".Error.NotEligible"
	ErrNameNotFound        = ServiceName + ".Error.NotFound"
	ErrNamePersistence     = ServiceName + ".Error.Persistence"
	ErrNameEnforcer        = ServiceName + ".Error.Enforcer"
	ErrNameInvalidSchedule = ServiceName + ".Error.InvalidSchedule"
	ErrNameDeleteCooldown  = ServiceName + ".Error.DeleteCooldown"
	ErrNameInvalidProfile  = ServiceName + ".Error.InvalidProfile"
	ErrNameInvalidArgs     = ServiceName + ".Error.InvalidArgs"
	ErrNameFailed          = ServiceName + ".Error.Failed"
)

var errorNames = []struct {
	name     string
	sentinel error
}{
	{ErrNameNotEligible, domain.ErrNotEligible},
	{ErrNameNotFound, domain.ErrNotFound},
	{ErrNamePersistence, domain.ErrPersistence},
	{ErrNameEnforcer, domain.ErrEnforcer},
	{ErrNameInvalidSchedule, domain.ErrInvalidSchedule},
	{ErrNameDeleteCooldown, domain.ErrDeleteCooldown},
	{ErrNameInvalidProfile, usecase.ErrInvalidProfile},
}

// ErrInvalidArgs is returned when a request body cannot be decoded.
var ErrInvalidArgs = errors.New("invalid arguments")

// RemoteError is an error reported by the daemon. It unwraps to the
// matching domain sentinel so callers can use errors.Is across the bus.
type RemoteError struct {
	Name     string
	Message  string
	sentinel error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.sentinel
}

// toDBusError converts an engine error into a named bus error.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	name := ErrNameFailed
	if errors.Is(err, ErrInvalidArgs) {
		name = ErrNameInvalidArgs
	}
	for _, e := range errorNames {
		if errors.Is(err, e.sentinel) {
			name = e.name
			break
		}
	}
	return dbus.NewError(name, []interface{}{err.Error()})
}

// fromDBusError maps a bus error back to a RemoteError. Transport errors
// are returned unchanged.
func fromDBusError(err error) error {
	var name string
	var body []interface{}
	switch e := err.(type) {
	case nil:
		return nil
	case dbus.Error:
		name, body = e.Name, e.Body
	case *dbus.Error:
		name, body = e.Name, e.Body
	default:
		return err
	}

	remote := &RemoteError{Name: name, Message: name}
	if len(body) > 0 {
		if msg, ok := body[0].(string); ok {
			remote.Message = msg
		}
	}
	for _, e := range errorNames {
		if e.name == name {
			remote.sentinel = e.sentinel
			return remote
		}
	}
	if name == ErrNameInvalidArgs {
		remote.sentinel = ErrInvalidArgs
	}
	return remote
}

func invalidArgs(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgs, fmt.Sprintf(format, args...))
}
