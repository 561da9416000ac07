package infra

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	systemdBusName   = "org.freedesktop.systemd1"
	systemdPath      = "/org/freedesktop/systemd1"
	systemdInterface = "org.freedesktop.systemd1.Manager"
)

// SystemdManager implements UnitManager by calling the systemd manager on
// a bus. On the session bus that is the user instance, on the system bus
// the system instance.
type SystemdManager struct {
	conn *dbus.Conn
}

// NewSystemdManager wraps conn.
func NewSystemdManager(conn *dbus.Conn) *SystemdManager {
	return &SystemdManager{conn: conn}
}

// SystemdAvailable reports whether a systemd manager owns its name on conn.
func SystemdAvailable(conn *dbus.Conn) bool {
	var owned bool
	err := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, systemdBusName).Store(&owned)
	return err == nil && owned
}

// Reload makes systemd re-read unit files.
func (m *SystemdManager) Reload() error {
	return m.call("Reload")
}

// EnableUnitFiles links units into their install targets.
func (m *SystemdManager) EnableUnitFiles(paths []string) error {
	return m.call("EnableUnitFiles", paths, false, true)
}

// DisableUnitFiles removes the install links of units.
func (m *SystemdManager) DisableUnitFiles(names []string) error {
	return m.call("DisableUnitFiles", names, false)
}

// RestartUnit starts name, restarting it if it already runs.
func (m *SystemdManager) RestartUnit(name string) error {
	return m.call("RestartUnit", name, "replace")
}

// StopUnit stops name.
func (m *SystemdManager) StopUnit(name string) error {
	return m.call("StopUnit", name, "replace")
}

func (m *SystemdManager) call(method string, args ...interface{}) error {
	obj := m.conn.Object(systemdBusName, dbus.ObjectPath(systemdPath))
	if call := obj.Call(systemdInterface+"."+method, 0, args...); call.Err != nil {
		return fmt.Errorf("systemd %s: %w", method, call.Err)
	}
	return nil
}

// Ensure SystemdManager implements UnitManager.
var _ UnitManager = (*SystemdManager)(nil)
