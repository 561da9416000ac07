package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/eliteGoblin/focusd/focuscage/internal/domain"
	"github.com/eliteGoblin/focusd/focuscage/internal/usecase"
)

// Client calls the daemon over D-Bus. Errors reported by the daemon are
// *RemoteError values that unwrap to domain sentinels.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the daemon on the session or system bus.
func Dial(system bool) (*Client, error) {
	conn, err := Connect(system)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *dbus.Conn) *Client {
	return &Client{
		conn: conn,
		obj:  conn.Object(ServiceName, dbus.ObjectPath(ObjectPath)),
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Running reports whether a daemon currently owns the service name.
func (c *Client) Running() bool {
	var owned bool
	err := c.conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, ServiceName).Store(&owned)
	return err == nil && owned
}

func (c *Client) call(method string, out interface{}, args ...interface{}) error {
	call := c.obj.Call(InterfaceName+"."+method, 0, args...)
	if call.Err != nil {
		return fromDBusError(call.Err)
	}
	if out == nil {
		return nil
	}
	return fromDBusError(call.Store(out))
}

func (c *Client) callJSON(method string, out interface{}, args ...interface{}) error {
	var doc string
	if err := c.call(method, &doc, args...); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", method, err)
	}
	return nil
}

func (c *Client) Status() (usecase.StatusReport, error) {
	var report usecase.StatusReport
	err := c.callJSON("Status", &report)
	return report, err
}

func (c *Client) ListProfiles() ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := c.callJSON("ListProfiles", &profiles)
	return profiles, err
}

// AddProfile returns the profile as stored, with its generated ID.
func (c *Client) AddProfile(p domain.Profile) (domain.Profile, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return domain.Profile{}, err
	}
	var added domain.Profile
	err = c.callJSON("AddProfile", &added, string(doc))
	return added, err
}

func (c *Client) UpdateProfile(p domain.Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.call("UpdateProfile", nil, string(doc))
}

func (c *Client) SetEnabled(id string, enabled bool) error {
	return c.call("SetEnabled", nil, id, enabled)
}

func (c *Client) ToggleProfile(id string) error {
	return c.call("ToggleProfile", nil, id)
}

// RequestDelete returns when DeleteProfile will be permitted.
func (c *Client) RequestDelete(id string) (time.Time, error) {
	var readyAt int64
	if err := c.call("RequestDelete", &readyAt, id); err != nil {
		return time.Time{}, err
	}
	return time.Unix(readyAt, 0), nil
}

func (c *Client) CancelDeleteRequest(id string) error {
	return c.call("CancelDeleteRequest", nil, id)
}

func (c *Client) DeleteProfile(id string) error {
	return c.call("DeleteProfile", nil, id)
}

func (c *Client) RequestUnlock(id string) (usecase.UnlockResult, error) {
	var result usecase.UnlockResult
	err := c.callJSON("RequestUnlock", &result, id)
	return result, err
}

func (c *Client) CancelUnlock(id string) error {
	return c.call("CancelUnlock", nil, id)
}

// ActivateNuclear returns when the override ends.
func (c *Client) ActivateNuclear(id string) (time.Time, error) {
	var endAt int64
	if err := c.call("ActivateNuclear", &endAt, id); err != nil {
		return time.Time{}, err
	}
	return time.Unix(endAt, 0), nil
}

func (c *Client) DeactivateNuclear() error {
	return c.call("DeactivateNuclear", nil)
}

// Tick asks the daemon to reconcile now and returns the active profile ID.
func (c *Client) Tick() (string, error) {
	var active string
	err := c.call("Tick", &active)
	return active, err
}

func (c *Client) Resume() error {
	return c.call("Resume", nil)
}

func (c *Client) Stats() (usecase.StatsSummary, error) {
	var summary usecase.StatsSummary
	err := c.callJSON("Stats", &summary)
	return summary, err
}
