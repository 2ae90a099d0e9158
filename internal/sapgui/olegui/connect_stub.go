//go:build !windows

package olegui

import (
	"errors"

	"agreement-closing/internal/sapgui"
)

// Connection is an open scripting engine connection with one session.
// COM automation is windows-only, so Connect always fails on this
// platform.
type Connection struct{}

// Connect reports that GUI automation is unavailable on this platform.
func Connect(system string, opts ...Option) (*Connection, error) {
	if _, err := SystemDescription(system); err != nil {
		return nil, err
	}
	return nil, errors.New("olegui: GUI automation requires windows")
}

// Session returns the scripting session of the connection.
func (c *Connection) Session() sapgui.Session { return nil }

// Close ends the session and closes the connection.
func (c *Connection) Close() error { return nil }
