package olegui

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"agreement-closing/internal/sapgui"
)

// sFalse is the HRESULT of a repeated COM initialization on the same
// thread.
const sFalse = 0x00000001

// Connection is an open scripting engine connection with one session.
type Connection struct {
	gui        *ole.IDispatch
	engine     *ole.IDispatch
	connection *ole.IDispatch
	session    *ole.IDispatch
}

// Connect attaches to the scripting engine and returns a connection to
// the given system. The frontend launcher is started with a capped wait
// when no engine instance is registered, and the connection is opened
// when the engine has none.
func Connect(system string, opts ...Option) (*Connection, error) {
	description, err := SystemDescription(system)
	if err != nil {
		return nil, err
	}
	cfg := newSettings(opts)

	if err := initCOM(); err != nil {
		return nil, err
	}
	conn := &Connection{}
	if err := conn.open(cfg, description); err != nil {
		conn.release()
		ole.CoUninitialize()
		return nil, err
	}
	return conn, nil
}

// Session returns the scripting session of the connection.
func (c *Connection) Session() sapgui.Session {
	if c == nil || c.session == nil {
		return nil
	}
	return &session{disp: c.session}
}

// Close ends the session and closes the connection. Closing an already
// closed connection is a no-op.
func (c *Connection) Close() error {
	if c == nil || c.session == nil {
		return nil
	}

	var closeErr error
	id := strProp(c.session, "Id")
	if _, err := oleutil.CallMethod(c.connection, "CloseSession", id); err != nil {
		closeErr = fmt.Errorf("olegui: closing session: %w", err)
	}
	if _, err := oleutil.CallMethod(c.connection, "CloseConnection"); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("olegui: closing connection: %w", err)
	}
	c.release()
	ole.CoUninitialize()
	return closeErr
}

func (c *Connection) open(cfg settings, description string) error {
	gui, err := scriptingObject(cfg)
	if err != nil {
		return err
	}
	c.gui = gui

	engineVar, err := oleutil.GetProperty(c.gui, "GetScriptingEngine")
	if err != nil {
		return fmt.Errorf("olegui: scripting engine: %w", err)
	}
	c.engine = engineVar.ToIDispatch()
	if c.engine == nil {
		return errors.New("olegui: scripting engine unavailable")
	}

	if connectionCount(c.engine) == 0 {
		// Sync keeps OpenConnection blocked until the logon completed.
		if _, err := oleutil.CallMethod(c.engine, "OpenConnection", description, true); err != nil {
			return fmt.Errorf("olegui: opening connection %q: %w", description, err)
		}
	}

	c.connection, err = collectionItem(c.engine, "Connections", 0)
	if err != nil {
		return err
	}
	c.session, err = collectionItem(c.connection, "Sessions", 0)
	return err
}

func (c *Connection) release() {
	for _, disp := range []*ole.IDispatch{c.session, c.connection, c.engine, c.gui} {
		if disp != nil {
			disp.Release()
		}
	}
	c.session, c.connection, c.engine, c.gui = nil, nil, nil, nil
}

func initCOM() error {
	if err := ole.CoInitialize(0); err != nil {
		var oleErr *ole.OleError
		if errors.As(err, &oleErr) && oleErr.Code() == sFalse {
			return nil
		}
		return fmt.Errorf("olegui: COM initialization: %w", err)
	}
	return nil
}

// scriptingObject attaches to the running automation object, starting
// the frontend launcher when no instance is registered yet.
func scriptingObject(cfg settings) (*ole.IDispatch, error) {
	gui, err := attach()
	if err == nil {
		return gui, nil
	}

	if _, statErr := os.Stat(cfg.launcherPath); statErr != nil {
		return nil, fmt.Errorf("olegui: frontend launcher not found at %s", cfg.launcherPath)
	}
	cmd := exec.Command(cfg.launcherPath)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("olegui: starting the frontend launcher: %w", err)
	}
	_ = cmd.Process.Release()

	deadline := time.Now().Add(cfg.launchWait)
	for {
		gui, err = attach()
		if err == nil {
			return gui, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("olegui: could not get the automation object: %w", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func attach() (*ole.IDispatch, error) {
	clsid, err := ole.ClassIDFrom("SAPGUI")
	if err != nil {
		return nil, err
	}
	unknown, err := ole.GetActiveObject(clsid, nil)
	if err != nil {
		return nil, err
	}
	defer unknown.Release()
	return unknown.QueryInterface(ole.IID_IDispatch)
}

func connectionCount(engine *ole.IDispatch) int {
	v, err := oleutil.GetProperty(engine, "Connections")
	if err != nil {
		return 0
	}
	conns := v.ToIDispatch()
	if conns == nil {
		return 0
	}
	defer conns.Release()
	return intProp(conns, "Count")
}

func collectionItem(parent *ole.IDispatch, name string, index int) (*ole.IDispatch, error) {
	v, err := oleutil.GetProperty(parent, name)
	if err != nil {
		return nil, fmt.Errorf("olegui: %s: %w", name, err)
	}
	col := v.ToIDispatch()
	if col == nil {
		return nil, fmt.Errorf("olegui: %s collection unavailable", name)
	}
	defer col.Release()

	itemVar, err := oleutil.CallMethod(col, "ElementAt", index)
	if err != nil {
		return nil, fmt.Errorf("olegui: %s(%d): %w", name, index, err)
	}
	item := itemVar.ToIDispatch()
	if item == nil {
		return nil, fmt.Errorf("olegui: %s(%d) unavailable", name, index)
	}
	return item, nil
}
