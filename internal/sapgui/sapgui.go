// Package sapgui abstracts the vendor GUI scripting object model behind
// narrow interfaces, so transaction sessions can be driven in production
// through COM and exercised in tests through fakes.
package sapgui

import "errors"

// ErrNotFound indicates a missing GUI element.
var ErrNotFound = errors.New("sapgui: element not found")

// ErrUnboundSession indicates a nil scripting handle.
var ErrUnboundSession = errors.New("sapgui: session handle is unbound")

// ErrTransactionClosed indicates an operation on a transaction session
// that is not running.
var ErrTransactionClosed = errors.New("sapgui: transaction is not running")

// Virtual key codes accepted by window elements.
const (
	VKeyEnter  = 0  // Enter
	VKeyBack   = 3  // F3
	VKeySave   = 11 // Ctrl+S
	VKeyCancel = 12 // F12
)

// Scripting type names of elements the sessions interact with.
const (
	TypeModalWindow = "GuiModalWindow"
	TypeButton      = "GuiButton"
	TypeLabel       = "GuiLabel"
)

// Session is a live scripting session of the GUI frontend.
type Session interface {
	// FindByID resolves an element by its absolute scripting path,
	// e.g. "wnd[0]/sbar". Returns ErrNotFound when the path does not
	// resolve.
	FindByID(id string) (Element, error)
	// ActiveWindow returns the window currently holding focus, which is
	// the modal dialog when one is open. A nil return means the session
	// has no windows.
	ActiveWindow() Element
	StartTransaction(code string) error
	EndTransaction() error
}

// Element is a node of the GUI control tree. Scalar reads return zero
// values when the underlying scripting call fails; actions report their
// failure.
type Element interface {
	ID() string
	Type() string
	Text() string
	SetText(value string) error
	Press() error
	Select() error
	SendVKey(key int) error
	Children() []Element
	FindByID(id string) (Element, error)
	FindByName(name, typ string) (Element, error)
	FindAllByName(name, typ string) ([]Element, error)
}

// Toggleable is implemented by checkbox-like elements.
type Toggleable interface {
	Selected() (bool, error)
	SetSelected(selected bool) error
}

// Keyed is implemented by combo cells whose value is set through a key.
type Keyed interface {
	SetKey(key string) error
}

// Colored exposes the display color attributes of label elements.
type Colored interface {
	ColorIndex() int
	ColorIntensified() bool
}

// StatusBar exposes the message classification of the status bar.
type StatusBar interface {
	// MessageType is one of "S", "I", "W", "E" or "A"; empty when no
	// message is shown.
	MessageType() string
}

// Scrollable is implemented by containers with a vertical scrollbar.
type Scrollable interface {
	ScrollToBottom() error
}

// Table is the classic table control: cells addressed by row and column
// index, columns carrying technical names.
type Table interface {
	RowCount() int
	VisibleRowCount() int
	ColumnNames() []string
	Cell(row, column int) (Element, error)
}

// Grid is the ALV-style grid shell: cells addressed by row index and
// column technical name.
type Grid interface {
	RowCount() int
	CellValue(row int, column string) (string, error)
	SelectRow(row int) error
	SetCurrentCell(row int, column string) error
	DoubleClickCurrentCell() error
}

// Tree is the column tree shell used by document flow displays. Nodes are
// addressed by opaque string keys.
type Tree interface {
	TopNode() (string, error)
	ItemText(nodeKey, column string) (string, error)
	SubNodes(nodeKey string) ([]string, error)
	// NextNodeKey returns the following sibling, or ErrNotFound when the
	// node is the last of its level.
	NextNodeKey(nodeKey string) (string, error)
}

// EventTarget is implemented by shells that accept scripted events.
type EventTarget interface {
	SapEvent(frame, query, id string) error
}

// ContextMenu is implemented by shells with a context toolbox.
type ContextMenu interface {
	PressContextButton(id string) error
	SelectContextMenuItem(id string) error
}

// MessageType reads the status classification of el, returning "" when el
// does not expose one.
func MessageType(el Element) string {
	sb, ok := el.(StatusBar)
	if !ok {
		return ""
	}
	return sb.MessageType()
}
