// Package sapguitest provides scriptable fakes for the sapgui interfaces.
// A fake Session resolves absolute paths through a registry filled with
// Add, while Children and FindByName walk the Kids tree of each element.
// Hooks let tests mutate state mid-flow, e.g. opening a dialog when a
// virtual key arrives.
package sapguitest

import (
	"fmt"

	"agreement-closing/internal/sapgui"
)

// Element is a scriptable GUI element. Zero values behave like an inert
// control; hooks override the recorded default behavior.
type Element struct {
	Path        string
	Name        string
	Kind        string
	Value       string
	Checked     bool
	KeyValue    string
	Color       int
	Intensified bool
	MsgType     string
	Kids        []sapgui.Element

	Pressed     int
	SelectCalls int
	VKeys       []int
	Scrolls     int
	Events      []string
	CtxButtons  []string
	CtxItems    []string

	OnPress       func() error
	OnSelect      func() error
	OnSetText     func(value string) error
	OnVKey        func(key int) error
	OnSapEvent    func(frame, query, id string) error
	OnCtxButton   func(id string) error
	OnCtxMenuItem func(id string) error

	sess *Session
}

func (e *Element) ID() string   { return e.Path }
func (e *Element) Type() string { return e.Kind }
func (e *Element) Text() string { return e.Value }

func (e *Element) SetText(value string) error {
	if e.OnSetText != nil {
		if err := e.OnSetText(value); err != nil {
			return err
		}
	}
	e.Value = value
	return nil
}

func (e *Element) Press() error {
	e.Pressed++
	if e.OnPress != nil {
		return e.OnPress()
	}
	return nil
}

func (e *Element) Select() error {
	e.SelectCalls++
	if e.OnSelect != nil {
		return e.OnSelect()
	}
	return nil
}

func (e *Element) SendVKey(key int) error {
	e.VKeys = append(e.VKeys, key)
	if e.OnVKey != nil {
		return e.OnVKey(key)
	}
	return nil
}

func (e *Element) Children() []sapgui.Element { return e.Kids }

func (e *Element) FindByID(id string) (sapgui.Element, error) {
	if e.sess == nil {
		return nil, fmt.Errorf("%w: %s/%s", sapgui.ErrNotFound, e.Path, id)
	}
	return e.sess.FindByID(e.Path + "/" + id)
}

func (e *Element) FindByName(name, typ string) (sapgui.Element, error) {
	found := findAll(e, name, typ, true)
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: name %q type %q", sapgui.ErrNotFound, name, typ)
	}
	return found[0], nil
}

func (e *Element) FindAllByName(name, typ string) ([]sapgui.Element, error) {
	return findAll(e, name, typ, false), nil
}

// findAll walks the Kids tree collecting elements of the wanted type. An
// empty name matches any element of the type.
func findAll(root sapgui.Element, name, typ string, firstOnly bool) []sapgui.Element {
	var out []sapgui.Element
	var walk func(el sapgui.Element) bool
	walk = func(el sapgui.Element) bool {
		base, ok := el.(interface {
			matches(name, typ string) bool
		})
		if ok && base.matches(name, typ) {
			out = append(out, el)
			if firstOnly {
				return true
			}
		}
		for _, kid := range el.Children() {
			if walk(kid) {
				return true
			}
		}
		return false
	}
	walk(root)
	return out
}

func (e *Element) matches(name, typ string) bool {
	if e.Kind != typ {
		return false
	}
	return name == "" || e.Name == name
}

// Toggleable.
func (e *Element) Selected() (bool, error) { return e.Checked, nil }
func (e *Element) SetSelected(selected bool) error {
	e.Checked = selected
	return nil
}

// Keyed.
func (e *Element) SetKey(key string) error {
	e.KeyValue = key
	return nil
}

// Colored.
func (e *Element) ColorIndex() int        { return e.Color }
func (e *Element) ColorIntensified() bool { return e.Intensified }

// StatusBar.
func (e *Element) MessageType() string { return e.MsgType }

// Scrollable.
func (e *Element) ScrollToBottom() error {
	e.Scrolls++
	return nil
}

// EventTarget.
func (e *Element) SapEvent(frame, query, id string) error {
	e.Events = append(e.Events, id)
	if e.OnSapEvent != nil {
		return e.OnSapEvent(frame, query, id)
	}
	return nil
}

// ContextMenu.
func (e *Element) PressContextButton(id string) error {
	e.CtxButtons = append(e.CtxButtons, id)
	if e.OnCtxButton != nil {
		return e.OnCtxButton(id)
	}
	return nil
}

func (e *Element) SelectContextMenuItem(id string) error {
	e.CtxItems = append(e.CtxItems, id)
	if e.OnCtxMenuItem != nil {
		return e.OnCtxMenuItem(id)
	}
	return nil
}

func (e *Element) attach(s *Session) {
	e.sess = s
	for _, kid := range e.Kids {
		if a, ok := kid.(attacher); ok {
			a.attach(s)
		}
	}
}

type attacher interface{ attach(s *Session) }

// Grid is a fake ALV grid shell.
type Grid struct {
	Element
	Rows        []map[string]string
	SelectedRow int
	CurrentRow  int
	CurrentCol  string
	DblClicks   int

	OnCellValue func(row int, column string) (string, error)
	OnSelectRow func(row int) error
	OnDblClick  func() error
}

func (g *Grid) RowCount() int { return len(g.Rows) }

func (g *Grid) CellValue(row int, column string) (string, error) {
	if g.OnCellValue != nil {
		return g.OnCellValue(row, column)
	}
	if row < 0 || row >= len(g.Rows) {
		return "", fmt.Errorf("%w: grid row %d", sapgui.ErrNotFound, row)
	}
	return g.Rows[row][column], nil
}

func (g *Grid) SelectRow(row int) error {
	g.SelectedRow = row
	if g.OnSelectRow != nil {
		return g.OnSelectRow(row)
	}
	return nil
}

func (g *Grid) SetCurrentCell(row int, column string) error {
	g.CurrentRow = row
	g.CurrentCol = column
	return nil
}

func (g *Grid) DoubleClickCurrentCell() error {
	g.DblClicks++
	if g.OnDblClick != nil {
		return g.OnDblClick()
	}
	return nil
}

// Table is a fake classic table control.
type Table struct {
	Element
	Columns []string
	Cells   [][]*Element
	Visible int
}

func (t *Table) RowCount() int { return len(t.Cells) }

func (t *Table) VisibleRowCount() int {
	if t.Visible > 0 {
		return t.Visible
	}
	return len(t.Cells)
}

func (t *Table) ColumnNames() []string { return t.Columns }

func (t *Table) Cell(row, column int) (sapgui.Element, error) {
	if row < 0 || row >= len(t.Cells) || column < 0 || column >= len(t.Cells[row]) {
		return nil, fmt.Errorf("%w: table cell (%d,%d)", sapgui.ErrNotFound, row, column)
	}
	return t.Cells[row][column], nil
}

// Tree is a fake column tree shell.
type Tree struct {
	Element
	Top      string
	Texts    map[string]string
	Branches map[string][]string
	Siblings map[string]string
}

func (t *Tree) TopNode() (string, error) {
	if t.Top == "" {
		return "", fmt.Errorf("%w: tree has no top node", sapgui.ErrNotFound)
	}
	return t.Top, nil
}

func (t *Tree) ItemText(nodeKey, column string) (string, error) {
	text, ok := t.Texts[nodeKey]
	if !ok {
		return "", fmt.Errorf("%w: tree node %q", sapgui.ErrNotFound, nodeKey)
	}
	return text, nil
}

func (t *Tree) SubNodes(nodeKey string) ([]string, error) {
	return t.Branches[nodeKey], nil
}

func (t *Tree) NextNodeKey(nodeKey string) (string, error) {
	next, ok := t.Siblings[nodeKey]
	if !ok {
		return "", fmt.Errorf("%w: no sibling after %q", sapgui.ErrNotFound, nodeKey)
	}
	return next, nil
}

// NewDialog builds a modal window with the toolbar-and-text layout of
// transaction dialogs.
func NewDialog(title string, lines ...string) *Element {
	var labels []sapgui.Element
	for _, line := range lines {
		labels = append(labels, &Element{Kind: sapgui.TypeLabel, Value: line})
	}
	return &Element{
		Path:  "wnd[1]",
		Kind:  sapgui.TypeModalWindow,
		Value: title,
		Kids: []sapgui.Element{
			&Element{Kind: "GuiToolbar"},
			&Element{Kind: "GuiSimpleContainer", Kids: labels},
		},
	}
}

// Session is a fake scripting session backed by a path registry.
type Session struct {
	Registry     map[string]sapgui.Element
	Active       sapgui.Element
	Transactions []string
	EndCalls     int

	OnStartTransaction func(code string) error
	OnEndTransaction   func() error
}

// NewSession returns an empty fake session.
func NewSession() *Session {
	return &Session{Registry: make(map[string]sapgui.Element)}
}

// Add registers el under its Path and attaches it, and its Kids tree, to
// the session so relative FindByID works.
func (s *Session) Add(el sapgui.Element) {
	s.Registry[el.ID()] = el
	if a, ok := el.(attacher); ok {
		a.attach(s)
	}
}

func (s *Session) FindByID(id string) (sapgui.Element, error) {
	el, ok := s.Registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sapgui.ErrNotFound, id)
	}
	return el, nil
}

func (s *Session) ActiveWindow() sapgui.Element { return s.Active }

func (s *Session) StartTransaction(code string) error {
	s.Transactions = append(s.Transactions, code)
	if s.OnStartTransaction != nil {
		return s.OnStartTransaction(code)
	}
	return nil
}

func (s *Session) EndTransaction() error {
	s.EndCalls++
	if s.OnEndTransaction != nil {
		return s.OnEndTransaction()
	}
	return nil
}

// OpenInfoDialog puts an Information dialog on the session; any virtual
// key dismisses it.
func (s *Session) OpenInfoDialog(lines ...string) *Element {
	w := NewDialog("Information", lines...)
	w.OnVKey = func(int) error {
		s.Active = nil
		return nil
	}
	s.Active = w
	return w
}

// OpenDecisionDialog puts a Yes/No dialog on the session; pressing
// either button dismisses it.
func (s *Session) OpenDecisionDialog(title string, lines ...string) (w, yes, no *Element) {
	w = NewDialog(title, lines...)
	yes = &Element{Kind: sapgui.TypeButton, Value: "Yes"}
	no = &Element{Kind: sapgui.TypeButton, Value: "No"}
	yes.OnPress = func() error {
		s.Active = nil
		return nil
	}
	no.OnPress = func() error {
		s.Active = nil
		return nil
	}
	w.Kids = append(w.Kids, &Element{Kind: "GuiToolbar", Kids: []sapgui.Element{no, yes}})
	s.Active = w
	return w, yes, no
}
