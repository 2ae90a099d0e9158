package olegui

import (
	"fmt"
	"strconv"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"agreement-closing/internal/sapgui"
)

// element adapts a GuiComponent dispatch to sapgui.Element. The COM
// object model is dynamically typed, so one adapter carries every
// optional interface; calls a component does not support fail through
// the scripting engine.
type element struct {
	disp *ole.IDispatch
}

var (
	_ sapgui.Element     = (*element)(nil)
	_ sapgui.Toggleable  = (*element)(nil)
	_ sapgui.Keyed       = (*element)(nil)
	_ sapgui.Colored     = (*element)(nil)
	_ sapgui.StatusBar   = (*element)(nil)
	_ sapgui.Scrollable  = (*element)(nil)
	_ sapgui.Table       = (*element)(nil)
	_ sapgui.Grid        = (*element)(nil)
	_ sapgui.Tree        = (*element)(nil)
	_ sapgui.EventTarget = (*element)(nil)
	_ sapgui.ContextMenu = (*element)(nil)
)

func (e *element) ID() string   { return strProp(e.disp, "Id") }
func (e *element) Type() string { return strProp(e.disp, "Type") }
func (e *element) Text() string { return strProp(e.disp, "Text") }

func (e *element) SetText(value string) error {
	_, err := oleutil.PutProperty(e.disp, "Text", value)
	return err
}

func (e *element) Press() error {
	_, err := oleutil.CallMethod(e.disp, "Press")
	return err
}

func (e *element) Select() error {
	_, err := oleutil.CallMethod(e.disp, "Select")
	return err
}

func (e *element) SendVKey(key int) error {
	_, err := oleutil.CallMethod(e.disp, "SendVKey", key)
	return err
}

func (e *element) Children() []sapgui.Element {
	v, err := oleutil.GetProperty(e.disp, "Children")
	if err != nil {
		return nil
	}
	return collectionElements(v.ToIDispatch())
}

func (e *element) FindByID(id string) (sapgui.Element, error) {
	return findByID(e.disp, id)
}

func (e *element) FindByName(name, typ string) (sapgui.Element, error) {
	v, err := oleutil.CallMethod(e.disp, "FindByName", name, typ)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%s)", sapgui.ErrNotFound, name, typ)
	}
	found := v.ToIDispatch()
	if found == nil {
		return nil, fmt.Errorf("%w: %s (%s)", sapgui.ErrNotFound, name, typ)
	}
	return &element{disp: found}, nil
}

func (e *element) FindAllByName(name, typ string) ([]sapgui.Element, error) {
	v, err := oleutil.CallMethod(e.disp, "FindAllByName", name, typ)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%s)", sapgui.ErrNotFound, name, typ)
	}
	return collectionElements(v.ToIDispatch()), nil
}

func (e *element) Selected() (bool, error) {
	v, err := oleutil.GetProperty(e.disp, "Selected")
	if err != nil {
		return false, err
	}
	defer v.Clear()
	selected, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("olegui: %s carries no selection state", e.ID())
	}
	return selected, nil
}

func (e *element) SetSelected(selected bool) error {
	_, err := oleutil.PutProperty(e.disp, "Selected", selected)
	return err
}

func (e *element) SetKey(key string) error {
	_, err := oleutil.PutProperty(e.disp, "Key", key)
	return err
}

func (e *element) ColorIndex() int        { return intProp(e.disp, "ColorIndex") }
func (e *element) ColorIntensified() bool { return boolProp(e.disp, "ColorIntensified") }

func (e *element) MessageType() string { return strProp(e.disp, "MessageType") }

func (e *element) ScrollToBottom() error {
	v, err := oleutil.GetProperty(e.disp, "VerticalScrollbar")
	if err != nil {
		return err
	}
	bar := v.ToIDispatch()
	if bar == nil {
		return fmt.Errorf("olegui: %s has no vertical scrollbar", e.ID())
	}
	defer bar.Release()
	_, err = oleutil.PutProperty(bar, "Position", intProp(bar, "Maximum"))
	return err
}

func (e *element) RowCount() int        { return intProp(e.disp, "RowCount") }
func (e *element) VisibleRowCount() int { return intProp(e.disp, "VisibleRowCount") }

func (e *element) ColumnNames() []string {
	v, err := oleutil.GetProperty(e.disp, "Columns")
	if err != nil {
		return nil
	}
	cols := v.ToIDispatch()
	if cols == nil {
		return nil
	}
	defer cols.Release()

	count := intProp(cols, "Count")
	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		colVar, err := oleutil.CallMethod(cols, "ElementAt", i)
		if err != nil {
			continue
		}
		col := colVar.ToIDispatch()
		if col == nil {
			continue
		}
		names = append(names, strProp(col, "Name"))
		col.Release()
	}
	return names
}

func (e *element) Cell(row, column int) (sapgui.Element, error) {
	v, err := oleutil.CallMethod(e.disp, "GetCell", row, column)
	if err != nil {
		return nil, fmt.Errorf("%w: cell (%d, %d)", sapgui.ErrNotFound, row, column)
	}
	cell := v.ToIDispatch()
	if cell == nil {
		return nil, fmt.Errorf("%w: cell (%d, %d)", sapgui.ErrNotFound, row, column)
	}
	return &element{disp: cell}, nil
}

func (e *element) CellValue(row int, column string) (string, error) {
	v, err := oleutil.CallMethod(e.disp, "GetCellValue", row, column)
	if err != nil {
		return "", err
	}
	defer v.Clear()
	return v.ToString(), nil
}

func (e *element) SelectRow(row int) error {
	_, err := oleutil.PutProperty(e.disp, "SelectedRows", strconv.Itoa(row))
	return err
}

func (e *element) SetCurrentCell(row int, column string) error {
	_, err := oleutil.CallMethod(e.disp, "SetCurrentCell", row, column)
	return err
}

func (e *element) DoubleClickCurrentCell() error {
	_, err := oleutil.CallMethod(e.disp, "DoubleClickCurrentCell")
	return err
}

func (e *element) TopNode() (string, error) {
	v, err := oleutil.GetProperty(e.disp, "TopNode")
	if err != nil {
		return "", err
	}
	defer v.Clear()
	return v.ToString(), nil
}

func (e *element) ItemText(nodeKey, column string) (string, error) {
	v, err := oleutil.CallMethod(e.disp, "GetItemText", nodeKey, column)
	if err != nil {
		return "", err
	}
	defer v.Clear()
	return v.ToString(), nil
}

func (e *element) SubNodes(nodeKey string) ([]string, error) {
	v, err := oleutil.CallMethod(e.disp, "GetSubNodesCol", nodeKey)
	if err != nil {
		return nil, err
	}
	col := v.ToIDispatch()
	if col == nil {
		return nil, nil
	}
	defer col.Release()

	count := intProp(col, "Count")
	keys := make([]string, 0, count)
	for i := 0; i < count; i++ {
		keyVar, err := oleutil.CallMethod(col, "ElementAt", i)
		if err != nil {
			continue
		}
		keys = append(keys, keyVar.ToString())
		_ = keyVar.Clear()
	}
	return keys, nil
}

func (e *element) NextNodeKey(nodeKey string) (string, error) {
	v, err := oleutil.CallMethod(e.disp, "GetNextNodeKey", nodeKey)
	if err != nil {
		return "", err
	}
	defer v.Clear()
	key := v.ToString()
	if key == "" {
		return "", sapgui.ErrNotFound
	}
	return key, nil
}

func (e *element) SapEvent(frame, query, id string) error {
	_, err := oleutil.CallMethod(e.disp, "SapEvent", frame, query, id)
	return err
}

func (e *element) PressContextButton(id string) error {
	_, err := oleutil.CallMethod(e.disp, "PressContextButton", id)
	return err
}

func (e *element) SelectContextMenuItem(id string) error {
	_, err := oleutil.CallMethod(e.disp, "SelectContextMenuItem", id)
	return err
}

func collectionElements(disp *ole.IDispatch) []sapgui.Element {
	if disp == nil {
		return nil
	}
	defer disp.Release()

	count := intProp(disp, "Count")
	elements := make([]sapgui.Element, 0, count)
	for i := 0; i < count; i++ {
		v, err := oleutil.CallMethod(disp, "ElementAt", i)
		if err != nil {
			continue
		}
		child := v.ToIDispatch()
		if child == nil {
			continue
		}
		elements = append(elements, &element{disp: child})
	}
	return elements
}

func strProp(disp *ole.IDispatch, name string) string {
	v, err := oleutil.GetProperty(disp, name)
	if err != nil {
		return ""
	}
	defer v.Clear()
	return v.ToString()
}

func intProp(disp *ole.IDispatch, name string) int {
	v, err := oleutil.GetProperty(disp, name)
	if err != nil {
		return 0
	}
	defer v.Clear()
	switch value := v.Value().(type) {
	case int16:
		return int(value)
	case int32:
		return int(value)
	case int64:
		return int(value)
	default:
		return 0
	}
}

func boolProp(disp *ole.IDispatch, name string) bool {
	v, err := oleutil.GetProperty(disp, name)
	if err != nil {
		return false
	}
	defer v.Clear()
	value, _ := v.Value().(bool)
	return value
}
