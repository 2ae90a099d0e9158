package olegui

import (
	"fmt"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"agreement-closing/internal/sapgui"
)

// session adapts a GuiSession dispatch to sapgui.Session.
type session struct {
	disp *ole.IDispatch
}

var _ sapgui.Session = (*session)(nil)

func (s *session) FindByID(id string) (sapgui.Element, error) {
	return findByID(s.disp, id)
}

func (s *session) ActiveWindow() sapgui.Element {
	v, err := oleutil.GetProperty(s.disp, "ActiveWindow")
	if err != nil {
		return nil
	}
	disp := v.ToIDispatch()
	if disp == nil {
		return nil
	}
	return &element{disp: disp}
}

func (s *session) StartTransaction(code string) error {
	_, err := oleutil.CallMethod(s.disp, "StartTransaction", code)
	return err
}

func (s *session) EndTransaction() error {
	_, err := oleutil.CallMethod(s.disp, "EndTransaction")
	return err
}

func findByID(disp *ole.IDispatch, id string) (sapgui.Element, error) {
	v, err := oleutil.CallMethod(disp, "FindById", id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sapgui.ErrNotFound, id)
	}
	found := v.ToIDispatch()
	if found == nil {
		return nil, fmt.Errorf("%w: %s", sapgui.ErrNotFound, id)
	}
	return &element{disp: found}, nil
}
