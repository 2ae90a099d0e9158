// Package workflow drives the business workplace transaction to approve
// credit memo requests pending in the workflow inbox.
package workflow

import (
	"fmt"
	"log"
	"strings"

	"agreement-closing/internal/sapgui"
)

const (
	transactionCode = "SO01"

	itemTableID    = "cntlSINWP_CONTAINER/shellcont/shell/shellcont[1]/shell/shellcont[0]/shell"
	decisionStepID = "cntlSWU20300CONTAINER/shellcont/shell"
	titleColumn    = "OBJDES"

	// First decision option of the workflow step, the approval.
	approveEvent = "sapevent:DECI:0002"
	// Z1 marks the decision as approved in the reason prompt.
	approvedReason = "Z1"

	maxDialogDrain = 8
)

// Session drives the workplace inbox over a GUI scripting handle. The
// handle is bound with Start and released with Close; both are
// idempotent. A Session is not safe for concurrent use.
type Session struct {
	logger   *log.Logger
	sess     sapgui.Session
	mainWnd  sapgui.Element
	userArea sapgui.Element
}

// New constructs an unbound workplace session.
func New(logger *log.Logger) *Session {
	return &Session{logger: logger}
}

// Start binds the scripting handle and starts the transaction. Starting
// an already running session is a no-op.
func (s *Session) Start(handle sapgui.Session) error {
	if s.sess != nil {
		return nil
	}
	if handle == nil {
		return sapgui.ErrUnboundSession
	}
	s.printf("starting transaction %s", transactionCode)

	mainWnd, err := handle.FindByID("wnd[0]")
	if err != nil {
		return fmt.Errorf("workflow: main window: %w", err)
	}
	userArea, err := mainWnd.FindByID("usr")
	if err != nil {
		return fmt.Errorf("workflow: user area: %w", err)
	}
	if err := handle.StartTransaction(transactionCode); err != nil {
		return fmt.Errorf("workflow: start %s: %w", transactionCode, err)
	}

	s.sess = handle
	s.mainWnd = mainWnd
	s.userArea = userArea
	return nil
}

// Close ends the transaction and unbinds the handle. Closing a session
// that is not running is a no-op.
func (s *Session) Close() error {
	if s.sess == nil {
		return nil
	}
	s.printf("closing transaction %s", transactionCode)
	err := s.sess.EndTransaction()
	if sapgui.IsModalOpen(s.sess, "") {
		if cerr := sapgui.CloseDialog(s.sess, true); err == nil {
			err = cerr
		}
	}
	s.sess = nil
	s.mainWnd = nil
	s.userArea = nil
	return err
}

// ItemTable returns the workflow inbox item list.
func (s *Session) ItemTable() (sapgui.Grid, error) {
	if s.sess == nil {
		return nil, sapgui.ErrTransactionClosed
	}
	el, err := s.userArea.FindByID(itemTableID)
	if err != nil {
		return nil, fmt.Errorf("workflow: item list: %w", err)
	}
	grid, ok := el.(sapgui.Grid)
	if !ok {
		return nil, fmt.Errorf("workflow: element %s is not a grid", itemTableID)
	}
	return grid, nil
}

// ProcessItem approves the first inbox item whose title contains keyword
// and reports whether one matched. The list populates titles lazily, so
// rows with a blank title are selected once to realize their text before
// the comparison.
func (s *Session) ProcessItem(items sapgui.Grid, keyword string) (bool, error) {
	if s.sess == nil {
		return false, sapgui.ErrTransactionClosed
	}
	for row := 0; row < items.RowCount(); row++ {
		title, err := items.CellValue(row, titleColumn)
		if err != nil {
			return false, err
		}
		if title == "" {
			if err := items.SelectRow(row); err != nil {
				return false, err
			}
			if err := items.SetCurrentCell(row, titleColumn); err != nil {
				return false, err
			}
			title, err = items.CellValue(row, titleColumn)
			if err != nil {
				return false, err
			}
		}
		if !strings.Contains(title, keyword) {
			continue
		}

		if err := items.SelectRow(row); err != nil {
			return false, err
		}
		if err := items.SetCurrentCell(row, titleColumn); err != nil {
			return false, err
		}
		if err := items.DoubleClickCurrentCell(); err != nil {
			return false, err
		}
		if err := s.approve(); err != nil {
			return false, err
		}
		s.printf("Item %q approved.", title)
		return true, nil
	}
	return false, nil
}

func (s *Session) approve() error {
	stepEl, err := s.userArea.FindByID(decisionStepID)
	if err != nil {
		return fmt.Errorf("workflow: decision step: %w", err)
	}
	step, ok := stepEl.(sapgui.EventTarget)
	if !ok {
		return fmt.Errorf("workflow: element %s accepts no events", decisionStepID)
	}
	if err := step.SapEvent("", "", approveEvent); err != nil {
		return err
	}
	return s.setDecisionReason(approvedReason)
}

// setDecisionReason fills the reason prompt raised by the decision and
// confirms any follow-up dialogs.
func (s *Session) setDecisionReason(code string) error {
	dialog, err := s.sess.FindByID("wnd[1]")
	if err != nil {
		return fmt.Errorf("workflow: reason prompt: %w", err)
	}
	field, err := dialog.FindByID("usr/ctxtRGTOOLS-FIELD")
	if err != nil {
		return fmt.Errorf("workflow: reason field: %w", err)
	}
	if err := field.SetText(code); err != nil {
		return err
	}
	if err := dialog.SendVKey(sapgui.VKeyEnter); err != nil {
		return err
	}
	for i := 0; i < maxDialogDrain && sapgui.IsModalOpen(s.sess, ""); i++ {
		if err := sapgui.CloseDialog(s.sess, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) printf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
