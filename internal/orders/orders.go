// Package orders drives the sales order change transaction to amend
// credit memo requests: invoice printing, approver partners and file
// attachments.
package orders

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"agreement-closing/internal/sapgui"
)

const (
	transactionCode = "VA02"

	orderNumberField   = "VBAK-VBELN"
	searchButton       = "BT_SUCH"
	headerButton       = "BT_HEAD"
	headerTabStrip     = "TAXI_TABSTRIP_HEAD"
	billingTab         = "Billing Document"
	partnersTab        = "Partners"
	manualInvoiceField = "VBKD-MRNKZ"
	partnersTableName  = "SAPLV09CGV_TC_PARTNER_OVERVIEW"

	servicesToolbarID = "titl/shellcont/shell"
	gosToolboxButton  = "%GOS_TOOLBOX"
	gosAttachItem     = "%GOS_PCATTA_CREA"

	// Columns of the partner overview table.
	partnerFunctionColumn = 0
	partnerNumberColumn   = 1

	// Upper bound for draining stacked dialogs after opening an order.
	maxDialogDrain = 8
)

var (
	// ErrAuthorizationMissing indicates the user may not maintain the order.
	ErrAuthorizationMissing = errors.New("orders: no authorization for maintaining the order")
	// ErrInvalidOrderNumber indicates an order number without 9 digits.
	ErrInvalidOrderNumber = errors.New("orders: order number must have 9 digits")
	// ErrInvalidApproverID indicates an approver id without 8 digits.
	ErrInvalidApproverID = errors.New("orders: approver id must have 8 digits")
	// ErrAttachmentMissing indicates the file to attach does not exist.
	ErrAttachmentMissing = errors.New("orders: attachment file does not exist")
)

// Options describes the order fields to change. Unset fields leave the
// corresponding order setting untouched.
type Options struct {
	// PrintInvoice enables or disables invoice printing; nil keeps the
	// original setting.
	PrintInvoice *bool
	// Approvers are appended to the partner list in the given order,
	// each an 8-digit user id. Fewer than two entries means nothing to
	// add.
	Approvers []string
	// AttachmentPath names a file to attach to the order.
	AttachmentPath string
}

func (o Options) empty() bool {
	return o.PrintInvoice == nil && len(o.Approvers) == 0 && o.AttachmentPath == ""
}

// Session drives the order change transaction over a GUI scripting
// handle. The handle is bound with Start and released with Close; both
// are idempotent. A Session is not safe for concurrent use.
type Session struct {
	logger    *log.Logger
	sess      sapgui.Session
	mainWnd   sapgui.Element
	statusBar sapgui.Element
	userArea  sapgui.Element
}

// New constructs an unbound order change session.
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
		return fmt.Errorf("orders: main window: %w", err)
	}
	statusBar, err := mainWnd.FindByID("sbar")
	if err != nil {
		return fmt.Errorf("orders: status bar: %w", err)
	}
	userArea, err := mainWnd.FindByID("usr")
	if err != nil {
		return fmt.Errorf("orders: user area: %w", err)
	}
	if err := handle.StartTransaction(transactionCode); err != nil {
		return fmt.Errorf("orders: start %s: %w", transactionCode, err)
	}

	s.sess = handle
	s.mainWnd = mainWnd
	s.statusBar = statusBar
	s.userArea = userArea
	return s.clearInput()
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
	s.statusBar = nil
	s.userArea = nil
	return err
}

// ChangeSalesOrder amends an order. With empty Options the call is a
// no-op after validating the order number.
func (s *Session) ChangeSalesOrder(num int, opts Options) error {
	if s.sess == nil {
		return sapgui.ErrTransactionClosed
	}
	if !validOrderNumber(num) {
		return fmt.Errorf("%w: %d", ErrInvalidOrderNumber, num)
	}
	if opts.empty() {
		return nil
	}
	for _, id := range opts.Approvers {
		if !validApproverID(id) {
			return fmt.Errorf("%w: %q", ErrInvalidApproverID, id)
		}
	}

	if err := s.openOrder(num); err != nil {
		return err
	}
	if opts.PrintInvoice != nil {
		if err := s.toggleInvoicePrinting(*opts.PrintInvoice); err != nil {
			return err
		}
	}
	if len(opts.Approvers) > 1 {
		if err := s.addApprovers(opts.Approvers); err != nil {
			return err
		}
	}
	if opts.AttachmentPath != "" {
		if err := s.attachFile(opts.AttachmentPath); err != nil {
			return err
		}
	}
	return s.pressSave()
}

// PrintingStatus reports whether invoice printing is disabled for the
// order. The underlying checkbox flags manual invoice processing, so a
// selected box means printing is off.
func (s *Session) PrintingStatus(num int) (bool, error) {
	if s.sess == nil {
		return false, sapgui.ErrTransactionClosed
	}
	if err := s.openOrder(num); err != nil {
		return false, err
	}
	box, err := s.manualInvoiceBox()
	if err != nil {
		return false, err
	}
	checked, err := box.Selected()
	if err != nil {
		return false, err
	}
	if err := s.pressCancel(); err != nil {
		return false, err
	}
	return checked, nil
}

func (s *Session) openOrder(num int) error {
	if err := s.setOrderNumber(strconv.Itoa(num)); err != nil {
		return err
	}
	if err := s.pressSearch(); err != nil {
		return err
	}

	if sapgui.IsModalOpen(s.sess, "is marked for deletion") {
		if err := sapgui.CloseDialog(s.sess, true); err != nil {
			return err
		}
	}
	if s.isError("No authorization for maintaining") {
		return fmt.Errorf("%w: %s", ErrAuthorizationMissing, s.statusBar.Text())
	}
	if s.isError("") {
		return fmt.Errorf("orders: open order %d: %s", num, s.statusBar.Text())
	}

	// Blocked orders stack benign dialogs over the overview; anything
	// unrecognized aborts the amendment.
	for i := 0; i < maxDialogDrain && sapgui.IsModalOpen(s.sess, ""); i++ {
		switch {
		case sapgui.IsModalOpen(s.sess, "Order is blocked. Please check status details"),
			sapgui.IsModalOpen(s.sess, "has delivery block"):
			if err := sapgui.CloseDialog(s.sess, true); err != nil {
				return err
			}
		default:
			return fmt.Errorf("orders: unexpected dialog: %s", sapgui.CurrentDialog(s.sess).Text)
		}
	}
	return nil
}

// The checkbox flags manual invoice processing, the inverse of printing.
func (s *Session) toggleInvoicePrinting(enabled bool) error {
	box, err := s.manualInvoiceBox()
	if err != nil {
		return err
	}
	return box.SetSelected(!enabled)
}

func (s *Session) manualInvoiceBox() (sapgui.Toggleable, error) {
	if err := s.displayHeaderDetails(); err != nil {
		return nil, err
	}
	tab, err := s.headerTab(billingTab)
	if err != nil {
		return nil, err
	}
	if err := tab.Select(); err != nil {
		return nil, err
	}
	box, err := tab.FindByName(manualInvoiceField, "GuiCheckBox")
	if err != nil {
		return nil, fmt.Errorf("orders: invoice checkbox: %w", err)
	}
	toggle, ok := box.(sapgui.Toggleable)
	if !ok {
		return nil, fmt.Errorf("orders: element %s is not a checkbox", manualInvoiceField)
	}
	return toggle, nil
}

func (s *Session) addApprovers(ids []string) error {
	if err := s.displayHeaderDetails(); err != nil {
		return err
	}
	tab, err := s.headerTab(partnersTab)
	if err != nil {
		return err
	}
	if err := tab.Select(); err != nil {
		return err
	}
	for nth, id := range ids {
		if err := s.addPartner(fmt.Sprintf("Y%d", nth+1), id); err != nil {
			return err
		}
	}
	return nil
}

// addPartner writes one partner row to the first free slot of the
// overview table. The table is looked up per entry; its control refreshes
// after every edit.
func (s *Session) addPartner(function, id string) error {
	tableEl, err := s.mainWnd.FindByName(partnersTableName, "GuiTableControl")
	if err != nil {
		return fmt.Errorf("orders: partner table: %w", err)
	}
	table, ok := tableEl.(sapgui.Table)
	if !ok {
		return fmt.Errorf("orders: element %s is not a table", partnersTableName)
	}

	row := -1
	for idx := 0; idx < table.RowCount(); idx++ {
		cell, err := table.Cell(idx, partnerNumberColumn)
		if err != nil {
			return err
		}
		if cell.Text() == "" {
			row = idx
			break
		}
	}
	if row < 0 {
		return errors.New("orders: no free partner row")
	}

	funcCell, err := table.Cell(row, partnerFunctionColumn)
	if err != nil {
		return err
	}
	keyed, ok := funcCell.(sapgui.Keyed)
	if !ok {
		return fmt.Errorf("orders: partner function cell (%d,%d) is not a combo box", row, partnerFunctionColumn)
	}
	if err := keyed.SetKey(function); err != nil {
		return err
	}
	idCell, err := table.Cell(row, partnerNumberColumn)
	if err != nil {
		return err
	}
	return idCell.SetText(id)
}

// attachFile adds a file to the order through the object services
// toolbox. Pending changes are saved before any attachment error is
// reported so a failed attachment never discards them.
func (s *Session) attachFile(path string) error {
	dir, name := filepath.Split(path)
	if _, err := os.Stat(path); err != nil {
		if serr := s.pressSave(); serr != nil {
			return serr
		}
		return fmt.Errorf("%w: %s", ErrAttachmentMissing, path)
	}

	shell, err := s.mainWnd.FindByID(servicesToolbarID)
	if err != nil {
		return s.attachmentToolboxFailed(err)
	}
	toolbox, ok := shell.(sapgui.ContextMenu)
	if !ok {
		return s.attachmentToolboxFailed(fmt.Errorf("element %s has no context toolbox", servicesToolbarID))
	}
	if err := toolbox.PressContextButton(gosToolboxButton); err != nil {
		return s.attachmentToolboxFailed(err)
	}
	if err := toolbox.SelectContextMenuItem(gosAttachItem); err != nil {
		return s.attachmentToolboxFailed(err)
	}

	dialog, err := s.sess.FindByID("wnd[1]")
	if err != nil {
		return s.attachmentToolboxFailed(err)
	}
	dirField, err := dialog.FindByID("usr/ctxtDY_PATH")
	if err != nil {
		return s.attachmentToolboxFailed(err)
	}
	if err := dirField.SetText(dir); err != nil {
		return err
	}
	nameField, err := dialog.FindByID("usr/ctxtDY_FILENAME")
	if err != nil {
		return s.attachmentToolboxFailed(err)
	}
	if err := nameField.SetText(name); err != nil {
		return err
	}
	return dialog.SendVKey(sapgui.VKeyEnter)
}

func (s *Session) attachmentToolboxFailed(cause error) error {
	if err := s.pressSave(); err != nil {
		return err
	}
	return fmt.Errorf("orders: failed to open the attachments list, pending changes were saved: %w", cause)
}

func (s *Session) displayHeaderDetails() error {
	button, err := s.userArea.FindByName(headerButton, sapgui.TypeButton)
	if errors.Is(err, sapgui.ErrNotFound) {
		// Header details are already displayed.
		return nil
	}
	if err != nil {
		return err
	}
	return button.Press()
}

func (s *Session) headerTab(name string) (sapgui.Element, error) {
	strip, err := s.userArea.FindByName(headerTabStrip, "GuiTabStrip")
	if err != nil {
		return nil, fmt.Errorf("orders: header tab strip: %w", err)
	}
	for _, tab := range strip.Children() {
		if tab.Text() == name {
			return tab, nil
		}
	}
	return nil, fmt.Errorf("%w: header tab %q", sapgui.ErrNotFound, name)
}

func (s *Session) isError(substr string) bool {
	if sapgui.MessageType(s.statusBar) != "E" {
		return false
	}
	return substr == "" || strings.Contains(s.statusBar.Text(), substr)
}

func (s *Session) setOrderNumber(value string) error {
	field, err := s.mainWnd.FindByName(orderNumberField, "GuiCTextField")
	if err != nil {
		return fmt.Errorf("orders: order number field: %w", err)
	}
	return field.SetText(value)
}

func (s *Session) clearInput() error {
	return s.setOrderNumber("")
}

func (s *Session) pressSearch() error {
	button, err := s.mainWnd.FindByName(searchButton, sapgui.TypeButton)
	if err != nil {
		return fmt.Errorf("orders: search button: %w", err)
	}
	return button.Press()
}

func (s *Session) pressSave() error   { return s.mainWnd.SendVKey(sapgui.VKeySave) }
func (s *Session) pressCancel() error { return s.mainWnd.SendVKey(sapgui.VKeyCancel) }

func (s *Session) printf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func validOrderNumber(num int) bool {
	return num >= 100000000 && num <= 999999999
}

func validApproverID(id string) bool {
	if len(id) != 8 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
