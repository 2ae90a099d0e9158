package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"agreement-closing/internal/sapgui"
)

const (
	transactionCode = "VBO2"

	agreementNumberField = "RV13A-KNUMA_BO"
	statusField          = "usr/ctxtKONA-BOSTA"
	conditionKey         = "SalOrg/SalOff/CustHier/Usage"
	conditionsGridID     = "wnd[1]/usr/cntlCUSTOM_CONTAINER/shellcont/shell"
	conditionsTableName  = "SAPMV13ATCTRL_FAST_ENTRY"
	scalesColumn         = "RV13A-KOSTKZ"
	rebatePaymentsMenu   = "menu[3]/menu[3]"
	treeTextColumn       = "COL0"

	// Yellow labels carry the sales volume figures on the summary view.
	colorYellow = 3

	// Upper bound for draining stacked leftover dialogs.
	maxDialogDrain = 8

	defaultPollDelay = 2 * time.Second
)

// Session drives the settlement transaction over a GUI scripting handle.
// The handle is bound with Start and released with Close; both are
// idempotent. A Session is not safe for concurrent use.
type Session struct {
	logger    *log.Logger
	sess      sapgui.Session
	mainWnd   sapgui.Element
	statusBar sapgui.Element
	toolbar   sapgui.Element
	menubar   sapgui.Element
	sleep     func(time.Duration)
	pollDelay time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithSleep overrides the sleep function used while polling.
func WithSleep(fn func(time.Duration)) Option {
	return func(s *Session) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithPollDelay overrides the delay between reopen polls.
func WithPollDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollDelay = d
		}
	}
}

// New constructs an unbound settlement session.
func New(logger *log.Logger, opts ...Option) *Session {
	s := &Session{
		logger:    logger,
		sleep:     time.Sleep,
		pollDelay: defaultPollDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
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
		return fmt.Errorf("settlement: main window: %w", err)
	}
	statusBar, err := mainWnd.FindByID("sbar")
	if err != nil {
		return fmt.Errorf("settlement: status bar: %w", err)
	}
	toolbar, err := mainWnd.FindByID("tbar[1]")
	if err != nil {
		return fmt.Errorf("settlement: application toolbar: %w", err)
	}
	menubar, err := mainWnd.FindByID("mbar")
	if err != nil {
		return fmt.Errorf("settlement: menu bar: %w", err)
	}
	if err := handle.StartTransaction(transactionCode); err != nil {
		return fmt.Errorf("settlement: start %s: %w", transactionCode, err)
	}

	s.sess = handle
	s.mainWnd = mainWnd
	s.statusBar = statusBar
	s.toolbar = toolbar
	s.menubar = menubar
	s.printf("transaction %s running", transactionCode)
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
	s.statusBar = nil
	s.toolbar = nil
	s.menubar = nil
	return err
}

// SettleAgreement creates the final settlement for an open agreement.
//
// The threshold is the open accruals amount below which agreements are
// settled without checked condition scales; it is floor-clamped to 0.01.
// The returned Result carries the outcome classification; a non-nil
// error means the transaction ended in an unexpected state.
func (s *Session) SettleAgreement(ctx context.Context, num int, threshold float64, opts Options) (Result, error) {
	if s.sess == nil {
		return Result{}, sapgui.ErrTransactionClosed
	}

	var res Result
	found, err := s.find(num, opts)
	if err != nil {
		return res, err
	}

	if found.severity != SeverityInfo {
		res.Severity = found.severity
		res.Message = found.message

		if found.alreadySettled {
			docNum, docMsg, err := s.documentNumber(DocumentCreditMemo)
			if err != nil {
				return res, err
			}
			openValue, openAccruals, err := s.salesVolumes()
			if err != nil {
				return res, err
			}
			res.OpenValue = openValue
			res.OpenAccruals = openAccruals
			res.HasVolumes = true
			if docNum != 0 {
				res.DocumentType = DocumentCreditMemo
				res.DocumentNumber = docNum
			}
			res.Message = joinMessages(found.message, docMsg)
		}
		if err := s.toStartScreen(); err != nil {
			return res, err
		}
		if err := s.clearInput(); err != nil {
			return res, err
		}
		return res, nil
	}

	openValue, openAccruals, err := s.salesVolumes()
	if err != nil {
		return res, err
	}
	res.OpenValue = openValue
	res.OpenAccruals = openAccruals
	res.HasVolumes = true

	status, err := s.agreementStatus()
	if err != nil {
		return res, err
	}
	if status == "C" || status == "D" {
		docNum, docMsg, err := s.documentNumber(DocumentCreditMemo)
		if err != nil {
			return res, err
		}
		if err := s.toStartScreen(); err != nil {
			return res, err
		}
		if docNum != 0 {
			res.DocumentType = DocumentCreditMemo
			res.DocumentNumber = docNum
		}
		res.Severity = SeverityError
		res.Message = joinMessages(fmt.Sprintf(
			"The agreement status '%s' does not permit creating the final settlement!", status), docMsg)
		return res, nil
	}

	if res.OpenValue != 0 {
		if err := s.toStartScreen(); err != nil {
			return res, err
		}
		res.Severity = SeverityError
		res.Message = "Could not settle the agreement! Open value is not 0 EUR."
		return res, nil
	}

	// Cap the threshold to a valid bottom if negatives are used.
	threshold = math.Max(0.01, threshold)

	if math.Abs(res.OpenAccruals) >= threshold {
		checked, err := s.scalesChecked()
		if err != nil {
			return res, err
		}
		if !checked {
			if err := s.toStartScreen(); err != nil {
				return res, err
			}
			res.Severity = SeverityError
			res.Message = fmt.Sprintf(
				"Could not settle the agreement! The provision open value is under "+
					"the specified threshold %v EUR and scales are unchecked!", threshold)
			return res, nil
		}
	}

	if err := s.pressSettle(); err != nil {
		return res, err
	}

	if s.statusBar.Text() == "Function code cannot be selected" {
		if err := s.toStartScreen(); err != nil {
			return res, err
		}
		res.Severity = SeverityError
		res.Message = "The 'Create Final Settlement ...' button not found!"
		return res, nil
	}

	if sapgui.IsModalOpen(s.sess, "A credit memo request was created for settlement") {
		if err := sapgui.CloseDialog(s.sess, true); err != nil {
			return res, err
		}
		if err := s.pressSave(); err != nil {
			return res, err
		}
		if err := s.reopenAgreement(ctx); err != nil {
			return res, err
		}
		docNum, _, err := s.documentNumber(DocumentMemoRequest)
		if err != nil {
			return res, err
		}
		if err := s.pressCancel(); err != nil {
			return res, err
		}
		if err := s.pressCancel(); err != nil {
			return res, err
		}
		if err := s.toStartScreen(); err != nil {
			return res, err
		}
		res.DocumentType = DocumentMemoRequest
		res.DocumentNumber = docNum
		res.Severity = SeverityInfo
		res.Message = "Agreement successfully settled."
		return res, nil
	}

	state := sapgui.CurrentDialog(s.sess)
	if !state.Open {
		return res, fmt.Errorf("settlement: settle left no confirmation dialog (status %q)", s.statusBar.Text())
	}
	text := state.Text
	if strings.Contains(text, "see next warning message") {
		if w := s.sess.ActiveWindow(); w != nil {
			if err := w.SendVKey(sapgui.VKeyEnter); err != nil {
				return res, err
			}
		}
		text = sapgui.CurrentDialog(s.sess).Text
	}
	res.Severity = SeverityError
	res.Message = text

	if sapgui.IsModalOpen(s.sess, "") {
		if err := sapgui.CloseDialog(s.sess, true); err != nil {
			return res, err
		}
	}
	if err := s.toStartScreen(); err != nil {
		return res, err
	}
	return res, nil
}

// findResult classifies the outcome of opening an agreement.
type findResult struct {
	severity Severity
	message  string
	// alreadySettled marks the display-only warning: the agreement was
	// settled earlier and carries an issued credit memo.
	alreadySettled bool
}

func (s *Session) find(num int, opts Options) (findResult, error) {
	if err := s.setAgreementNumber(strconv.Itoa(num)); err != nil {
		return findResult{}, err
	}
	if err := s.pressEnter(); err != nil {
		return findResult{}, err
	}

	// Dialogs stack: accepting the first may surface the next one.
	for _, rule := range dialogRules {
		if !sapgui.IsModalOpen(s.sess, rule.keyword) {
			continue
		}
		state := sapgui.CurrentDialog(s.sess)
		accept := rule.gate(opts)
		if err := sapgui.CloseDialog(s.sess, accept); err != nil {
			return findResult{}, err
		}
		if !accept {
			return findResult{severity: SeverityWarning, message: state.Text}, nil
		}
	}

	statusText := s.statusBar.Text()
	if severity, ok := classifyStatus(statusText); ok {
		return findResult{
			severity:       severity,
			message:        statusText,
			alreadySettled: severity == SeverityWarning,
		}, nil
	}
	return findResult{severity: SeverityInfo, message: "Agreement found and opened."}, nil
}

// salesVolumes reads the open value and open accruals from the sales
// volume summary. The figures sit in yellow non-intensified labels; the
// first one is the open value, the last one the accruals.
func (s *Session) salesVolumes() (float64, float64, error) {
	if err := s.pressSum(); err != nil {
		return 0, 0, err
	}
	if sapgui.IsModalOpen(s.sess, dialogMarkedForDeletion) {
		if err := sapgui.CloseDialog(s.sess, true); err != nil {
			return 0, 0, err
		}
	}

	userArea, err := s.mainWnd.FindByID("usr")
	if err != nil {
		return 0, 0, fmt.Errorf("settlement: user area: %w", err)
	}
	if scrollable, ok := userArea.(sapgui.Scrollable); ok {
		if err := scrollable.ScrollToBottom(); err != nil {
			return 0, 0, err
		}
	}

	labels, err := s.mainWnd.FindAllByName("", sapgui.TypeLabel)
	if err != nil {
		return 0, 0, err
	}
	var values []string
	for _, label := range labels {
		colored, ok := label.(sapgui.Colored)
		if !ok || colored.ColorIndex() != colorYellow || colored.ColorIntensified() {
			continue
		}
		text := strings.TrimSpace(label.Text())
		if text == "" || alphabetic(text) {
			continue
		}
		values = append(values, text)
	}
	if err := s.pressCancel(); err != nil {
		return 0, 0, err
	}
	if len(values) == 0 {
		return 0, 0, errors.New("settlement: no sales volume figures on the summary view")
	}

	total, err := sapgui.ParseAmount(values[0])
	if err != nil {
		return 0, 0, err
	}
	accruals, err := sapgui.ParseAmount(values[len(values)-1])
	if err != nil {
		return 0, 0, err
	}
	return total, accruals, nil
}

// scalesChecked reports whether scales are marked for every agreement
// condition of the decisive key combination.
func (s *Session) scalesChecked() (bool, error) {
	var pressed bool
	for _, button := range s.toolbar.Children() {
		if button.Text() != "Conditions" {
			continue
		}
		if err := button.Press(); err != nil {
			return false, err
		}
		pressed = true
		break
	}
	if !pressed {
		return false, errors.New("settlement: conditions button not found on the toolbar")
	}

	gridEl, err := s.sess.FindByID(conditionsGridID)
	if err != nil {
		return false, fmt.Errorf("settlement: conditions grid: %w", err)
	}
	grid, ok := gridEl.(sapgui.Grid)
	if !ok {
		return false, fmt.Errorf("settlement: element %s is not a grid", conditionsGridID)
	}

	row := -1
	for idx := 0; idx < grid.RowCount(); idx++ {
		keyComb, err := grid.CellValue(idx, "GSTXT")
		if err != nil {
			return false, err
		}
		if keyComb == conditionKey {
			row = idx
			break
		}
	}
	if row < 0 {
		return false, errors.New("settlement: condition key not found in the list")
	}
	if err := grid.SelectRow(row); err != nil {
		return false, err
	}
	if err := grid.SetCurrentCell(row, "GSTXT"); err != nil {
		return false, err
	}
	if err := grid.DoubleClickCurrentCell(); err != nil {
		return false, err
	}

	tableEl, err := s.mainWnd.FindByName(conditionsTableName, "GuiTableControl")
	if err != nil {
		return false, fmt.Errorf("settlement: conditions table: %w", err)
	}
	table, ok := tableEl.(sapgui.Table)
	if !ok {
		return false, fmt.Errorf("settlement: element %s is not a table", conditionsTableName)
	}
	column := -1
	for idx, name := range table.ColumnNames() {
		if name == scalesColumn {
			column = idx
			break
		}
	}
	if column < 0 {
		return false, fmt.Errorf("settlement: column %s not found in the used layout", scalesColumn)
	}

	unchecked, err := existsUnchecked(table, column)
	if err != nil {
		return false, err
	}

	if err := s.pressBack(); err != nil {
		return false, err
	}
	if sapgui.MessageType(s.statusBar) == "W" {
		if err := s.pressEnter(); err != nil {
			return false, err
		}
	}
	if err := s.pressCancel(); err != nil {
		return false, err
	}
	return !unchecked, nil
}

// existsUnchecked reports whether any visible condition row has its
// scales checkbox cleared. An empty table means no active condition.
func existsUnchecked(table sapgui.Table, column int) (bool, error) {
	first, err := table.Cell(0, 0)
	if err != nil || first.Text() == "" {
		return false, nil
	}
	for row := 0; row < table.VisibleRowCount(); row++ {
		cell, err := table.Cell(row, column)
		if err != nil {
			return false, err
		}
		checkbox, ok := cell.(sapgui.Toggleable)
		if !ok {
			return false, fmt.Errorf("settlement: scales cell (%d,%d) is not a checkbox", row, column)
		}
		selected, err := checkbox.Selected()
		if err != nil {
			return false, err
		}
		if !selected {
			return true, nil
		}
	}
	return false, nil
}

// documentNumber resolves the accounting document of the opened agreement
// through the rebate payments display. A zero number with a message means
// no document exists.
func (s *Session) documentNumber(kind DocumentType) (int, string, error) {
	menu, err := s.menubar.FindByID(rebatePaymentsMenu)
	if err != nil {
		return 0, "", fmt.Errorf("settlement: rebate payments menu: %w", err)
	}
	if err := menu.Select(); err != nil {
		return 0, "", err
	}

	if strings.Contains(s.statusBar.Text(), "No rebate credit memos exist") {
		return 0, s.statusBar.Text(), nil
	}

	dialog, err := s.sess.FindByID("wnd[1]")
	if err != nil {
		return 0, "", fmt.Errorf("settlement: document dialog: %w", err)
	}
	okButton, err := dialog.FindByID("tbar[0]/btn[0]")
	if err != nil {
		return 0, "", err
	}
	if err := okButton.Press(); err != nil {
		return 0, "", err
	}

	docsWnd, err := s.sess.FindByID("wnd[2]")
	if err != nil {
		return 0, "", fmt.Errorf("settlement: document flow window: %w", err)
	}
	shell, err := docsWnd.FindByName("shell", "GuiShell")
	if err != nil {
		return 0, "", err
	}
	tree, ok := shell.(sapgui.Tree)
	if !ok {
		return 0, "", errors.New("settlement: document flow shell is not a tree")
	}

	keyword := "Credit memo requests"
	if kind == DocumentCreditMemo {
		keyword = "Rebate credit memo "
	}
	num, err := findDocumentNode(tree, keyword)
	if err != nil {
		return 0, "", err
	}

	// The flow display leaves its windows stacked; pop them back to the
	// agreement screen.
	for i := 0; i < maxDialogDrain; i++ {
		w := s.sess.ActiveWindow()
		if w == nil || w.Type() != sapgui.TypeModalWindow {
			break
		}
		if err := w.SendVKey(sapgui.VKeyCancel); err != nil {
			return 0, "", err
		}
	}
	return num, "", nil
}

// findDocumentNode walks the document flow tree breadth-first, keyed by
// a visited set so malformed sibling chains cannot loop, and returns the
// trailing number of the first node whose text contains the keyword.
// A zero return without error means no node matched.
func findDocumentNode(tree sapgui.Tree, keyword string) (int, error) {
	top, err := tree.TopNode()
	if err != nil {
		return 0, err
	}
	queue := []string{top}
	seen := map[string]bool{top: true}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]

		text, err := tree.ItemText(key, treeTextColumn)
		if err != nil {
			return 0, err
		}
		if strings.Contains(text, keyword) {
			fields := strings.Fields(text)
			num, err := strconv.Atoi(fields[len(fields)-1])
			if err != nil {
				return 0, fmt.Errorf("settlement: document node %q has no trailing number: %w", text, err)
			}
			return num, nil
		}

		subs, err := tree.SubNodes(key)
		if err != nil {
			return 0, err
		}
		for _, sub := range subs {
			if !seen[sub] {
				seen[sub] = true
				queue = append(queue, sub)
			}
		}
		next, err := tree.NextNodeKey(key)
		if err == nil {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		} else if !errors.Is(err, sapgui.ErrNotFound) {
			return 0, err
		}
	}
	return 0, nil
}

// reopenAgreement returns to the agreement after saving a settlement,
// polling until the lock from the save is released.
func (s *Session) reopenAgreement(ctx context.Context) error {
	if err := s.pressEnter(); err != nil {
		return err
	}
	for strings.Contains(s.statusBar.Text(), "being processed") {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.pressEnter(); err != nil {
			return err
		}
		s.sleep(s.pollDelay)
	}
	if sapgui.IsModalOpen(s.sess, dialogMarkedForDeletion) {
		if err := sapgui.CloseDialog(s.sess, true); err != nil {
			return err
		}
	}
	return nil
}

// toStartScreen restarts the transaction. Restarting is required to
// reset the object references; reusing them after a settlement leads to
// undefined transaction behavior.
func (s *Session) toStartScreen() error {
	if err := s.pressCancel(); err != nil {
		return err
	}
	return s.sess.StartTransaction(transactionCode)
}

func (s *Session) setAgreementNumber(value string) error {
	field, err := s.mainWnd.FindByName(agreementNumberField, "GuiCTextField")
	if err != nil {
		return fmt.Errorf("settlement: agreement number field: %w", err)
	}
	return field.SetText(value)
}

func (s *Session) clearInput() error {
	return s.setAgreementNumber("")
}

func (s *Session) agreementStatus() (string, error) {
	field, err := s.mainWnd.FindByID(statusField)
	if err != nil {
		return "", fmt.Errorf("settlement: agreement status field: %w", err)
	}
	return field.Text(), nil
}

func (s *Session) pressSettle() error {
	button, err := s.toolbar.FindByID("btn[19]")
	if err != nil {
		return fmt.Errorf("settlement: settle button: %w", err)
	}
	return button.Press()
}

func (s *Session) pressSum() error {
	button, err := s.toolbar.FindByID("btn[17]")
	if err != nil {
		return fmt.Errorf("settlement: sum button: %w", err)
	}
	return button.Press()
}

func (s *Session) pressEnter() error  { return s.mainWnd.SendVKey(sapgui.VKeyEnter) }
func (s *Session) pressBack() error   { return s.mainWnd.SendVKey(sapgui.VKeyBack) }
func (s *Session) pressSave() error   { return s.mainWnd.SendVKey(sapgui.VKeySave) }
func (s *Session) pressCancel() error { return s.mainWnd.SendVKey(sapgui.VKeyCancel) }

func (s *Session) printf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func joinMessages(parts ...string) string {
	var kept []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}

func alphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
