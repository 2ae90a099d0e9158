package application

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agreement-closing/internal/closing/batchlog"
	closing "agreement-closing/internal/closing/domain"
	"agreement-closing/internal/orders"
	"agreement-closing/internal/sapgui"
	"agreement-closing/internal/settlement"
)

type settleCall struct {
	num       int
	threshold float64
	opts      settlement.Options
}

type stubSettler struct {
	started int
	closed  int
	results map[int]settlement.Result
	errs    map[int]error
	calls   []settleCall
}

func (s *stubSettler) Start(handle sapgui.Session) error { s.started++; return nil }

func (s *stubSettler) SettleAgreement(ctx context.Context, num int, threshold float64, opts settlement.Options) (settlement.Result, error) {
	s.calls = append(s.calls, settleCall{num: num, threshold: threshold, opts: opts})
	if err := s.errs[num]; err != nil {
		return settlement.Result{}, err
	}
	return s.results[num], nil
}

func (s *stubSettler) Close() error { s.closed++; return nil }

type amendCall struct {
	num  int
	opts orders.Options
}

type stubAmender struct {
	started int
	closed  int
	errs    map[int]error
	calls   []amendCall
}

func (a *stubAmender) Start(handle sapgui.Session) error { a.started++; return nil }

func (a *stubAmender) ChangeSalesOrder(num int, opts orders.Options) error {
	a.calls = append(a.calls, amendCall{num: num, opts: opts})
	return a.errs[num]
}

func (a *stubAmender) Close() error { a.closed++; return nil }

type stubNotifier struct {
	recipient   string
	attachments []string
	err         error
}

func (n *stubNotifier) Notify(ctx context.Context, recipient string, attachments []string) error {
	n.recipient = recipient
	n.attachments = attachments
	return n.err
}

type serviceFixture struct {
	service *Service
	settler *stubSettler
	amender *stubAmender
	batches *batchlog.Store
	workDir string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	workDir := t.TempDir()
	batches, err := batchlog.NewStore(filepath.Join(workDir, "data"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	settler := &stubSettler{results: map[int]settlement.Result{}, errs: map[int]error{}}
	amender := &stubAmender{errs: map[int]error{}}

	service, err := NewService(settler, amender, batches, nil, nil, nil, filepath.Join(workDir, "dump"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &serviceFixture{
		service: service,
		settler: settler,
		amender: amender,
		batches: batches,
		workDir: workDir,
	}
}

func settledResult(num, memo int) settlement.Result {
	return settlement.Result{
		OpenValue:      0,
		OpenAccruals:   0.005,
		HasVolumes:     true,
		DocumentNumber: memo,
		DocumentType:   settlement.DocumentMemoRequest,
		Message:        "Agreement successfully settled.",
		Severity:       settlement.SeverityInfo,
	}
}

func loadOnlyBatch(t *testing.T, store *batchlog.Store) batchlog.Record {
	t.Helper()
	records, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one batch, got %v", records)
	}
	for _, rec := range records {
		return rec
	}
	return batchlog.Record{}
}

func TestNewServiceNilChecks(t *testing.T) {
	batches, _ := batchlog.NewStore(t.TempDir())
	settler := &stubSettler{}
	amender := &stubAmender{}

	if _, err := NewService(nil, amender, batches, nil, nil, nil, "dump"); err == nil {
		t.Error("expected an error for a nil settler")
	}
	if _, err := NewService(settler, nil, batches, nil, nil, nil, "dump"); err == nil {
		t.Error("expected an error for a nil amender")
	}
	if _, err := NewService(settler, amender, nil, nil, nil, nil, "dump"); err == nil {
		t.Error("expected an error for a nil batch log")
	}
	if _, err := NewService(settler, amender, batches, nil, nil, nil, ""); err == nil {
		t.Error("expected an error for an empty dump directory")
	}
}

func TestProcessAgreementsRequiresItems(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.ProcessAgreements(context.Background(), nil, closing.Rules{Country: "Ireland"}, nil, "", "0075")
	if !errors.Is(err, closing.ErrNoWorkItems) {
		t.Fatalf("expected ErrNoWorkItems, got %v", err)
	}
}

func TestProcessAgreementsSettlesAndAmends(t *testing.T) {
	f := newServiceFixture(t)
	f.settler.results[501234] = settledResult(501234, 60000123)

	rules := closing.Rules{Country: "Ireland", Threshold: 0.5, Approvers: []string{"00111222", "00333444"}}
	items := []closing.WorkItem{{Agreement: 501234}}

	results, err := f.service.ProcessAgreements(context.Background(), nil, rules, items, "/tmp/permission.pdf", "0075")
	if err != nil {
		t.Fatalf("ProcessAgreements: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	res := results[0]
	if res.Agreement != 501234 || res.CreditMemo != 60000123 {
		t.Errorf("expected agreement 501234 with memo 60000123, got %+v", res)
	}
	if !res.HasVolumes || res.OpenAccruals != 0.005 {
		t.Errorf("expected recorded volumes, got %+v", res)
	}
	if res.Severity != settlement.SeverityInfo {
		t.Errorf("expected an info result, got %q", res.Severity)
	}

	if len(f.settler.calls) != 1 {
		t.Fatalf("expected one settle call, got %d", len(f.settler.calls))
	}
	call := f.settler.calls[0]
	if call.threshold != 0.5 {
		t.Errorf("expected threshold 0.5, got %v", call.threshold)
	}
	if !call.opts.AcceptInactiveAccounts {
		t.Error("expected inactive accounts to be accepted")
	}
	if f.settler.closed == 0 {
		t.Error("expected the settlement session to be closed before amending")
	}

	if len(f.amender.calls) != 1 {
		t.Fatalf("expected one amendment, got %d", len(f.amender.calls))
	}
	amend := f.amender.calls[0]
	if amend.num != 60000123 {
		t.Errorf("expected order 60000123, got %d", amend.num)
	}
	if amend.opts.PrintInvoice == nil || *amend.opts.PrintInvoice {
		t.Error("expected invoice printing to be disabled")
	}
	if len(amend.opts.Approvers) != 2 || amend.opts.Approvers[0] != "00111222" {
		t.Errorf("expected the rules approvers, got %v", amend.opts.Approvers)
	}
	if amend.opts.AttachmentPath != "/tmp/permission.pdf" {
		t.Errorf("expected the permission attachment, got %q", amend.opts.AttachmentPath)
	}
	if f.amender.closed != 1 {
		t.Errorf("expected the amendment session to be closed, got %d", f.amender.closed)
	}

	rec := loadOnlyBatch(t, f.batches)
	if rec.Country != "Ireland" || rec.CompanyCode != "0075" {
		t.Errorf("expected an Ireland/0075 batch, got %+v", rec)
	}
	if len(rec.CreditMemos) != 1 || rec.CreditMemos[0] != 60000123 {
		t.Errorf("expected credit memos [60000123], got %v", rec.CreditMemos)
	}
}

func TestProcessAgreementsClampsNegativeThreshold(t *testing.T) {
	f := newServiceFixture(t)
	f.settler.results[501234] = settlement.Result{
		Message:  "The agreement 501234 does not exist!",
		Severity: settlement.SeverityError,
	}

	rules := closing.Rules{Country: "Ireland", Threshold: -5}
	_, err := f.service.ProcessAgreements(context.Background(), nil, rules, []closing.WorkItem{{Agreement: 501234}}, "", "0075")
	if err != nil {
		t.Fatalf("ProcessAgreements: %v", err)
	}

	if f.settler.calls[0].threshold != 0 {
		t.Errorf("expected the threshold capped at 0, got %v", f.settler.calls[0].threshold)
	}
}

func TestProcessAgreementsRecordsAmendmentFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.settler.results[501234] = settledResult(501234, 60000123)
	f.amender.errs[60000123] = errors.New("orders: no authorization for maintaining the sales document")

	results, err := f.service.ProcessAgreements(context.Background(), nil, closing.Rules{Country: "Ireland"}, []closing.WorkItem{{Agreement: 501234}}, "", "0075")
	if err != nil {
		t.Fatalf("expected a non-fatal amendment failure, got %v", err)
	}

	msg := results[0].Message
	if !strings.Contains(msg, "Agreement successfully settled.") {
		t.Errorf("expected the settlement message kept, got %q", msg)
	}
	if !strings.Contains(msg, "Error changing the sales order!") {
		t.Errorf("expected the amendment failure appended, got %q", msg)
	}
	if f.amender.closed != 1 {
		t.Error("expected the amendment session to be closed after the failure")
	}

	// The permission may be attached manually later, so the memo
	// still goes into the batch.
	rec := loadOnlyBatch(t, f.batches)
	if len(rec.CreditMemos) != 1 || rec.CreditMemos[0] != 60000123 {
		t.Errorf("expected credit memos [60000123], got %v", rec.CreditMemos)
	}
}

func TestProcessAgreementsSkipsAmendmentWithoutDocument(t *testing.T) {
	f := newServiceFixture(t)
	f.settler.results[501234] = settlement.Result{
		OpenValue:  3.14,
		HasVolumes: true,
		Message:    "Could not settle the agreement! Open value is not 0 EUR.",
		Severity:   settlement.SeverityError,
	}

	results, err := f.service.ProcessAgreements(context.Background(), nil, closing.Rules{Country: "Ireland"}, []closing.WorkItem{{Agreement: 501234}}, "", "0075")
	if err != nil {
		t.Fatalf("ProcessAgreements: %v", err)
	}

	if results[0].CreditMemo != 0 {
		t.Errorf("expected no credit memo, got %d", results[0].CreditMemo)
	}
	if len(f.amender.calls) != 0 {
		t.Errorf("expected no amendment, got %v", f.amender.calls)
	}
	rec := loadOnlyBatch(t, f.batches)
	if len(rec.CreditMemos) != 0 {
		t.Errorf("expected an empty batch, got %v", rec.CreditMemos)
	}
}

func TestProcessAgreementsSkipsAmendmentForIssuedCreditMemo(t *testing.T) {
	f := newServiceFixture(t)
	f.settler.results[501234] = settlement.Result{
		DocumentNumber: 90000777,
		DocumentType:   settlement.DocumentCreditMemo,
		Message:        "The agreement has already been settled! Rebate credit memo 90000777 exists.",
		Severity:       settlement.SeverityWarning,
	}

	results, err := f.service.ProcessAgreements(context.Background(), nil, closing.Rules{Country: "Ireland"}, []closing.WorkItem{{Agreement: 501234}}, "", "0075")
	if err != nil {
		t.Fatalf("ProcessAgreements: %v", err)
	}

	if results[0].CreditMemo != 90000777 {
		t.Errorf("expected the existing memo recorded, got %d", results[0].CreditMemo)
	}
	if len(f.amender.calls) != 0 {
		t.Errorf("expected no amendment for an issued credit memo, got %v", f.amender.calls)
	}
	rec := loadOnlyBatch(t, f.batches)
	if len(rec.CreditMemos) != 0 {
		t.Errorf("expected an empty batch, got %v", rec.CreditMemos)
	}
}

func TestProcessAgreementsDumpsAndAbortsOnSessionError(t *testing.T) {
	f := newServiceFixture(t)
	f.settler.results[501234] = settledResult(501234, 60000123)
	f.settler.errs[501235] = errors.New("sapgui: connection lost")

	items := []closing.WorkItem{{Agreement: 501234}, {Agreement: 501235}, {Agreement: 501236}}
	results, err := f.service.ProcessAgreements(context.Background(), nil, closing.Rules{Country: "Ireland"}, items, "", "0075")
	if err == nil {
		t.Fatal("expected the run to abort")
	}
	if !strings.Contains(err.Error(), "unhandled exception") {
		t.Errorf("expected an unhandled exception error, got %v", err)
	}

	// Partial results survive the abort.
	if len(results) != 3 {
		t.Fatalf("expected all 3 result slots, got %d", len(results))
	}
	if results[0].CreditMemo != 60000123 {
		t.Errorf("expected the first item recorded, got %+v", results[0])
	}

	dumps, globErr := filepath.Glob(filepath.Join(f.workDir, "dump", "data_001_*.json"))
	if globErr != nil || len(dumps) != 1 {
		t.Fatalf("expected one dump file, got %v (%v)", dumps, globErr)
	}
	data, readErr := os.ReadFile(dumps[0])
	if readErr != nil {
		t.Fatalf("reading the dump: %v", readErr)
	}
	var dumped []closing.Result
	if err := json.Unmarshal(data, &dumped); err != nil {
		t.Fatalf("decoding the dump: %v", err)
	}
	if len(dumped) != 3 || dumped[0].CreditMemo != 60000123 {
		t.Errorf("expected the partial results dumped, got %+v", dumped)
	}

	// The third agreement was never reached.
	if len(f.settler.calls) != 2 {
		t.Errorf("expected 2 settle calls, got %d", len(f.settler.calls))
	}
}

func TestCreateReportWritesWorkbookAndSummary(t *testing.T) {
	f := newServiceFixture(t)
	cfg := Config{
		WorkDir: f.workDir,
		Data: DataConfig{
			ReportName:      "Report_$company_code$_$date$.xlsx",
			ReportSheetName: "Data",
		},
	}
	results := []closing.Result{{Agreement: 501234, Message: "Agreement successfully settled.", Severity: settlement.SeverityInfo}}

	paths, err := f.service.CreateReport(results, cfg, closing.Rules{Country: "Ireland"}, "0075")
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 report files, got %v", paths)
	}

	name := filepath.Base(paths[0])
	if !strings.HasPrefix(name, "Report_0075_") || !strings.HasSuffix(name, ".xlsx") {
		t.Errorf("expected a substituted report name, got %q", name)
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
		if info.Size() == 0 {
			t.Errorf("expected %s to be non-empty", path)
		}
	}
}

func TestSendNotificationAttachesReports(t *testing.T) {
	f := newServiceFixture(t)
	notifier := &stubNotifier{}
	service, err := NewService(f.settler, f.amender, f.batches, notifier, nil, nil, filepath.Join(f.workDir, "dump"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	cfg := Config{WorkDir: f.workDir}
	if err := os.MkdirAll(cfg.ReportDir(), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, name := range []string{"Report_0075.xlsx", "Run_Summary.pdf"} {
		if err := os.WriteFile(filepath.Join(cfg.ReportDir(), name), []byte("x"), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}

	service.SendNotification(context.Background(), cfg, "jane.doe@example.com")

	if notifier.recipient != "jane.doe@example.com" {
		t.Errorf("expected the requester as recipient, got %q", notifier.recipient)
	}
	if len(notifier.attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %v", notifier.attachments)
	}
}

func TestSendNotificationSwallowsDeliveryErrors(t *testing.T) {
	f := newServiceFixture(t)
	notifier := &stubNotifier{err: errors.New("smtp: all recipients rejected")}
	service, err := NewService(f.settler, f.amender, f.batches, notifier, nil, nil, filepath.Join(f.workDir, "dump"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	cfg := Config{WorkDir: f.workDir}
	if err := os.MkdirAll(cfg.ReportDir(), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.ReportDir(), "r.xlsx"), []byte("x"), 0o644); err != nil {
		t.Fatalf("writing the report: %v", err)
	}

	// Must not panic or propagate.
	service.SendNotification(context.Background(), cfg, "jane.doe@example.com")
}

func TestRemoveTempFiles(t *testing.T) {
	f := newServiceFixture(t)
	cfg := Config{WorkDir: f.workDir}

	for _, dir := range []string{cfg.InputDir(), cfg.DocDir(), cfg.ReportDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "leftover.bin"), []byte("x"), 0o644); err != nil {
			t.Fatalf("seeding %s: %v", dir, err)
		}
	}

	f.service.RemoveTempFiles(cfg)

	var found []string
	_ = filepath.WalkDir(cfg.TempDir(), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			found = append(found, path)
		}
		return nil
	})
	if len(found) != 0 {
		t.Errorf("expected no temp files left, got %v", found)
	}

	// A second pass over the now empty tree only warns.
	f.service.RemoveTempFiles(cfg)
}
