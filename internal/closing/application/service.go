package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"agreement-closing/internal/closing/batchlog"
	closing "agreement-closing/internal/closing/domain"
	"agreement-closing/internal/closing/interfaces"
	"agreement-closing/internal/closing/metrics"
	"agreement-closing/internal/orders"
	"agreement-closing/internal/sapgui"
	"agreement-closing/internal/settlement"
)

// Settler drives the final settlement transaction for one agreement.
type Settler interface {
	Start(handle sapgui.Session) error
	SettleAgreement(ctx context.Context, num int, threshold float64, opts settlement.Options) (settlement.Result, error)
	Close() error
}

// Amender maintains the sales orders produced by settlement.
type Amender interface {
	Start(handle sapgui.Session) error
	ChangeSalesOrder(num int, opts orders.Options) error
	Close() error
}

// Notifier delivers the end-of-run report to the requester.
type Notifier interface {
	Notify(ctx context.Context, recipient string, attachments []string) error
}

// Service orchestrates one agreement closing run.
type Service struct {
	settler  Settler
	amender  Amender
	batches  *batchlog.Store
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *log.Logger
	dumpDir  string
}

// NewService constructs the closing service. Notifier and metrics
// may be nil.
func NewService(settler Settler, amender Amender, batches *batchlog.Store, notifier Notifier, mets *metrics.Metrics, logger *log.Logger, dumpDir string) (*Service, error) {
	if settler == nil {
		return nil, errors.New("closing service: nil settler")
	}
	if amender == nil {
		return nil, errors.New("closing service: nil amender")
	}
	if batches == nil {
		return nil, errors.New("closing service: nil batch log")
	}
	if dumpDir == "" {
		return nil, errors.New("closing service: empty dump directory")
	}
	return &Service{
		settler:  settler,
		amender:  amender,
		batches:  batches,
		notifier: notifier,
		metrics:  mets,
		logger:   logger,
		dumpDir:  dumpDir,
	}, nil
}

// ProcessAgreements settles every queued agreement and records the
// outcome per item. The returned results carry one entry per work
// item even when the run aborts early.
func (s *Service) ProcessAgreements(ctx context.Context, handle sapgui.Session, rules closing.Rules, items []closing.WorkItem, attachmentPath, companyCode string) ([]closing.Result, error) {
	if len(items) == 0 {
		return nil, closing.ErrNoWorkItems
	}

	started := time.Now()
	threshold := rules.EffectiveThreshold()

	results := make([]closing.Result, len(items))
	for i, item := range items {
		results[i] = closing.Result{Agreement: item.Agreement}
	}

	// One batch per run collects the created credit memo requests.
	batchID, err := s.batches.Create(rules.Country, companyCode)
	if err != nil {
		return results, fmt.Errorf("closing service: creating the data batch: %w", err)
	}

	for i := range results {
		s.printf("--------- Agreement %d (%d of %d) ---------", results[i].Agreement, i+1, len(items))

		if err := s.closeOne(ctx, handle, &results[i], threshold, rules.Approvers, attachmentPath, batchID); err != nil {
			s.printf("ERROR: %v", err)
			s.writeDump(results)
			return results, fmt.Errorf("closing service: unhandled exception: %w", err)
		}

		s.printf("Agreement processed.")
	}

	if s.metrics != nil {
		s.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}
	return results, nil
}

// closeOne runs the settle-amend-record sequence for one agreement.
// Only the settlement message and the amendment outcome are recorded
// on the result; every other failure aborts the run.
func (s *Service) closeOne(ctx context.Context, handle sapgui.Session, res *closing.Result, threshold float64, approvers []string, attachmentPath string, batchID int) error {
	if err := s.settler.Start(handle); err != nil {
		return err
	}

	outcome, err := s.settler.SettleAgreement(ctx, res.Agreement, threshold, settlement.Options{
		AcceptInactiveAccounts: true,
	})
	if err != nil {
		return err
	}
	s.logOutcome(outcome)

	res.Message = outcome.Message
	res.CreditMemo = outcome.DocumentNumber
	res.OpenValue = outcome.OpenValue
	res.OpenAccruals = outcome.OpenAccruals
	res.HasVolumes = outcome.HasVolumes
	res.Severity = outcome.Severity
	if s.metrics != nil {
		s.metrics.ItemsTotal.WithLabelValues(string(outcome.Severity)).Inc()
		if outcome.DocumentNumber != 0 && outcome.DocumentType == settlement.DocumentMemoRequest {
			s.metrics.DocumentsTotal.Inc()
		}
	}

	// Nothing to amend when settlement produced no document or the
	// document is a credit memo issued in an earlier run.
	if outcome.DocumentNumber == 0 || outcome.DocumentType == settlement.DocumentCreditMemo {
		return nil
	}

	if err := s.settler.Close(); err != nil {
		return err
	}

	s.printf("Starting VA02 ...")
	if err := s.amender.Start(handle); err != nil {
		return err
	}
	s.printf("VA02 running.")

	// The permission document may still be attached in a later manual
	// pass, so an amendment failure stays on the item and the run
	// continues.
	s.printf("Updating order parameters ...")
	printInvoice := false
	amendErr := s.amender.ChangeSalesOrder(outcome.DocumentNumber, orders.Options{
		PrintInvoice:   &printInvoice,
		Approvers:      approvers,
		AttachmentPath: attachmentPath,
	})
	if amendErr != nil {
		s.printf("ERROR: %v", amendErr)
		res.Message += fmt.Sprintf(" Error changing the sales order! %v", amendErr)
		if s.metrics != nil {
			s.metrics.AmendmentFailures.Inc()
		}
	} else {
		s.printf("Order parameters updated.")
	}
	s.printf("Closing VA02 ...")
	if err := s.amender.Close(); err != nil {
		return err
	}
	s.printf("VA02 closed.")

	s.printf("Updating the data batch on the credit memo ...")
	if err := s.batches.Append(batchID, outcome.DocumentNumber); err != nil {
		return err
	}
	s.printf("Data batch successfully updated.")
	return nil
}

// CreateReport renders the run report workbook and the PDF summary
// into the report directory and returns their paths.
func (s *Service) CreateReport(results []closing.Result, cfg Config, rules closing.Rules, companyCode string) ([]string, error) {
	s.printf("Creating user report ...")

	if err := os.MkdirAll(cfg.ReportDir(), 0o755); err != nil {
		return nil, err
	}

	name := cfg.Data.ReportName
	name = strings.ReplaceAll(name, "$company_code$", companyCode)
	name = strings.ReplaceAll(name, "$date$", time.Now().Format("02Jan2006"))
	reportPath := filepath.Join(cfg.ReportDir(), name)

	workbook, err := interfaces.BuildReportXLSX(results, cfg.Data.ReportSheetName)
	if err != nil {
		return nil, fmt.Errorf("closing service: building the report: %w", err)
	}
	if err := os.WriteFile(reportPath, workbook, 0o644); err != nil {
		return nil, err
	}

	summaryPath := filepath.Join(cfg.ReportDir(), "Run_Summary.pdf")
	summary, err := interfaces.BuildSummaryPDF(rules.Country, companyCode, results)
	if err != nil {
		return nil, fmt.Errorf("closing service: building the summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, summary, 0o644); err != nil {
		return nil, err
	}

	s.printf("Report successfully created.")
	return []string{reportPath, summaryPath}, nil
}

// SendNotification mails the report files to the requester. Delivery
// problems are logged and swallowed so a failed notification never
// fails the run.
func (s *Service) SendNotification(ctx context.Context, cfg Config, recipient string) {
	if s.notifier == nil {
		s.printf("WARNING: no notifier configured, skipping the user notification")
		return
	}

	s.printf("Sending user notification ...")

	attachments, err := filepath.Glob(filepath.Join(cfg.ReportDir(), "*.*"))
	if err != nil || len(attachments) == 0 {
		s.printf("ERROR: no report files found to attach")
		return
	}
	sort.Strings(attachments)

	if err := s.notifier.Notify(ctx, recipient, attachments); err != nil {
		s.printf("ERROR: %v", err)
		return
	}

	s.printf("Notification sent.")
}

// RemoveTempFiles clears all transient run files under the temp root.
func (s *Service) RemoveTempFiles(cfg Config) {
	var paths []string
	_ = filepath.WalkDir(cfg.TempDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})

	if len(paths) == 0 {
		s.printf("WARNING: No temporary files detected!")
		return
	}

	s.printf("Removing temporary files ...")
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			s.printf("ERROR: %v", err)
		}
	}
}

func (s *Service) logOutcome(res settlement.Result) {
	switch res.Severity {
	case settlement.SeverityWarning:
		s.printf("WARNING: %s", res.Message)
	case settlement.SeverityError:
		s.printf("ERROR: %s", res.Message)
	default:
		s.printf("%s", res.Message)
	}
}

func (s *Service) writeDump(results []closing.Result) {
	s.printf("Dumping processing output ...")
	path, err := writeDump(s.dumpDir, results)
	if err != nil {
		s.printf("ERROR: %v", err)
		return
	}
	s.printf("Data dump created: %s", path)
}

func (s *Service) printf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
