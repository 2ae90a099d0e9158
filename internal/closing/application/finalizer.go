package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"

	"agreement-closing/internal/closing/batchlog"
	"agreement-closing/internal/closing/metrics"
	"agreement-closing/internal/sapgui"
)

// WorkflowSession approves the workflow items raised for settled
// agreements.
type WorkflowSession interface {
	Start(handle sapgui.Session) error
	ItemTable() (sapgui.Grid, error)
	ProcessItem(items sapgui.Grid, keyword string) (bool, error)
	Close() error
}

// Finalizer consumes the batch log left behind by closing runs and
// confirms the matching workflow items.
type Finalizer struct {
	workflow WorkflowSession
	batches  *batchlog.Store
	metrics  *metrics.Metrics
	logger   *log.Logger
}

// NewFinalizer constructs the finalizer. Metrics may be nil.
func NewFinalizer(workflow WorkflowSession, batches *batchlog.Store, mets *metrics.Metrics, logger *log.Logger) (*Finalizer, error) {
	if workflow == nil {
		return nil, errors.New("finalizer: nil workflow session")
	}
	if batches == nil {
		return nil, errors.New("finalizer: nil batch log")
	}
	return &Finalizer{
		workflow: workflow,
		batches:  batches,
		metrics:  mets,
		logger:   logger,
	}, nil
}

// Run processes every pending batch in name order. A batch whose
// items were approved, or could not be found at all, is removed; a
// GUI failure aborts the run with the remaining batches untouched.
func (f *Finalizer) Run(ctx context.Context, handle sapgui.Session) error {
	records, err := f.batches.LoadAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		f.printf("No data batches to finalize.")
		return nil
	}

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f.printf("=== Processing data batch %q ===", name)
		if err := f.finalizeBatch(ctx, handle, name, records[name]); err != nil {
			return err
		}
		f.printf("=== Data batch processed ===")
	}
	return nil
}

func (f *Finalizer) finalizeBatch(ctx context.Context, handle sapgui.Session, name string, rec batchlog.Record) error {
	f.printf("Starting SO01 ...")
	if err := f.workflow.Start(handle); err != nil {
		return err
	}
	f.printf("SO01 running.")

	items, err := f.workflow.ItemTable()
	if err != nil {
		return err
	}

	for nth, memo := range rec.CreditMemos {
		if err := ctx.Err(); err != nil {
			return err
		}

		f.printf("Processing workflow item (%d of %d) related to order: %d ...",
			nth+1, len(rec.CreditMemos), memo)

		keyword := strconv.Itoa(memo)
		found, err := f.workflow.ProcessItem(items, keyword)
		if err != nil {
			return err
		}
		if found {
			f.printf("Workflow item processed.")
			f.countItem("approved")
		} else {
			// The GUI raises workflow events with delay; an absent
			// item stays absent on a re-run, so it does not hold the
			// batch back.
			f.printf("ERROR: Workflow item not found using key: %q!", keyword)
			f.countItem("not_found")
		}
	}

	f.printf("Closing SO01 ...")
	if err := f.workflow.Close(); err != nil {
		return err
	}
	f.printf("SO01 closed.")

	f.printf("Removing data batch file ...")
	if err := f.batches.Remove(name); err != nil {
		f.printf("ERROR: %v", err)
		return nil
	}
	f.printf("Data batch file removed.")
	if f.metrics != nil {
		f.metrics.BatchesFinalized.Inc()
	}
	return nil
}

func (f *Finalizer) countItem(outcome string) {
	if f.metrics == nil {
		return
	}
	f.metrics.WorkflowItems.WithLabelValues(outcome).Inc()
}

func (f *Finalizer) printf(format string, args ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Printf(format, args...)
}
