// Package closing holds the core types of the agreement closing run:
// country rules, queued work items and per-agreement results.
package closing

import (
	"math"

	"agreement-closing/internal/settlement"
)

// Rules carries the country-specific closing parameters keyed
// by company code in the rules file.
type Rules struct {
	Country   string   `yaml:"country"`
	Threshold float64  `yaml:"threshold"`
	Approvers []string `yaml:"approvers"`
}

// EffectiveThreshold returns the rules threshold with negative
// values read as zero.
func (r Rules) EffectiveThreshold() float64 {
	return math.Max(r.Threshold, 0)
}

// WorkItem identifies a single agreement queued for closing.
type WorkItem struct {
	Agreement int
}

// Result records the closing outcome for one agreement.
type Result struct {
	Agreement    int
	OpenValue    float64
	OpenAccruals float64
	// HasVolumes reports whether sales volumes were actually read;
	// value fields are meaningless otherwise.
	HasVolumes bool
	// CreditMemo is the settlement document number, zero when no
	// document was produced.
	CreditMemo int
	Message    string
	Severity   settlement.Severity
}

// Summary tallies run results by outcome.
type Summary struct {
	Items     int
	Info      int
	Warnings  int
	Errors    int
	Documents int
}

// Summarize aggregates per-agreement results into run totals.
func Summarize(results []Result) Summary {
	sum := Summary{Items: len(results)}
	for _, res := range results {
		switch res.Severity {
		case settlement.SeverityInfo:
			sum.Info++
		case settlement.SeverityWarning:
			sum.Warnings++
		case settlement.SeverityError:
			sum.Errors++
		}
		if res.CreditMemo != 0 {
			sum.Documents++
		}
	}
	return sum
}
