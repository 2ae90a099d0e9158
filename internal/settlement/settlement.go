// Package settlement drives the agreement settlement transaction: it
// locates an open rebate agreement, validates that it can be settled and
// creates the final settlement, yielding the credit memo request number.
package settlement

// Severity classifies a processing message.
type Severity string

const (
	SeverityInfo    Severity = "I"
	SeverityWarning Severity = "W"
	SeverityError   Severity = "E"
)

// DocumentType distinguishes the accounting documents an agreement can
// carry.
type DocumentType string

const (
	// DocumentNone means no accounting document was produced or found.
	DocumentNone DocumentType = ""
	// DocumentMemoRequest is a request for issuing a credit memo,
	// created by a successful settlement.
	DocumentMemoRequest DocumentType = "memo_request"
	// DocumentCreditMemo is a credit memo already issued from an
	// earlier settlement.
	DocumentCreditMemo DocumentType = "credit_memo"
)

// Options controls how warning dialogs during agreement lookup are
// resolved.
type Options struct {
	// AcceptInactiveAccounts ignores warnings about customer accounts
	// that are marked for deletion.
	AcceptInactiveAccounts bool
	// AcceptOutdatedVolumes ignores warnings about sales volumes that
	// are not current.
	AcceptOutdatedVolumes bool
}

// Result is the outcome of settling a single agreement.
type Result struct {
	OpenValue      float64
	OpenAccruals   float64
	HasVolumes     bool
	DocumentNumber int
	DocumentType   DocumentType
	Message        string
	Severity       Severity
}
