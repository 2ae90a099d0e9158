package settlement

import "strings"

// Dialog texts recognized during agreement lookup.
const (
	dialogMarkedForDeletion = "is marked for deletion"
	dialogVolumesNotCurrent = "is not current"
)

// dialogRule binds a lookup dialog to the option that permits continuing
// past it. The dialog itself is always confirmed; when the gate rejects,
// the agreement is skipped with a warning.
type dialogRule struct {
	keyword string
	gate    func(Options) bool
}

var dialogRules = []dialogRule{
	{dialogMarkedForDeletion, func(o Options) bool { return o.AcceptInactiveAccounts }},
	{dialogVolumesNotCurrent, func(o Options) bool { return o.AcceptOutdatedVolumes }},
}

// statusOutcome maps a status bar keyword to the severity it signals for
// the settlement transaction.
type statusOutcome struct {
	severity Severity
	keyword  string
}

var statusOutcomes = []statusOutcome{
	{SeverityWarning, "Only display is possible"},
	{SeverityError, "does not exist"},
	{SeverityError, "cannot be processed"},
	{SeverityError, "already being processed"},
}

// classifyStatus matches a status bar message against the outcome table.
func classifyStatus(text string) (Severity, bool) {
	for _, outcome := range statusOutcomes {
		if strings.Contains(text, outcome.keyword) {
			return outcome.severity, true
		}
	}
	return SeverityInfo, false
}
