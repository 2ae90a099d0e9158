package settlement

import "testing"

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		text     string
		severity Severity
		matched  bool
	}{
		{"Only display is possible for the rebate agreement", SeverityWarning, true},
		{"Agreement 123456789 does not exist", SeverityError, true},
		{"Agreement 123456789 cannot be processed", SeverityError, true},
		{"The agreement is already being processed by user SMITH", SeverityError, true},
		{"", "", false},
		{"Document saved", "", false},
	}
	for _, tc := range cases {
		severity, matched := classifyStatus(tc.text)
		if matched != tc.matched {
			t.Fatalf("classify %q: expected matched=%v, got %v", tc.text, tc.matched, matched)
		}
		if severity != tc.severity {
			t.Fatalf("classify %q: expected severity %q, got %q", tc.text, tc.severity, severity)
		}
	}
}

func TestDialogRulesGateOnOptions(t *testing.T) {
	if len(dialogRules) != 2 {
		t.Fatalf("expected 2 dialog rules, got %d", len(dialogRules))
	}
	deletion, volumes := dialogRules[0], dialogRules[1]
	if deletion.keyword != dialogMarkedForDeletion {
		t.Fatalf("expected deletion rule first, got keyword %q", deletion.keyword)
	}
	if deletion.gate(Options{}) {
		t.Fatal("expected deletion dialog to be declined by default")
	}
	if !deletion.gate(Options{AcceptInactiveAccounts: true}) {
		t.Fatal("expected deletion dialog to be accepted when inactive accounts are allowed")
	}
	if volumes.gate(Options{}) {
		t.Fatal("expected outdated volumes dialog to be declined by default")
	}
	if !volumes.gate(Options{AcceptOutdatedVolumes: true}) {
		t.Fatal("expected outdated volumes dialog to be accepted when outdated volumes are allowed")
	}
}
