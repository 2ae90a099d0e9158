package application

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadConfigFromYaml(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app_config.yaml", `
messages:
  requests:
    mailbox: Inbox
    account: robot@example.com
    server: outlook.office365.com
  notifications:
    send: true
    sender: robot@example.com
    subject: All agreements processed
    host: smtp.example.com
    port: 25
data:
  document_name: permission.pdf
  report_name: Report_$company_code$_$date$.xlsx
  report_sheet_name: Data
sap:
  system: Q25
work_dir: /var/run/closing
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Messages.Requests.Account != "robot@example.com" {
		t.Errorf("expected the requests account, got %q", cfg.Messages.Requests.Account)
	}
	if !cfg.Messages.Notifications.Send || cfg.Messages.Notifications.Port != 25 {
		t.Errorf("expected notifications enabled on port 25, got %+v", cfg.Messages.Notifications)
	}
	if cfg.Data.DocumentName != "permission.pdf" {
		t.Errorf("expected the document name, got %q", cfg.Data.DocumentName)
	}
	if cfg.GUI.System != "Q25" {
		t.Errorf("expected system Q25, got %q", cfg.GUI.System)
	}
	if cfg.WorkDir != "/var/run/closing" {
		t.Errorf("expected the configured work dir, got %q", cfg.WorkDir)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CLOSING_GUI_SYSTEM", "")
	t.Setenv("CLOSING_WORK_DIR", "")
	path := writeFile(t, t.TempDir(), "app_config.yaml", "data:\n  document_name: permission.pdf\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Data.ReportSheetName != "Data" {
		t.Errorf("expected the default sheet name, got %q", cfg.Data.ReportSheetName)
	}
	if !strings.Contains(cfg.Data.ReportName, "$company_code$") {
		t.Errorf("expected the default report name template, got %q", cfg.Data.ReportName)
	}
	if cfg.GUI.System != "P25" {
		t.Errorf("expected the default system P25, got %q", cfg.GUI.System)
	}
	if cfg.WorkDir != "." {
		t.Errorf("expected the default work dir, got %q", cfg.WorkDir)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadConfigRejectsNotificationsWithoutHost(t *testing.T) {
	path := writeFile(t, t.TempDir(), "app_config.yaml", `
messages:
  notifications:
    send: true
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for notifications without an SMTP host")
	}
}

func TestLoadRules(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", `
"0075":
  country: Ireland
  threshold: 0.5
  approvers:
    - "00111222"
    - "00333444"
"0101":
  country: Austria
  threshold: 1
  approvers: []
`)

	rules, err := LoadRules(path, "0075")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.Country != "Ireland" || rules.Threshold != 0.5 {
		t.Errorf("expected Ireland with threshold 0.5, got %+v", rules)
	}
	if len(rules.Approvers) != 2 || rules.Approvers[1] != "00333444" {
		t.Errorf("expected two approvers, got %v", rules.Approvers)
	}
}

func TestLoadRulesUnknownCompanyCode(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", "\"0075\":\n  country: Ireland\n")

	if _, err := LoadRules(path, "9999"); err == nil {
		t.Fatal("expected an error for an unknown company code")
	}
}

func TestLoadRulesRequiresCountry(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", "\"0075\":\n  threshold: 1\n")

	if _, err := LoadRules(path, "0075"); err == nil {
		t.Fatal("expected an error for rules without a country")
	}
}

func TestConfigPathLayout(t *testing.T) {
	cfg := Config{WorkDir: filepath.Join("work", "root")}

	cases := []struct {
		got  string
		want string
	}{
		{cfg.BatchDir(), filepath.Join("work", "root", "data")},
		{cfg.DumpDir(), filepath.Join("work", "root", "dump")},
		{cfg.LogDir(), filepath.Join("work", "root", "logs")},
		{cfg.InputDir(), filepath.Join("work", "root", "temp", "data")},
		{cfg.DocDir(), filepath.Join("work", "root", "temp", "doc")},
		{cfg.ReportDir(), filepath.Join("work", "root", "temp", "report")},
		{cfg.RulesPath(), filepath.Join("work", "root", "rules.yaml")},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("expected %q, got %q", tc.want, tc.got)
		}
	}
}

func TestConfigCredentialsDir(t *testing.T) {
	cfg := Config{}

	t.Setenv("CLOSING_CREDENTIALS_DIR", "")
	t.Setenv("APPDATA", filepath.Join("home", "roaming"))
	if got, want := cfg.CredentialsDir(), filepath.Join("home", "roaming", "bia"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	t.Setenv("CLOSING_CREDENTIALS_DIR", filepath.Join("etc", "closing"))
	if got, want := cfg.CredentialsDir(), filepath.Join("etc", "closing"); got != want {
		t.Errorf("expected the override %q, got %q", want, got)
	}
}
