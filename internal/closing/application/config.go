package application

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	closing "agreement-closing/internal/closing/domain"
)

// RequestsConfig describes the mailbox the user requests arrive in.
type RequestsConfig struct {
	Mailbox string `yaml:"mailbox"`
	Account string `yaml:"account"`
	Server  string `yaml:"server"`
}

// NotificationsConfig describes the outgoing user notification.
type NotificationsConfig struct {
	Send    bool   `yaml:"send"`
	Sender  string `yaml:"sender"`
	Subject string `yaml:"subject"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MessagesConfig groups mail configuration.
type MessagesConfig struct {
	Requests      RequestsConfig      `yaml:"requests"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// DataConfig describes the expected user input and report output.
type DataConfig struct {
	DocumentName    string `yaml:"document_name"`
	ReportName      string `yaml:"report_name"`
	ReportSheetName string `yaml:"report_sheet_name"`
}

// GUIConfig selects the scripting engine connection.
type GUIConfig struct {
	System string `yaml:"system"`
}

// Config defines the application configuration.
type Config struct {
	Messages MessagesConfig `yaml:"messages"`
	Data     DataConfig     `yaml:"data"`
	GUI      GUIConfig      `yaml:"sap"`
	WorkDir  string         `yaml:"work_dir"`
	// MetricsAddr enables the metrics listener when non-empty.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LoadConfig loads config from yaml or env. An empty path falls back
// to the CLOSING_CONFIG variable and then to app_config.yaml.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		Data: DataConfig{
			ReportName:      "Report_$company_code$_$date$.xlsx",
			ReportSheetName: "Data",
		},
		GUI:         GUIConfig{System: getenvDefault("CLOSING_GUI_SYSTEM", "P25")},
		WorkDir:     getenvDefault("CLOSING_WORK_DIR", "."),
		MetricsAddr: os.Getenv("CLOSING_METRICS_ADDR"),
	}

	if path == "" {
		path = getenvDefault("CLOSING_CONFIG", "app_config.yaml")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.Messages.Notifications.Send && cfg.Messages.Notifications.Host == "" {
		return cfg, fmt.Errorf("config: notifications enabled without an SMTP host")
	}
	return cfg, nil
}

// LoadRules loads the closing rules of one company code from the
// rules file.
func LoadRules(path, companyCode string) (closing.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return closing.Rules{}, err
	}

	var all map[string]closing.Rules
	if err := yaml.Unmarshal(data, &all); err != nil {
		return closing.Rules{}, err
	}

	rules, ok := all[companyCode]
	if !ok {
		return closing.Rules{}, fmt.Errorf("rules: no entry for company code %q", companyCode)
	}
	if rules.Country == "" {
		return closing.Rules{}, fmt.Errorf("rules: company code %q has no country", companyCode)
	}
	return rules, nil
}

// BatchDir is where credit memo batches wait for the finalizer.
func (c Config) BatchDir() string { return filepath.Join(c.WorkDir, "data") }

// DumpDir receives forensic dumps of aborted runs.
func (c Config) DumpDir() string { return filepath.Join(c.WorkDir, "dump") }

// LogDir holds the per-run log files.
func (c Config) LogDir() string { return filepath.Join(c.WorkDir, "logs") }

// TempDir is the root of all transient run files.
func (c Config) TempDir() string { return filepath.Join(c.WorkDir, "temp") }

// InputDir receives the mailed workbook.
func (c Config) InputDir() string { return filepath.Join(c.WorkDir, "temp", "data") }

// DocDir receives the mailed settlement permission document.
func (c Config) DocDir() string { return filepath.Join(c.WorkDir, "temp", "doc") }

// ReportDir receives the generated report files.
func (c Config) ReportDir() string { return filepath.Join(c.WorkDir, "temp", "report") }

// TemplatePath points at the notification body template.
func (c Config) TemplatePath() string {
	return filepath.Join(c.WorkDir, "notification", "template.html")
}

// RulesPath points at the per-company closing rules file.
func (c Config) RulesPath() string { return filepath.Join(c.WorkDir, "rules.yaml") }

// CredentialsDir holds the mailbox credential files. The automation
// agents of the team share one directory under the user profile, so
// it is not part of the yaml config.
func (c Config) CredentialsDir() string {
	if dir := os.Getenv("CLOSING_CREDENTIALS_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.Getenv("APPDATA"), "bia")
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
