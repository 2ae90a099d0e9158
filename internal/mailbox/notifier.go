package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const DefaultTemplate = `<html>
<body>
<p>Dear colleague,</p>
<p>the processing of customer agreements finished on {{.Date}}.
The result report is attached to this message.</p>
<p>This is an automatically generated message, please do not reply.</p>
</body>
</html>`

// TemplateData provides fields for rendering the notification body.
type TemplateData struct {
	Date        string
	Attachments []string
}

// Template renders the notification body.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("run-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("mailbox: nil template")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// NotifierConfig carries the delivery parameters for run notifications.
type NotifierConfig struct {
	Sender       string
	Subject      string
	Host         string
	Port         int
	TemplatePath string
}

// Notifier delivers run notifications with the attached reports over SMTP.
// Recipient addresses are checked against the sender's mail domain.
type Notifier struct {
	cfg      NotifierConfig
	template *Template
	logger   *log.Logger
	now      func() time.Time
}

// NewNotifier constructs a notifier. When cfg.TemplatePath is empty the
// built-in notification body is used.
func NewNotifier(cfg NotifierConfig, logger *log.Logger) (*Notifier, error) {
	if cfg.Sender == "" {
		return nil, errors.New("mailbox: notifier: empty sender address")
	}
	if cfg.Host == "" {
		return nil, errors.New("mailbox: notifier: empty SMTP host")
	}

	body := ""
	if cfg.TemplatePath != "" {
		raw, err := os.ReadFile(cfg.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("mailbox: notification template: %w", err)
		}
		body = string(raw)
	}
	tpl, err := NewTemplate(body)
	if err != nil {
		return nil, fmt.Errorf("mailbox: notification template: %w", err)
	}

	return &Notifier{cfg: cfg, template: tpl, logger: logger, now: time.Now}, nil
}

// Notify renders the notification body and sends it to the recipient
// with the given files attached.
func (n *Notifier) Notify(ctx context.Context, recipient string, attachments []string) error {
	if n == nil {
		return errors.New("mailbox: nil notifier")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	recipients, err := ValidateAddresses(senderDomain(n.cfg.Sender), recipient)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(attachments))
	for _, path := range attachments {
		names = append(names, filepath.Base(path))
	}
	body, err := n.template.Render(TemplateData{
		Date:        n.now().Format("02-Jan-2006"),
		Attachments: names,
	})
	if err != nil {
		return err
	}

	msg, err := BuildMessage(n.cfg.Sender, recipients, n.cfg.Subject, body, attachments)
	if err != nil {
		return err
	}
	if n.logger != nil {
		n.logger.Printf("Sending user notification to %s ...", recipient)
	}
	return SendMessage(msg, n.cfg.Host, n.cfg.Port)
}

func senderDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}
