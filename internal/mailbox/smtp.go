package mailbox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const smtpTimeout = 30 * time.Second

// UndeliveredError reports the recipients a message failed to reach.
type UndeliveredError struct {
	Recipients []string
}

func (e *UndeliveredError) Error() string {
	return "mailbox: message undelivered to: " + strings.Join(e.Recipients, ";")
}

// ValidateAddresses trims the given addresses and checks them against
// the corporate first.last@domain format.
func ValidateAddresses(domain string, addrs ...string) ([]string, error) {
	pattern, err := regexp.Compile(`\w+\.\w+@` + regexp.QuoteMeta(domain))
	if err != nil {
		return nil, err
	}

	validated := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		stripped := strings.TrimSpace(addr)
		if !pattern.MatchString(stripped) {
			return nil, fmt.Errorf("mailbox: invalid email address format: %q", stripped)
		}
		validated = append(validated, stripped)
	}
	return validated, nil
}

// SMTPMessage is a ready-to-send MIME message.
type SMTPMessage struct {
	From string
	To   []string
	Raw  []byte
}

// BuildMessage assembles an HTML message with the given files as
// base64 attachments.
func BuildMessage(from string, to []string, subject, htmlBody string, attachments []string) (*SMTPMessage, error) {
	if len(to) == 0 {
		return nil, errors.New("mailbox: no message recipients provided")
	}
	for _, path := range attachments {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("mailbox: attachment not found: %s", path)
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%q\r\n\r\n",
		from, strings.Join(to, ", "), subject, writer.Boundary())

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
	part, err := writer.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	for _, path := range attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("mailbox: reading attachment: %w", err)
		}

		attHeader := textproto.MIMEHeader{}
		attHeader.Set("Content-Type", "application/octet-stream")
		attHeader.Set("Content-Transfer-Encoding", "base64")
		attHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
		part, err := writer.CreatePart(attHeader)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, data); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	return &SMTPMessage{
		From: from,
		To:   to,
		Raw:  append([]byte(headers), body.Bytes()...),
	}, nil
}

// SendMessage delivers the message through the given SMTP host.
// Recipients rejected by the server are collected into an
// UndeliveredError; the message is still sent to the accepted ones.
func SendMessage(msg *SMTPMessage, host string, port int) error {
	if msg == nil {
		return errors.New("mailbox: nil message")
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), smtpTimeout)
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if err := client.Mail(msg.From); err != nil {
		return err
	}

	var rejected []string
	accepted := 0
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			rejected = append(rejected, rcpt)
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return &UndeliveredError{Recipients: rejected}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg.Raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := client.Quit(); err != nil {
		return err
	}

	if len(rejected) > 0 {
		return &UndeliveredError{Recipients: rejected}
	}
	return nil
}

// writeBase64 encodes data in 76-column lines per MIME rules.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		if _, err := w.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	_, err := w.Write([]byte(encoded + "\r\n"))
	return err
}
