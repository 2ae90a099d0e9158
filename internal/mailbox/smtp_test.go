package mailbox

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestValidateAddresses(t *testing.T) {
	got, err := ValidateAddresses("example.com", " jane.doe@example.com ", "john.smith@example.com")
	if err != nil {
		t.Fatalf("validate addresses: %v", err)
	}
	if len(got) != 2 || got[0] != "jane.doe@example.com" || got[1] != "john.smith@example.com" {
		t.Fatalf("expected trimmed addresses, got %v", got)
	}
}

func TestValidateAddressesRejectsForeignDomain(t *testing.T) {
	_, err := ValidateAddresses("example.com", "jane.doe@other.org")
	if err == nil || !strings.Contains(err.Error(), "invalid email address format") {
		t.Fatalf("expected a format error, got %v", err)
	}
}

func TestValidateAddressesRequiresFirstLastFormat(t *testing.T) {
	_, err := ValidateAddresses("example.com", "janedoe@example.com")
	if err == nil {
		t.Fatal("expected an error for an address without the first.last format")
	}
}

func TestBuildMessage(t *testing.T) {
	dir := t.TempDir()
	attPath := filepath.Join(dir, "Report_0075_02Mar2026.xlsx")
	if err := os.WriteFile(attPath, []byte("workbook-bytes"), 0o644); err != nil {
		t.Fatalf("write attachment: %v", err)
	}

	msg, err := BuildMessage(
		"robot.agreements@example.com",
		[]string{"jane.doe@example.com", "john.smith@example.com"},
		"Closing of agreements",
		"<p>The report is attached.</p>",
		[]string{attPath},
	)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if msg.From != "robot.agreements@example.com" {
		t.Fatalf("unexpected sender: %s", msg.From)
	}
	if len(msg.To) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(msg.To))
	}

	raw := string(msg.Raw)
	checks := []string{
		"From: robot.agreements@example.com",
		"To: jane.doe@example.com, john.smith@example.com",
		"Subject: Closing of agreements",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=",
		"Content-Type: text/html; charset=utf-8",
		"<p>The report is attached.</p>",
		`Content-Disposition: attachment; filename="Report_0075_02Mar2026.xlsx"`,
		"Content-Transfer-Encoding: base64",
		base64.StdEncoding.EncodeToString([]byte("workbook-bytes")),
	}
	for _, expected := range checks {
		if !strings.Contains(raw, expected) {
			t.Fatalf("expected the message to include %q, got:\n%s", expected, raw)
		}
	}
}

func TestBuildMessageRequiresRecipients(t *testing.T) {
	_, err := BuildMessage("robot.agreements@example.com", nil, "Subject", "<p>Body</p>", nil)
	if err == nil || !strings.Contains(err.Error(), "no message recipients") {
		t.Fatalf("expected a recipients error, got %v", err)
	}
}

func TestBuildMessageRejectsMissingAttachment(t *testing.T) {
	_, err := BuildMessage(
		"robot.agreements@example.com",
		[]string{"jane.doe@example.com"},
		"Subject", "<p>Body</p>",
		[]string{filepath.Join(t.TempDir(), "missing.xlsx")},
	)
	if err == nil || !strings.Contains(err.Error(), "attachment not found") {
		t.Fatalf("expected an attachment error, got %v", err)
	}
}

type smtpSession struct {
	from  string
	rcpts []string
	data  string
}

// fakeSMTPServer accepts one delivery and reports it on the returned
// channel once the client quits. Recipients in reject get a 550 reply.
func fakeSMTPServer(t *testing.T, reject map[string]bool) (host string, port int, sessions <-chan smtpSession) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan smtpSession, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serveSMTP(conn, reject, ch)
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split listener address: %v", err)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse listener port: %v", err)
	}
	return host, port, ch
}

func serveSMTP(conn net.Conn, reject map[string]bool, sessions chan<- smtpSession) {
	reader := bufio.NewReader(conn)
	reply := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }

	reply("220 fake ESMTP ready")
	var session smtpSession
	var data strings.Builder
	inData := false
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if inData {
			if line == "." {
				inData = false
				session.data = data.String()
				reply("250 accepted")
				continue
			}
			data.WriteString(line)
			data.WriteString("\n")
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			session.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
			reply("250 ok")
		case strings.HasPrefix(upper, "RCPT TO:"):
			rcpt := strings.Trim(line[len("RCPT TO:"):], "<> ")
			if reject[rcpt] {
				reply("550 no such user")
				continue
			}
			session.rcpts = append(session.rcpts, rcpt)
			reply("250 ok")
		case strings.HasPrefix(upper, "DATA"):
			inData = true
			reply("354 go ahead")
		case strings.HasPrefix(upper, "QUIT"):
			reply("221 bye")
			sessions <- session
			return
		default:
			reply("250 ok")
		}
	}
}

func buildTestMessage(t *testing.T, to ...string) *SMTPMessage {
	t.Helper()
	msg, err := BuildMessage("robot.agreements@example.com", to, "Closing of agreements", "<p>Done.</p>", nil)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	return msg
}

func TestSendMessage(t *testing.T) {
	host, port, sessions := fakeSMTPServer(t, nil)
	msg := buildTestMessage(t, "jane.doe@example.com", "john.smith@example.com")

	if err := SendMessage(msg, host, port); err != nil {
		t.Fatalf("send message: %v", err)
	}

	session := <-sessions
	if session.from != "robot.agreements@example.com" {
		t.Fatalf("unexpected envelope sender: %s", session.from)
	}
	if len(session.rcpts) != 2 {
		t.Fatalf("expected 2 envelope recipients, got %v", session.rcpts)
	}
	if !strings.Contains(session.data, "Subject: Closing of agreements") {
		t.Fatalf("expected the message data, got:\n%s", session.data)
	}
}

func TestSendMessageCollectsRejectedRecipients(t *testing.T) {
	host, port, sessions := fakeSMTPServer(t, map[string]bool{"gone.user@example.com": true})
	msg := buildTestMessage(t, "jane.doe@example.com", "gone.user@example.com")

	err := SendMessage(msg, host, port)
	var undelivered *UndeliveredError
	if !errors.As(err, &undelivered) {
		t.Fatalf("expected an UndeliveredError, got %v", err)
	}
	if len(undelivered.Recipients) != 1 || undelivered.Recipients[0] != "gone.user@example.com" {
		t.Fatalf("expected the rejected recipient, got %v", undelivered.Recipients)
	}

	// The message still reaches the accepted recipient.
	session := <-sessions
	if len(session.rcpts) != 1 || session.rcpts[0] != "jane.doe@example.com" {
		t.Fatalf("expected delivery to the accepted recipient, got %v", session.rcpts)
	}
	if session.data == "" {
		t.Fatal("expected the message data to be sent")
	}
}

func TestSendMessageFailsWhenAllRecipientsRejected(t *testing.T) {
	host, port, _ := fakeSMTPServer(t, map[string]bool{
		"jane.doe@example.com":   true,
		"john.smith@example.com": true,
	})
	msg := buildTestMessage(t, "jane.doe@example.com", "john.smith@example.com")

	err := SendMessage(msg, host, port)
	var undelivered *UndeliveredError
	if !errors.As(err, &undelivered) {
		t.Fatalf("expected an UndeliveredError, got %v", err)
	}
	if len(undelivered.Recipients) != 2 {
		t.Fatalf("expected both recipients to be reported, got %v", undelivered.Recipients)
	}
}

func TestSendMessageRejectsNil(t *testing.T) {
	if err := SendMessage(nil, "127.0.0.1", 25); err == nil {
		t.Fatal("expected an error for a nil message")
	}
}
