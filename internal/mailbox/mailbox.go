// Package mailbox reads user requests from a shared mailbox over the
// Graph REST API and sends run notifications over SMTP.
package mailbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrMessageNotFound is returned when no message matches the
	// requested id.
	ErrMessageNotFound = errors.New("mailbox: message not found")
	// ErrFolderNotFound is returned when the attachment target folder
	// does not exist.
	ErrFolderNotFound = errors.New("mailbox: folder does not exist")
)

// AttachmentError wraps a failure to store a message attachment.
type AttachmentError struct {
	Name string
	Err  error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("mailbox: saving attachment %s: %v", e.Name, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }

// Message is a user request fetched from the shared mailbox.
type Message struct {
	ID      string
	Subject string
	Body    string
	Sender  string
}

// Client reads messages of one shared mailbox.
type Client struct {
	mailbox string
	baseURL string
	client  *http.Client
	tokens  *tokenSource

	tokenURL string
	scope    string
	now      func() time.Time
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL overrides the REST endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTokenURL overrides the OAuth2 token endpoint.
func WithTokenURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.tokenURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.client = h
		}
	}
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a client for the given shared mailbox.
func NewClient(mailbox string, creds Credentials, opts ...ClientOption) (*Client, error) {
	if mailbox == "" {
		return nil, errors.New("mailbox: empty mailbox address")
	}
	c := &Client{
		mailbox: mailbox,
		baseURL: "https://graph.microsoft.com/v1.0",
		client:  &http.Client{Timeout: 30 * time.Second},
		scope:   "https://graph.microsoft.com/.default",
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tokens = newTokenSource(creds, c.tokenURL, c.scope, c.client, c.now)
	return c, nil
}

// GetMessage fetches a message by its internet message id. Angle
// brackets around the id are normalized before the lookup.
func (c *Client) GetMessage(ctx context.Context, messageID string) (Message, error) {
	if messageID == "" {
		return Message{}, fmt.Errorf("mailbox: empty message id")
	}
	if !strings.HasPrefix(messageID, "<") {
		messageID = "<" + messageID
	}
	if !strings.HasSuffix(messageID, ">") {
		messageID += ">"
	}

	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("internetMessageId eq '%s'", messageID))
	query.Set("$select", "subject,body,sender,internetMessageId")

	var payload struct {
		Value []struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
			Body    struct {
				Content string `json:"content"`
			} `json:"body"`
			Sender struct {
				EmailAddress struct {
					Address string `json:"address"`
				} `json:"emailAddress"`
			} `json:"sender"`
		} `json:"value"`
	}
	endpoint := fmt.Sprintf("%s/users/%s/messages?%s", c.baseURL, url.PathEscape(c.mailbox), query.Encode())
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return Message{}, err
	}
	if len(payload.Value) == 0 {
		return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}

	msg := payload.Value[0]
	return Message{
		ID:      msg.ID,
		Subject: msg.Subject,
		Body:    msg.Body.Content,
		Sender:  msg.Sender.EmailAddress.Address,
	}, nil
}

// SaveAttachments stores the message attachments matching ext into
// dir and returns the written paths. An empty ext saves everything.
func (c *Client) SaveAttachments(ctx context.Context, msg Message, dir, ext string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, dir)
	}

	var payload struct {
		Value []struct {
			Name         string `json:"name"`
			ContentBytes string `json:"contentBytes"`
		} `json:"value"`
	}
	endpoint := fmt.Sprintf("%s/users/%s/messages/%s/attachments", c.baseURL, url.PathEscape(c.mailbox), url.PathEscape(msg.ID))
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	var paths []string
	for _, att := range payload.Value {
		if ext != "" && !strings.HasSuffix(strings.ToLower(att.Name), strings.ToLower(ext)) {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
		if err != nil {
			return paths, &AttachmentError{Name: att.Name, Err: err}
		}
		path := filepath.Join(dir, att.Name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, &AttachmentError{Name: att.Name, Err: err}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailbox: unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
