package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshAhead renews a cached token this long before it expires.
const refreshAhead = 2 * time.Minute

// tokenSource obtains access tokens through the OAuth2 client
// credentials flow and caches them until shortly before expiry.
type tokenSource struct {
	creds    Credentials
	tokenURL string
	scope    string
	client   *http.Client
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(creds Credentials, tokenURL, scope string, client *http.Client, now func() time.Time) *tokenSource {
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", creds.TenantID)
	}
	return &tokenSource{
		creds:    creds,
		tokenURL: tokenURL,
		scope:    scope,
		client:   client,
		now:      now,
	}
}

// Token returns a valid access token, fetching a fresh one when the
// cached token is absent or close to expiry.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expires.Add(-refreshAhead)) {
		return ts.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.creds.ClientID},
		"client_secret": {ts.creds.ClientSecret},
		"scope":         {ts.scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mailbox: token endpoint replied %s", resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("mailbox: decoding the token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("mailbox: token endpoint returned no access token")
	}

	ts.token = payload.AccessToken
	ts.expires = ts.now().Add(time.Duration(payload.ExpiresIn) * time.Second)

	// The exp claim is authoritative when the token is a JWT;
	// expires_in can drift from it.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(payload.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			ts.expires = exp.Time
		}
	}
	return ts.token, nil
}
