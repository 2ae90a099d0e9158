package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Credentials holds the OAuth2 client credentials of a mailbox
// account.
type Credentials struct {
	Account      string
	ClientID     string
	ClientSecret string
	TenantID     string
}

// LoadCredentials reads the `<account>.token.email.dat` file from
// dir. The file carries one `Name: value` pair per line; lines
// without a colon are ignored.
func LoadCredentials(dir, account string) (Credentials, error) {
	path := filepath.Join(dir, strings.ToLower(account)+".token.email.dat")

	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("mailbox: credentials file: %w", err)
	}

	creds := Credentials{Account: account}
	for _, line := range strings.Split(string(data), "\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(name) {
		case "Client ID":
			creds.ClientID = strings.TrimSpace(value)
		case "Client Secret":
			creds.ClientSecret = strings.TrimSpace(value)
		case "Tenant ID":
			creds.TenantID = strings.TrimSpace(value)
		}
	}

	if creds.ClientID == "" {
		return Credentials{}, fmt.Errorf("mailbox: parameter 'Client ID' not found in %s", path)
	}
	if creds.ClientSecret == "" {
		return Credentials{}, fmt.Errorf("mailbox: parameter 'Client Secret' not found in %s", path)
	}
	if creds.TenantID == "" {
		return Credentials{}, fmt.Errorf("mailbox: parameter 'Tenant ID' not found in %s", path)
	}
	return creds, nil
}
