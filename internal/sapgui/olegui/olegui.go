// Package olegui attaches to the vendor GUI scripting engine over COM
// and adapts its object model to the sapgui interfaces. The adapter is
// windows-only; on other platforms Connect fails with an error.
package olegui

import (
	"fmt"
	"strings"
	"time"
)

// Connection descriptions registered with the logon launcher.
const (
	SystemP25 = "OG ERP: P25 Productive SSO"
	SystemQ25 = "OG ERP: Q25 Quality Assurance SSO"
)

// DefaultLauncherPath is the fixed frontend install location, shared by
// all user profiles.
const DefaultLauncherPath = `C:\Program Files (x86)\SAP\FrontEnd\SAPgui\saplogon.exe`

const defaultLaunchWait = 8 * time.Second

// SystemDescription resolves a short system name to the connection
// description known to the logon launcher.
func SystemDescription(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	switch {
	case strings.EqualFold(trimmed, "P25"), trimmed == SystemP25:
		return SystemP25, nil
	case strings.EqualFold(trimmed, "Q25"), trimmed == SystemQ25:
		return SystemQ25, nil
	}
	return "", fmt.Errorf("olegui: unrecognized system to connect: %q", name)
}

type settings struct {
	launcherPath string
	launchWait   time.Duration
}

// Option configures the connect sequence.
type Option func(*settings)

// WithLauncherPath overrides the frontend launcher location.
func WithLauncherPath(path string) Option {
	return func(s *settings) {
		if path != "" {
			s.launcherPath = path
		}
	}
}

// WithLaunchWait caps the wait for the scripting engine after the
// launcher starts.
func WithLaunchWait(wait time.Duration) Option {
	return func(s *settings) {
		if wait > 0 {
			s.launchWait = wait
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		launcherPath: DefaultLauncherPath,
		launchWait:   defaultLaunchWait,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
